package identity

import (
	"context"

	"github.com/jrsteele09/go-authkit-session/users"
)

// AuthorizationURL is a freshly generated authorization request. The verifier
// must be stored by the caller and never sent anywhere except the token exchange.
type AuthorizationURL struct {
	URL          string
	CodeVerifier string
	State        string
}

// Authentication is what the provider returns for a code exchange or a refresh.
type Authentication struct {
	AccessToken  string
	RefreshToken string
	User         *users.User
}

// Provider is the identity provider's client surface.
type Provider interface {
	// AuthorizationURL generates a PKCE verifier and state and returns the URL
	// the browser should open
	AuthorizationURL(ctx context.Context) (*AuthorizationURL, error)

	// ExchangeCode trades an authorization code and its verifier for tokens
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Authentication, error)

	// Refresh trades a refresh token for a new token pair and user snapshot
	Refresh(ctx context.Context, refreshToken string) (*Authentication, error)
}
