package sessions

import (
	"time"

	"github.com/jrsteele09/go-authkit-session/users"
)

// StoredSession is the only durable authentication state. It is written as a
// whole after a code exchange or refresh and removed as a whole on sign-out.
type StoredSession struct {
	AccessToken  string      `json:"accessToken"`  // Provider-issued JWT
	RefreshToken string      `json:"refreshToken"` // Opaque, rotated on every refresh
	User         *users.User `json:"user"`         // Profile returned with the tokens
}

// PkceState is the single pending sign-in. A new sign-in attempt overwrites it
// and a callback consumes it.
type PkceState struct {
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"` // Epoch milliseconds
}

// Expired reports whether the pending challenge can no longer be used.
func (p PkceState) Expired(now time.Time) bool {
	return p.ExpiresAt < now.UnixMilli()
}
