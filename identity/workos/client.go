package workos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/identity"
	"github.com/jrsteele09/go-authkit-session/users"
	"golang.org/x/oauth2"
)

const (
	authorizePath    = "/user_management/authorize"
	authenticatePath = "/user_management/authenticate"

	DefaultProvider = "authkit"
)

var _ identity.Provider = (*Client)(nil)

// Client talks to WorkOS User Management as a public PKCE client (no secret).
type Client struct {
	oauth      *oauth2.Config
	provider   string
	httpClient *http.Client
	newState   func() string
}

type Option func(*Client)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithProvider sets the `provider` authorize parameter (default "authkit").
func WithProvider(provider string) Option {
	return func(cl *Client) {
		cl.provider = provider
	}
}

func WithStateGenerator(f func() string) Option {
	return func(cl *Client) {
		cl.newState = f
	}
}

func New(clientID, apiBaseURL, redirectURI string, opts ...Option) (*Client, error) {
	if clientID == "" {
		return nil, errors.New("[workos.New] clientID is required")
	}
	if apiBaseURL == "" {
		return nil, errors.New("[workos.New] apiBaseURL is required")
	}
	if redirectURI == "" {
		return nil, errors.New("[workos.New] redirectURI is required")
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   apiBaseURL + authorizePath,
				TokenURL:  apiBaseURL + authenticatePath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: redirectURI,
		},
		provider: DefaultProvider,
		newState: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) AuthorizationURL(_ context.Context) (*identity.AuthorizationURL, error) {
	verifier := oauth2.GenerateVerifier()
	state := c.newState()

	authURL := c.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("provider", c.provider),
	)

	return &identity.AuthorizationURL{
		URL:          authURL,
		CodeVerifier: verifier,
		State:        state,
	}, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*identity.Authentication, error) {
	token, err := c.oauth.Exchange(c.context(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("[Client.ExchangeCode] exchange: %w", providerError(err))
	}
	return authenticationFromToken(token)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*identity.Authentication, error) {
	if refreshToken == "" {
		return nil, errors.New("[Client.Refresh] refresh token is required")
	}

	token, err := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("[Client.Refresh] refresh: %w", providerError(err))
	}
	return authenticationFromToken(token)
}

func (c *Client) context(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

type workosUser struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	ProfilePictureURL *string `json:"profile_picture_url"`
}

// authenticationFromToken reads the `user` object WorkOS returns next to the tokens.
func authenticationFromToken(token *oauth2.Token) (*identity.Authentication, error) {
	raw := token.Extra("user")
	if raw == nil {
		return nil, errors.New("[authenticationFromToken] response has no user")
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("[authenticationFromToken] marshal user: %w", err)
	}
	var u workosUser
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("[authenticationFromToken] unmarshal user: %w", err)
	}
	if u.ID == "" {
		return nil, errors.New("[authenticationFromToken] user has no id")
	}

	return &identity.Authentication{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		User: &users.User{
			ID:                u.ID,
			Email:             u.Email,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			ProfilePictureURL: u.ProfilePictureURL,
		},
	}, nil
}

// providerError surfaces the provider's error code and description when the
// token endpoint returned one.
func providerError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		return &autherrors.ProviderError{Code: re.ErrorCode, Description: re.ErrorDescription}
	}
	return err
}
