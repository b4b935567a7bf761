package pkce

import (
	"context"
	"errors"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/identity"
	"github.com/jrsteele09/go-authkit-session/sessions"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a pending sign-in may wait for its callback.
const DefaultTTL = 10 * time.Minute

type ManagerOption func(*Manager)

// WithNowTime overrides the clock.
func WithNowTime(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// Manager owns the single pending PKCE challenge. The code verifier is written
// to the session store and handed out exactly once, to the token exchange.
type Manager struct {
	provider identity.Provider
	repo     sessions.Repo
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(provider identity.Provider, repo sessions.Repo, opts ...ManagerOption) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("[NewManager] provider is required")
	}
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}

	m := &Manager{
		provider: provider,
		repo:     repo,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, fmt.Errorf("[NewManager] ttl must be positive, got %s", m.ttl)
	}
	return m, nil
}

// Begin starts a sign-in attempt, replacing any pending one, and returns the
// authorization URL to open.
func (m *Manager) Begin(ctx context.Context) (string, error) {
	auth, err := m.provider.AuthorizationURL(ctx)
	if err != nil {
		return "", fmt.Errorf("[Manager.Begin] authorization url: %w", err)
	}

	state := &sessions.PkceState{
		CodeVerifier: auth.CodeVerifier,
		State:        auth.State,
		ExpiresAt:    m.now().Add(m.ttl).UnixMilli(),
	}
	if err := m.repo.SavePKCE(ctx, state); err != nil {
		return "", fmt.Errorf("[Manager.Begin] save: %w", err)
	}

	log.Debug().Time("expiresAt", time.UnixMilli(state.ExpiresAt)).Msg("pkce challenge created")
	return auth.URL, nil
}

// Consume returns the pending verifier and deletes it. callbackState is the
// `state` query parameter of the redirect; pass "" when it is not available.
//
// Errors: ErrNoPendingChallenge when nothing is pending (including a second
// consume), ErrChallengeExpired and ErrStateMismatch after deleting the record.
func (m *Manager) Consume(ctx context.Context, callbackState string) (string, error) {
	pending, err := m.repo.LoadPKCE(ctx)
	if err != nil {
		return "", fmt.Errorf("[Manager.Consume] load: %w", err)
	}
	if pending == nil {
		return "", autherrors.ErrNoPendingChallenge
	}

	if err := m.repo.DeletePKCE(ctx); err != nil {
		return "", fmt.Errorf("[Manager.Consume] delete: %w", err)
	}

	if pending.Expired(m.now()) {
		return "", autherrors.ErrChallengeExpired
	}
	if pending.State != "" && callbackState != "" && pending.State != callbackState {
		return "", autherrors.ErrStateMismatch
	}
	return pending.CodeVerifier, nil
}
