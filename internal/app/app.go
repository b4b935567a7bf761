package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-authkit-session/auth"
	"github.com/jrsteele09/go-authkit-session/browser"
	"github.com/jrsteele09/go-authkit-session/identity"
	"github.com/jrsteele09/go-authkit-session/identity/workos"
	"github.com/jrsteele09/go-authkit-session/internal/config"
	"github.com/jrsteele09/go-authkit-session/pkce"
	"github.com/jrsteele09/go-authkit-session/securestore"
	"github.com/jrsteele09/go-authkit-session/securestore/filestore"
	"github.com/jrsteele09/go-authkit-session/securestore/memstore"
	"github.com/jrsteele09/go-authkit-session/securestore/sqlitestore"
	"github.com/jrsteele09/go-authkit-session/sessions"
	"github.com/jrsteele09/go-authkit-session/token/jwt"
)

const sqliteFileName = "authkit.db"

// App is the wired session manager.
type App struct {
	Config     config.Config
	Sessions   *sessions.Store
	Controller *auth.Controller

	closer io.Closer
}

type Option func(*options)

type options struct {
	provider    identity.Provider
	opener      browser.Opener
	authSession browser.AuthSession
}

// WithProvider replaces the WorkOS client.
func WithProvider(p identity.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithOpener(op browser.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithAuthSession replaces the loopback browser session used by sign-in.
func WithAuthSession(s browser.AuthSession) Option {
	return func(o *options) { o.authSession = s }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[app.New] config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.provider == nil {
		client, err := workos.New(cfg.GetClientID(), cfg.GetAPIBaseURL(), cfg.GetRedirectURI(), workos.WithProvider(cfg.GetProviderHint()))
		if err != nil {
			return nil, err
		}
		o.provider = client
	}
	if o.opener == nil {
		o.opener = browser.SystemOpener{}
	}
	if o.authSession == nil {
		s, err := browser.NewLoopbackAuthSession(o.opener, browser.WithTimeout(cfg.GetAuthSessionTimeout()))
		if err != nil {
			return nil, err
		}
		o.authSession = s
	}

	store, closer, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, closer: closer}

	a.Sessions, err = sessions.NewStore(store)
	if err != nil {
		a.Close()
		return nil, err
	}
	manager, err := pkce.NewManager(o.provider, a.Sessions, pkce.WithTTL(cfg.GetPkceTTL()))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Controller, err = auth.NewController(auth.Deps{
		Provider:    o.provider,
		Sessions:    a.Sessions,
		PKCE:        manager,
		Inspector:   jwt.NewInspector(),
		AuthSession: o.authSession,
		Opener:      o.opener,
	}, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Verifier checks access tokens against the provider's JWKS.
func (a *App) Verifier(ctx context.Context) (*jwt.Verifier, error) {
	issuer := a.Config.GetIssuer()
	if issuer == "" {
		issuer = jwt.DefaultIssuer(a.Config.GetAPIBaseURL(), a.Config.GetClientID())
	}
	return jwt.NewVerifier(ctx, jwt.JWKSURL(a.Config.GetAPIBaseURL(), a.Config.GetClientID()), issuer)
}

// Close waits for background logout navigation and releases the store.
func (a *App) Close() error {
	if a.Controller != nil {
		a.Controller.Wait()
	}
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// OpenStore opens the configured secure store. The closer is nil when the
// store holds no resources.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (securestore.Store, io.Closer, error) {
	switch cfg.GetStoreBackend() {
	case config.StoreBackendMemory:
		return memstore.New(), nil, nil
	case config.StoreBackendFile:
		s, err := filestore.Open(cfg.GetStorePath(), cfg.GetStorePassphrase())
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.StoreBackendSQLite:
		path, err := sqlitePath(cfg.GetStorePath())
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlitestore.Open(ctx, path, cfg.GetStorePassphrase())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.GetStoreBackend())
	}
}

// sqlitePath treats an extensionless path as a directory to hold the database.
func sqlitePath(p string) (string, error) {
	if filepath.Ext(p) == "" {
		if err := os.MkdirAll(p, 0o700); err != nil {
			return "", fmt.Errorf("[sqlitePath] os.MkdirAll: %w", err)
		}
		return filepath.Join(p, sqliteFileName), nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", fmt.Errorf("[sqlitePath] os.MkdirAll: %w", err)
	}
	return p, nil
}
