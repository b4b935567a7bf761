package auth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-authkit-session/browser"
	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/identity"
	"github.com/jrsteele09/go-authkit-session/pkce"
	"github.com/jrsteele09/go-authkit-session/sessions"
	"github.com/jrsteele09/go-authkit-session/token/jwt"
	"github.com/jrsteele09/go-authkit-session/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const logoutPath = "/user_management/sessions/logout"

// Config is the configuration the controller reads.
type Config interface {
	GetAPIBaseURL() string
	GetRedirectURI() string
	GetExpirySkew() time.Duration
}

// Deps holds the collaborators of the Controller
type Deps struct {
	Provider    identity.Provider   // Code exchange and refresh
	Sessions    sessions.Repo       // Persisted session
	PKCE        *pkce.Manager       // Pending challenge
	Inspector   *jwt.Inspector      // Unverified claim decoding
	AuthSession browser.AuthSession // Interactive sign-in
	Opener      browser.Opener      // Logout navigation
}

// Controller runs the session lifecycle: sign-in, callback handling, expiry
// checks with silent refresh, and sign-out. The session store is read on every
// call; the controller caches nothing but its lifecycle State.
type Controller struct {
	deps    Deps
	config  Config
	nowTime func() time.Time

	mu    sync.RWMutex
	state State

	// writes serialises session writes that depend on what is stored
	writes sync.Mutex

	authCtx *AuthContext

	signIns   singleflight.Group
	refreshes singleflight.Group
	logouts   sync.WaitGroup
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

func NewController(deps Deps, config Config, options ...ControllerOption) (*Controller, error) {
	if deps.Provider == nil {
		return nil, errors.New("[NewController] Provider is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[NewController] Sessions repo is required")
	}
	if deps.PKCE == nil {
		return nil, errors.New("[NewController] PKCE manager is required")
	}
	if deps.Inspector == nil {
		return nil, errors.New("[NewController] Inspector is required")
	}
	if deps.AuthSession == nil {
		return nil, errors.New("[NewController] AuthSession is required")
	}
	if deps.Opener == nil {
		return nil, errors.New("[NewController] Opener is required")
	}
	if config == nil {
		return nil, errors.New("[NewController] config is required")
	}

	c := &Controller{
		deps:    deps,
		config:  config,
		nowTime: time.Now,
		state:   SignedOut,
	}
	for _, opt := range options {
		opt(c)
	}
	c.authCtx = newAuthContext(c)
	return c, nil
}

// AuthContext returns the reactive surface for the presentation layer.
func (c *Controller) AuthContext() *AuthContext {
	return c.authCtx
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		log.Debug().Stringer("from", c.state).Stringer("to", s).Msg("session state")
	}
	c.state = s
}

// settle records the outcome of a session check unless an interactive
// sign-in owns the state.
func (c *Controller) settle(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Authenticating {
		return
	}
	c.state = s
}

// SignInURL starts a new pending challenge and returns the authorization URL.
func (c *Controller) SignInURL(ctx context.Context) (string, error) {
	authURL, err := c.deps.PKCE.Begin(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Controller.SignInURL] Begin")
	}
	return authURL, nil
}

// SignIn runs the whole interactive flow. Concurrent calls share one flow and
// all receive its Result.
func (c *Controller) SignIn(ctx context.Context) Result {
	v, _, shared := c.signIns.Do("sign-in", func() (any, error) {
		return c.signIn(ctx), nil
	})
	if shared {
		log.Debug().Msg("joined sign-in already in progress")
	}
	return v.(Result)
}

func (c *Controller) signIn(ctx context.Context) (result Result) {
	prev := c.State()
	c.setState(Authenticating)
	c.authCtx.beginLoading()
	defer c.authCtx.endLoading()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic during sign-in")
			result = failed(fmt.Errorf("sign-in failed: %v", r))
		}
		if !result.Success {
			c.setState(prev)
			log.Warn().Err(result.Err).Msg("sign-in failed")
		}
	}()

	authURL, err := c.SignInURL(ctx)
	if err != nil {
		return failed(err)
	}

	res := c.deps.AuthSession.OpenAuthSession(ctx, authURL, c.config.GetRedirectURI())
	switch {
	case res.Type == browser.ResultFailed:
		if res.Err == nil {
			res.Err = errors.New("authentication session failed")
		}
		return failed(res.Err)
	case res.Type == browser.ResultCancelled, res.URL == "":
		return failed(autherrors.ErrAuthCancelled)
	}

	if _, err := c.CompleteRedirect(ctx, res.URL); err != nil {
		return failed(err)
	}
	return succeeded()
}

// CompleteRedirect handles the URL the browser was redirected to.
func (c *Controller) CompleteRedirect(ctx context.Context, rawURL string) (*users.User, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.CompleteRedirect] url.Parse")
	}

	redirect := ParseRedirect(u.Query())
	if redirect.Err != nil {
		return nil, redirect.Err
	}
	if redirect.Code == "" {
		return nil, autherrors.ErrNoAuthorizationCode
	}
	return c.HandleCallback(ctx, redirect.Code, WithState(redirect.State))
}

// HandleCallback consumes the pending challenge, exchanges the code and
// persists the new session. PKCE errors are returned unchanged; exchange
// errors match ErrCallbackFailed and leave storage untouched.
func (c *Controller) HandleCallback(ctx context.Context, code string, opts ...CallbackOption) (*users.User, error) {
	c.authCtx.beginLoading()
	defer c.authCtx.endLoading()

	verifier, err := c.deps.PKCE.Consume(ctx, CallbackState(opts...))
	if err != nil {
		return nil, err
	}

	auth, err := c.deps.Provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherrors.ErrCallbackFailed, err)
	}
	if auth.User == nil {
		return nil, fmt.Errorf("%w: provider returned no user", autherrors.ErrCallbackFailed)
	}

	c.writes.Lock()
	defer c.writes.Unlock()
	if err := c.deps.Sessions.Save(ctx, &sessions.StoredSession{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		User:         auth.User,
	}); err != nil {
		return nil, errors.Wrap(err, "[Controller.HandleCallback] Save")
	}

	c.setState(SignedIn)
	c.authCtx.setUser(auth.User)
	log.Info().Str("userId", auth.User.ID).Msg("signed in")
	return auth.User.Clone(), nil
}

// GetUser returns the current user, refreshing an expired access token first.
// No session, a malformed token or a failed refresh all yield nil (the latter
// two after clearing storage). The error is reserved for storage failures.
func (c *Controller) GetUser(ctx context.Context) (*users.User, error) {
	session, err := c.deps.Sessions.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.GetUser] Load")
	}
	if session == nil {
		c.settle(SignedOut)
		return nil, nil
	}

	claims, err := c.deps.Inspector.DecodeClaims(session.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("stored access token is unreadable, clearing session")
		c.writes.Lock()
		defer c.writes.Unlock()
		return nil, c.signOutLocally(ctx)
	}

	if !claims.IsExpired(c.nowTime(), c.config.GetExpirySkew()) {
		c.settle(SignedIn)
		return session.User.Clone(), nil
	}

	v, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return c.refresh(ctx, session.RefreshToken)
	})
	if err != nil {
		return nil, err
	}
	user, _ := v.(*users.User)
	return user.Clone(), nil
}

func (c *Controller) refresh(ctx context.Context, refreshToken string) (*users.User, error) {
	// A caller that loaded the session before another refresh completed must
	// not spend the rotated-away refresh token
	current, err := c.deps.Sessions.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.refresh] Load")
	}
	if current == nil {
		c.settle(SignedOut)
		return nil, nil
	}
	if current.RefreshToken != refreshToken {
		return current.User, nil
	}

	c.settle(Refreshing)
	auth, err := c.deps.Provider.Refresh(ctx, refreshToken)
	if err == nil && auth.User == nil {
		err = errors.New("provider returned no user")
	}

	// The session may have been replaced or cleared while the provider call
	// was in flight. The stored session wins over the refresh result.
	c.writes.Lock()
	defer c.writes.Unlock()
	latest, loadErr := c.deps.Sessions.Load(ctx)
	if loadErr != nil {
		return nil, errors.Wrap(loadErr, "[Controller.refresh] Load")
	}
	if latest == nil {
		c.settle(SignedOut)
		return nil, nil
	}
	if latest.RefreshToken != refreshToken {
		log.Debug().Msg("session changed during refresh, discarding refreshed tokens")
		c.settle(SignedIn)
		return latest.User, nil
	}

	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %w", autherrors.ErrRefreshFailed, err)).Msg("signing out")
		return nil, c.signOutLocally(ctx)
	}

	if err := c.deps.Sessions.Save(ctx, &sessions.StoredSession{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		User:         auth.User,
	}); err != nil {
		return nil, errors.Wrap(err, "[Controller.refresh] Save")
	}

	c.settle(SignedIn)
	c.authCtx.setUser(auth.User)
	log.Debug().Str("userId", auth.User.ID).Msg("session refreshed")
	return auth.User, nil
}

// signOutLocally clears storage and publishes the signed-out state. Callers
// hold c.writes.
func (c *Controller) signOutLocally(ctx context.Context) error {
	if err := c.clearSession(ctx); err != nil {
		return err
	}
	c.settle(SignedOut)
	c.authCtx.setUser(nil)
	return nil
}

// SessionID returns the provider session id from the stored access token.
// Any failure, including no session, reads as absent.
func (c *Controller) SessionID(ctx context.Context) (string, bool) {
	session, err := c.deps.Sessions.Load(ctx)
	if err != nil || session == nil {
		return "", false
	}
	claims, err := c.deps.Inspector.DecodeClaims(session.AccessToken)
	if err != nil || claims.Sid == "" {
		return "", false
	}
	return claims.Sid, true
}

// LogoutURL builds the provider's end-session URL.
func (c *Controller) LogoutURL(sessionID string) string {
	return c.config.GetAPIBaseURL() + logoutPath + "?session_id=" + url.QueryEscape(sessionID)
}

// ClearSession removes the session and any pending challenge.
func (c *Controller) ClearSession(ctx context.Context) error {
	c.writes.Lock()
	defer c.writes.Unlock()
	return c.clearSession(ctx)
}

func (c *Controller) clearSession(ctx context.Context) error {
	if err := c.deps.Sessions.Clear(ctx); err != nil {
		return errors.Wrap(err, "[Controller.ClearSession] Clear")
	}
	return nil
}

// SignOut clears local state and, when the session id is known, opens the
// provider logout URL in the background. See Wait.
func (c *Controller) SignOut(ctx context.Context) Result {
	sid, hasSid := c.SessionID(ctx)

	if err := c.ClearSession(ctx); err != nil {
		log.Err(err).Msg("sign-out failed")
		return failed(err)
	}
	c.setState(SignedOut)
	c.authCtx.setUser(nil)
	log.Info().Bool("providerLogout", hasSid).Msg("signed out")

	if hasSid {
		logoutURL := c.LogoutURL(sid)
		c.logouts.Add(1)
		go func() {
			defer c.logouts.Done()
			if err := c.deps.Opener.OpenURL(context.WithoutCancel(ctx), logoutURL); err != nil {
				log.Warn().Err(err).Msg("opening provider logout page")
			}
		}()
	}
	return succeeded()
}

// Wait blocks until background logout navigations have finished.
func (c *Controller) Wait() {
	c.logouts.Wait()
}

// Restore loads the persisted session at startup and publishes the result,
// ending the initial loading state.
func (c *Controller) Restore(ctx context.Context) *users.User {
	defer c.authCtx.endLoading()

	user, err := c.GetUser(ctx)
	if err != nil {
		log.Err(err).Msg("restoring session")
		user = nil
	}
	c.authCtx.setUser(user)
	return user
}
