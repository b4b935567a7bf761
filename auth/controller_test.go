package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-authkit-session/auth"
	"github.com/jrsteele09/go-authkit-session/browser"
	"github.com/jrsteele09/go-authkit-session/identity/identityfake"
	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/internal/utils"
	"github.com/jrsteele09/go-authkit-session/pkce"
	"github.com/jrsteele09/go-authkit-session/securestore"
	"github.com/jrsteele09/go-authkit-session/securestore/memstore"
	"github.com/jrsteele09/go-authkit-session/sessions"
	"github.com/jrsteele09/go-authkit-session/token/jwt"
	"github.com/jrsteele09/go-authkit-session/token/jwt/jwttest"
	"github.com/jrsteele09/go-authkit-session/users"
	"github.com/stretchr/testify/require"
)

const (
	testAPIBaseURL  = "https://api.workos.test"
	testRedirectURI = "http://127.0.0.1:53682/callback"
)

var testIssuer = sync.OnceValues(func() (*jwttest.Issuer, error) {
	return jwttest.NewIssuer(testAPIBaseURL + "/user_management/client_123")
})

type testConfig struct{}

func (testConfig) GetAPIBaseURL() string        { return testAPIBaseURL }
func (testConfig) GetRedirectURI() string       { return testRedirectURI }
func (testConfig) GetExpirySkew() time.Duration { return jwt.DefaultExpirySkew }

// testFixture holds all test dependencies
type testFixture struct {
	issuer   *jwttest.Issuer
	secure   securestore.Store
	repo     *sessions.Store
	provider *identityfake.FakeProvider
	ctrl     *auth.Controller

	// authSession is what the controller's interactive sign-in calls
	authSession func(ctx context.Context, authURL, redirectURI string) browser.Result

	openedMu sync.Mutex
	opened   []string
}

type fixtureOption func(*testFixture)

func withSecureStore(s securestore.Store) fixtureOption {
	return func(f *testFixture) { f.secure = s }
}

func setupTestFixture(t *testing.T, opts ...fixtureOption) *testFixture {
	t.Helper()
	issuer, err := testIssuer()
	require.NoError(t, err)

	f := &testFixture{
		issuer: issuer,
		secure: memstore.New(),
		provider: identityfake.NewFakeProvider(issuer, &users.User{
			ID:        "user_01",
			Email:     "ada@example.com",
			FirstName: utils.Ptr("Ada"),
			LastName:  utils.Ptr("Lovelace"),
		}),
	}
	f.authSession = f.redirectWith(url.Values{"code": {"code-1"}})
	for _, opt := range opts {
		opt(f)
	}

	f.repo, err = sessions.NewStore(f.secure)
	require.NoError(t, err)
	manager, err := pkce.NewManager(f.provider, f.repo)
	require.NoError(t, err)

	f.ctrl, err = auth.NewController(auth.Deps{
		Provider:  f.provider,
		Sessions:  f.repo,
		PKCE:      manager,
		Inspector: jwt.NewInspector(),
		AuthSession: browser.AuthSessionFunc(func(ctx context.Context, authURL, redirectURI string) browser.Result {
			return f.authSession(ctx, authURL, redirectURI)
		}),
		Opener: browser.OpenerFunc(func(_ context.Context, u string) error {
			f.openedMu.Lock()
			defer f.openedMu.Unlock()
			f.opened = append(f.opened, u)
			return nil
		}),
	}, testConfig{})
	require.NoError(t, err)
	return f
}

// redirectWith simulates a browser that lands on the redirect URI with query,
// echoing the authorization request's state.
func (f *testFixture) redirectWith(query url.Values) func(context.Context, string, string) browser.Result {
	return func(_ context.Context, authURL, redirectURI string) browser.Result {
		u, err := url.Parse(authURL)
		if err != nil {
			return browser.Failed(err)
		}
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		if q.Get("state") == "" {
			q.Set("state", u.Query().Get("state"))
		}
		return browser.Success(redirectURI + "?" + q.Encode())
	}
}

func (f *testFixture) storeSession(t *testing.T, ttl time.Duration, sid string) *sessions.StoredSession {
	t.Helper()
	token, err := f.issuer.AccessToken("user_01", sid, ttl)
	require.NoError(t, err)
	s := &sessions.StoredSession{
		AccessToken:  token,
		RefreshToken: "refresh-stored",
		User:         &users.User{ID: "user_01", Email: "stored@example.com"},
	}
	require.NoError(t, f.repo.Save(context.Background(), s))
	return s
}

func (f *testFixture) openedURLs() []string {
	f.openedMu.Lock()
	defer f.openedMu.Unlock()
	return append([]string(nil), f.opened...)
}

func requireNoSession(t *testing.T, f *testFixture) {
	t.Helper()
	s, err := f.repo.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestController_SignIn(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res := f.ctrl.SignIn(ctx)
	require.Equal(t, auth.Result{Success: true}, res)
	require.Equal(t, auth.SignedIn, f.ctrl.State())

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, f.provider.User, stored.User)
	require.NotEmpty(t, stored.AccessToken)
	require.NotEmpty(t, stored.RefreshToken)

	pending, err := f.repo.LoadPKCE(ctx)
	require.NoError(t, err)
	require.Nil(t, pending)

	require.Equal(t, "code-1", f.provider.LastCode)
	require.Equal(t, "verifier-1", f.provider.LastCodeVerifier)
	require.Equal(t, "ada@example.com", f.ctrl.AuthContext().User().Email)
}

func TestController_SignInCancelled(t *testing.T) {
	tests := []struct {
		name   string
		result browser.Result
	}{
		{"user dismissed", browser.Cancelled()},
		{"success without url", browser.Success("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.authSession = func(context.Context, string, string) browser.Result { return tt.result }

			res := f.ctrl.SignIn(context.Background())
			require.False(t, res.Success)
			require.Equal(t, "Authentication was cancelled", res.Error)
			require.ErrorIs(t, res.Err, autherrors.ErrAuthCancelled)
			require.Equal(t, auth.SignedOut, f.ctrl.State())
			requireNoSession(t, f)
			require.Zero(t, f.provider.ExchangeCalls)
		})
	}
}

func TestController_SignInAuthSessionFailed(t *testing.T) {
	f := setupTestFixture(t)
	f.authSession = func(context.Context, string, string) browser.Result {
		return browser.Failed(autherrors.ErrAuthSessionTimeout)
	}

	res := f.ctrl.SignIn(context.Background())
	require.False(t, res.Success)
	require.Equal(t, autherrors.ErrAuthSessionTimeout.Error(), res.Error)
	require.Equal(t, auth.SignedOut, f.ctrl.State())
	requireNoSession(t, f)
}

func TestController_SignInProviderError(t *testing.T) {
	f := setupTestFixture(t)
	f.authSession = f.redirectWith(url.Values{"error": {"access_denied"}, "error_description": {"User denied access"}})

	res := f.ctrl.SignIn(context.Background())
	require.False(t, res.Success)
	require.Equal(t, "User denied access", res.Error)

	var pe *autherrors.ProviderError
	require.ErrorAs(t, res.Err, &pe)
	require.Equal(t, "access_denied", pe.Code)
	requireNoSession(t, f)
}

func TestController_SignInExchangeFails(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.ExchangeErr = errors.New("invalid_grant")

	res := f.ctrl.SignIn(context.Background())
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, autherrors.ErrCallbackFailed)
	require.Contains(t, res.Error, "invalid_grant")
	require.Equal(t, auth.SignedOut, f.ctrl.State())
	requireNoSession(t, f)
}

func TestController_SignInRecoversFromPanic(t *testing.T) {
	f := setupTestFixture(t)
	f.authSession = func(context.Context, string, string) browser.Result { panic("webview crashed") }

	res := f.ctrl.SignIn(context.Background())
	require.False(t, res.Success)
	require.Contains(t, res.Error, "webview crashed")
	require.Equal(t, auth.SignedOut, f.ctrl.State())
}

func TestController_SignInSingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	redirect := f.redirectWith(url.Values{"code": {"code-1"}})
	var opens int
	f.authSession = func(ctx context.Context, authURL, redirectURI string) browser.Result {
		opens++
		close(entered)
		<-release
		return redirect(ctx, authURL, redirectURI)
	}

	results := make(chan auth.Result, 2)
	go func() { results <- f.ctrl.SignIn(context.Background()) }()
	<-entered
	require.Equal(t, auth.Authenticating, f.ctrl.State())

	go func() { results <- f.ctrl.SignIn(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.True(t, (<-results).Success)
	require.True(t, (<-results).Success)
	require.Equal(t, 1, opens)
	require.Equal(t, 1, f.provider.ExchangeCalls)
}

func TestController_HandleCallbackPKCEErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending challenge", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.HandleCallback(ctx, "code-1")
		require.ErrorIs(t, err, autherrors.ErrNoPendingChallenge)
		require.Zero(t, f.provider.ExchangeCalls)
	})

	t.Run("expired challenge", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.repo.SavePKCE(ctx, &sessions.PkceState{
			CodeVerifier: "old",
			ExpiresAt:    time.Now().Add(-time.Second).UnixMilli(),
		}))

		_, err := f.ctrl.HandleCallback(ctx, "code-1")
		require.ErrorIs(t, err, autherrors.ErrChallengeExpired)

		_, err = f.ctrl.HandleCallback(ctx, "code-1")
		require.ErrorIs(t, err, autherrors.ErrNoPendingChallenge)
		requireNoSession(t, f)
	})

	t.Run("state mismatch", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.SignInURL(ctx)
		require.NoError(t, err)

		_, err = f.ctrl.HandleCallback(ctx, "code-1", auth.WithState("forged"))
		require.ErrorIs(t, err, autherrors.ErrStateMismatch)
		requireNoSession(t, f)
	})

	t.Run("second use of the same code", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.SignInURL(ctx)
		require.NoError(t, err)

		_, err = f.ctrl.HandleCallback(ctx, "code-1")
		require.NoError(t, err)
		_, err = f.ctrl.HandleCallback(ctx, "code-1")
		require.ErrorIs(t, err, autherrors.ErrNoPendingChallenge)
		require.Equal(t, 1, f.provider.ExchangeCalls)
	})
}

func TestController_HandleCallbackExchangeFailureKeepsExistingSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	existing := f.storeSession(t, time.Hour, "session_old")
	_, err := f.ctrl.SignInURL(ctx)
	require.NoError(t, err)

	f.provider.ExchangeErr = errors.New("boom")
	_, err = f.ctrl.HandleCallback(ctx, "code-1")
	require.ErrorIs(t, err, autherrors.ErrCallbackFailed)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, existing, stored)
}

func TestController_CompleteRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("missing code", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.CompleteRedirect(ctx, testRedirectURI+"?state=abc")
		require.ErrorIs(t, err, autherrors.ErrNoAuthorizationCode)
		require.Equal(t, "No authorization code received", err.Error())
	})

	t.Run("provider error without description", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.CompleteRedirect(ctx, testRedirectURI+"?error=access_denied")
		require.EqualError(t, err, "access_denied")
	})

	t.Run("unparsable", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.CompleteRedirect(ctx, "http://[::1")
		require.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.ctrl.SignInURL(ctx)
		require.NoError(t, err)

		user, err := f.ctrl.CompleteRedirect(ctx, testRedirectURI+"?code=code-9&state=state-1")
		require.NoError(t, err)
		require.Equal(t, "user_01", user.ID)
		require.Equal(t, "code-9", f.provider.LastCode)
	})
}

func TestController_GetUserWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	user, err := f.ctrl.GetUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)
	require.Equal(t, auth.SignedOut, f.ctrl.State())
	exchange, refresh := f.provider.Calls()
	require.Zero(t, exchange+refresh)
}

func TestController_GetUserValidToken(t *testing.T) {
	f := setupTestFixture(t)
	stored := f.storeSession(t, time.Minute, "session_01")

	user, err := f.ctrl.GetUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, stored.User, user)
	require.Equal(t, auth.SignedIn, f.ctrl.State())
	require.Zero(t, f.provider.RefreshCalls)
}

func TestController_GetUserRefreshesExpiredToken(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{"expired", -time.Hour},
		{"inside skew window", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			ctx := context.Background()
			f.storeSession(t, tt.ttl, "session_01")

			user, err := f.ctrl.GetUser(ctx)
			require.NoError(t, err)
			require.Equal(t, f.provider.User, user)
			require.Equal(t, 1, f.provider.RefreshCalls)
			require.Equal(t, "refresh-stored", f.provider.LastRefreshToken)
			require.Equal(t, auth.SignedIn, f.ctrl.State())

			stored, err := f.repo.Load(ctx)
			require.NoError(t, err)
			require.NotEqual(t, "refresh-stored", stored.RefreshToken)
			require.Equal(t, "ada@example.com", stored.User.Email)
		})
	}
}

func TestController_GetUserRefreshFailureSignsOut(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.storeSession(t, -time.Minute, "session_01")
	require.NoError(t, f.repo.SavePKCE(ctx, &sessions.PkceState{CodeVerifier: "v", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}))
	f.provider.RefreshErr = errors.New("invalid_grant")

	user, err := f.ctrl.GetUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)
	require.Equal(t, auth.SignedOut, f.ctrl.State())

	requireNoSession(t, f)
	pending, err := f.repo.LoadPKCE(ctx)
	require.NoError(t, err)
	require.Nil(t, pending)

	sid, ok := f.ctrl.SessionID(ctx)
	require.False(t, ok)
	require.Empty(t, sid)
}

func TestController_GetUserMalformedToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Save(ctx, &sessions.StoredSession{
		AccessToken:  "not-a-jwt",
		RefreshToken: "refresh",
		User:         &users.User{ID: "user_01"},
	}))

	user, err := f.ctrl.GetUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)
	requireNoSession(t, f)
	require.Zero(t, f.provider.RefreshCalls)
}

func TestController_GetUserConcurrentRefreshRotatesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.storeSession(t, -time.Minute, "session_01")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := f.ctrl.GetUser(context.Background())
			if err == nil && user == nil {
				err = errors.New("signed out")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	_, refreshes := f.provider.Calls()
	require.Equal(t, 1, refreshes)
}

func TestController_RefreshDoesNotOverwriteNewerSignIn(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.storeSession(t, -time.Minute, "session_01")

	refreshing := make(chan struct{})
	release := make(chan struct{})
	f.provider.AfterRefresh = func() {
		close(refreshing)
		<-release
	}

	type getUserResult struct {
		user *users.User
		err  error
	}
	done := make(chan getUserResult, 1)
	go func() {
		user, err := f.ctrl.GetUser(ctx)
		done <- getUserResult{user, err}
	}()

	select {
	case <-refreshing:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}

	// A different user signs in while the refresh is still in flight
	f.provider.User = &users.User{ID: "user_02", Email: "grace@example.com"}
	_, err := f.ctrl.SignInURL(ctx)
	require.NoError(t, err)
	signedIn, err := f.ctrl.HandleCallback(ctx, "code-2")
	require.NoError(t, err)
	require.Equal(t, "user_02", signedIn.ID)
	afterSignIn, err := f.repo.Load(ctx)
	require.NoError(t, err)

	close(release)
	var res getUserResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GetUser did not return")
	}
	require.NoError(t, res.err)
	require.Equal(t, "user_02", res.user.ID)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, afterSignIn, stored)
	require.Equal(t, "user_02", f.ctrl.AuthContext().User().ID)
	require.Equal(t, auth.SignedIn, f.ctrl.State())
}

func TestController_RefreshFailureAfterNewerSignInKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.storeSession(t, -time.Minute, "session_01")
	f.provider.RefreshErr = errors.New("invalid_grant")

	refreshing := make(chan struct{})
	release := make(chan struct{})
	f.provider.AfterRefresh = func() {
		close(refreshing)
		<-release
	}

	done := make(chan *users.User, 1)
	go func() {
		user, _ := f.ctrl.GetUser(ctx)
		done <- user
	}()
	<-refreshing

	f.provider.RefreshErr = nil
	_, err := f.ctrl.SignInURL(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.HandleCallback(ctx, "code-2")
	require.NoError(t, err)

	close(release)
	user := <-done
	require.NotNil(t, user)
	require.Equal(t, "ada@example.com", user.Email)

	stored, err := f.repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

type failingGetStore struct {
	securestore.Store
	err error
}

func (s failingGetStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, s.err
}

func TestController_GetUserStoreFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	f := setupTestFixture(t, withSecureStore(failingGetStore{Store: memstore.New(), err: boom}))

	_, err := f.ctrl.GetUser(context.Background())
	require.ErrorIs(t, err, boom)

	sid, ok := f.ctrl.SessionID(context.Background())
	require.False(t, ok)
	require.Empty(t, sid)
}

func TestController_SessionID(t *testing.T) {
	ctx := context.Background()

	t.Run("with sid", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeSession(t, time.Hour, "session_01")
		sid, ok := f.ctrl.SessionID(ctx)
		require.True(t, ok)
		require.Equal(t, "session_01", sid)
	})

	t.Run("expired token still has sid", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeSession(t, -time.Hour, "session_01")
		sid, ok := f.ctrl.SessionID(ctx)
		require.True(t, ok)
		require.Equal(t, "session_01", sid)
	})

	t.Run("token without sid", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeSession(t, time.Hour, "")
		_, ok := f.ctrl.SessionID(ctx)
		require.False(t, ok)
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, ok := f.ctrl.SessionID(ctx)
		require.False(t, ok)
	})
}

func TestController_LogoutURL(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t,
		"https://api.workos.test/user_management/sessions/logout?session_id=session_01",
		f.ctrl.LogoutURL("session_01"))
	require.Equal(t,
		"https://api.workos.test/user_management/sessions/logout?session_id=a%26b%3Dc",
		f.ctrl.LogoutURL("a&b=c"))
}

func TestController_SignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("opens provider logout when sid is known", func(t *testing.T) {
		f := setupTestFixture(t)
		require.True(t, f.ctrl.SignIn(ctx).Success)

		res := f.ctrl.SignOut(ctx)
		f.ctrl.Wait()
		require.Equal(t, auth.Result{Success: true}, res)
		require.Equal(t, auth.SignedOut, f.ctrl.State())
		require.Nil(t, f.ctrl.AuthContext().User())
		requireNoSession(t, f)
		require.Equal(t, []string{f.ctrl.LogoutURL("session_01")}, f.openedURLs())
	})

	t.Run("local only without sid", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeSession(t, time.Hour, "")

		res := f.ctrl.SignOut(ctx)
		f.ctrl.Wait()
		require.True(t, res.Success)
		requireNoSession(t, f)
		require.Empty(t, f.openedURLs())
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		res := f.ctrl.SignOut(ctx)
		f.ctrl.Wait()
		require.True(t, res.Success)
		require.Empty(t, f.openedURLs())
	})
}

func TestController_Restore(t *testing.T) {
	f := setupTestFixture(t)
	f.storeSession(t, time.Hour, "session_01")
	authCtx := f.ctrl.AuthContext()
	require.True(t, authCtx.Loading())
	require.Nil(t, authCtx.User())

	user := f.ctrl.Restore(context.Background())
	require.NotNil(t, user)
	require.False(t, authCtx.Loading())
	require.Equal(t, "stored@example.com", authCtx.User().Email)
	require.Equal(t, auth.SignedIn, f.ctrl.State())
}

func TestNewController_Validation(t *testing.T) {
	_, err := auth.NewController(auth.Deps{}, testConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Provider is required")
}

func TestState_String(t *testing.T) {
	require.Equal(t, "signed-out", auth.SignedOut.String())
	require.Equal(t, "authenticating", auth.Authenticating.String())
	require.Equal(t, "signed-in", auth.SignedIn.String())
	require.Equal(t, "refreshing", auth.Refreshing.String())
}
