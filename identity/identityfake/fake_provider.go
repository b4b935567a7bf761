package identityfake

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-authkit-session/identity"
	"github.com/jrsteele09/go-authkit-session/token/jwt/jwttest"
	"github.com/jrsteele09/go-authkit-session/users"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-process identity provider. Access tokens are real
// RS256 JWTs minted by the issuer, so claim decoding works unchanged.
type FakeProvider struct {
	lock   sync.Mutex
	issuer *jwttest.Issuer
	seq    int

	User      *users.User
	SessionID string
	TokenTTL  time.Duration

	AuthorizeErr error
	ExchangeErr  error
	RefreshErr   error

	// BeforeExchange runs inside ExchangeCode, before the result is produced
	BeforeExchange func()
	// AfterRefresh runs inside Refresh once the new tokens are minted, before they are returned
	AfterRefresh func()

	ExchangeCalls    int
	RefreshCalls     int
	LastCode         string
	LastCodeVerifier string
	LastRefreshToken string
}

func NewFakeProvider(issuer *jwttest.Issuer, user *users.User) *FakeProvider {
	return &FakeProvider{
		issuer:    issuer,
		User:      user,
		SessionID: "session_01",
		TokenTTL:  time.Hour,
	}
}

func (p *FakeProvider) AuthorizationURL(_ context.Context) (*identity.AuthorizationURL, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.AuthorizeErr != nil {
		return nil, p.AuthorizeErr
	}
	p.seq++
	state := fmt.Sprintf("state-%d", p.seq)
	return &identity.AuthorizationURL{
		URL:          "https://fake.authkit.test/user_management/authorize?state=" + url.QueryEscape(state),
		CodeVerifier: fmt.Sprintf("verifier-%d", p.seq),
		State:        state,
	}, nil
}

func (p *FakeProvider) ExchangeCode(_ context.Context, code, codeVerifier string) (*identity.Authentication, error) {
	p.lock.Lock()
	before := p.BeforeExchange
	p.lock.Unlock()
	if before != nil {
		before()
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.ExchangeCalls++
	p.LastCode = code
	p.LastCodeVerifier = codeVerifier
	if p.ExchangeErr != nil {
		return nil, p.ExchangeErr
	}
	return p.authentication()
}

func (p *FakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.Authentication, error) {
	p.lock.Lock()
	p.RefreshCalls++
	p.LastRefreshToken = refreshToken
	var (
		auth *identity.Authentication
		err  = p.RefreshErr
	)
	if err == nil {
		auth, err = p.authentication()
	}
	after := p.AfterRefresh
	p.lock.Unlock()

	if after != nil {
		after()
	}
	return auth, err
}

func (p *FakeProvider) Calls() (exchange, refresh int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.ExchangeCalls, p.RefreshCalls
}

func (p *FakeProvider) authentication() (*identity.Authentication, error) {
	p.seq++
	access, err := p.issuer.AccessToken(p.User.ID, p.SessionID, p.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &identity.Authentication{
		AccessToken:  access,
		RefreshToken: fmt.Sprintf("refresh-%d", p.seq),
		User:         p.User.Clone(),
	}, nil
}
