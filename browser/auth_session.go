package browser

import (
	"context"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/internal/loopback"
	"github.com/rs/zerolog/log"
)

// DefaultAuthSessionTimeout bounds how long the user has to finish signing in.
const DefaultAuthSessionTimeout = 5 * time.Minute

type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultCancelled
	ResultFailed
)

func (t ResultType) String() string {
	switch t {
	case ResultSuccess:
		return "success"
	case ResultCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Result of an interactive auth session. URL is set for ResultSuccess and Err
// for ResultFailed.
type Result struct {
	Type ResultType
	URL  string
	Err  error
}

func Success(url string) Result {
	return Result{Type: ResultSuccess, URL: url}
}

func Cancelled() Result {
	return Result{Type: ResultCancelled}
}

func Failed(err error) Result {
	return Result{Type: ResultFailed, Err: err}
}

// AuthSession shows the authorization page and reports how the user left it.
type AuthSession interface {
	OpenAuthSession(ctx context.Context, authURL, redirectURI string) Result
}

// AuthSessionFunc adapts a function to AuthSession.
type AuthSessionFunc func(ctx context.Context, authURL, redirectURI string) Result

func (f AuthSessionFunc) OpenAuthSession(ctx context.Context, authURL, redirectURI string) Result {
	return f(ctx, authURL, redirectURI)
}

var _ AuthSession = (*LoopbackAuthSession)(nil)

// LoopbackAuthSession listens on an http://127.0.0.1 redirect URI, opens the
// browser and waits for the first redirect.
type LoopbackAuthSession struct {
	opener  Opener
	timeout time.Duration
	ready   func(addr string)
}

type LoopbackOption func(*LoopbackAuthSession)

func WithTimeout(d time.Duration) LoopbackOption {
	return func(s *LoopbackAuthSession) {
		s.timeout = d
	}
}

// WithReady is called with the bound address before the browser opens.
func WithReady(f func(addr string)) LoopbackOption {
	return func(s *LoopbackAuthSession) {
		s.ready = f
	}
}

func NewLoopbackAuthSession(opener Opener, opts ...LoopbackOption) (*LoopbackAuthSession, error) {
	if opener == nil {
		return nil, fmt.Errorf("[NewLoopbackAuthSession] opener is required")
	}
	s := &LoopbackAuthSession{
		opener:  opener,
		timeout: DefaultAuthSessionTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *LoopbackAuthSession) OpenAuthSession(ctx context.Context, authURL, redirectURI string) Result {
	hits := make(chan string, 1)
	srv, err := loopback.Listen(redirectURI, func(u string) {
		select {
		case hits <- u:
		default:
		}
	})
	if err != nil {
		return Failed(err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Err(err).Msg("callback listener stopped")
		}
	}()
	defer func() {
		if err := srv.Shutdown(); err != nil {
			log.Err(err).Msg("shutting down callback listener")
		}
	}()

	if s.ready != nil {
		s.ready(srv.Addr())
	}
	if err := s.opener.OpenURL(ctx, authURL); err != nil {
		return Failed(err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case u := <-hits:
		return Success(u)
	case <-ctx.Done():
		return Cancelled()
	case <-timer.C:
		return Failed(autherrors.ErrAuthSessionTimeout)
	}
}
