package deeplink

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-authkit-session/auth"
	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
	"github.com/jrsteele09/go-authkit-session/users"
	"github.com/rs/zerolog/log"
)

// Outcome is what Handle did with one URL.
type Outcome int

const (
	OutcomeInvalid Outcome = iota
	OutcomeIgnored
	OutcomeProviderError
	OutcomeMissingCode
	OutcomeSignedIn
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInvalid:
		return "invalid"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeProviderError:
		return "provider-error"
	case OutcomeMissingCode:
		return "missing-code"
	case OutcomeSignedIn:
		return "signed-in"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CallbackHandler completes a sign-in from an authorization code.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, code string, opts ...auth.CallbackOption) (*users.User, error)
}

// Listener routes incoming links on the callback path to the CallbackHandler.
// Errors are logged and never escape; a provider error leaves any existing
// session untouched.
type Listener struct {
	source       Source
	handler      CallbackHandler
	callbackPath string
	onOutcome    func(Outcome)
}

type ListenerOption func(*Listener)

// WithOutcomeHandler is called after every handled URL.
func WithOutcomeHandler(f func(Outcome)) ListenerOption {
	return func(l *Listener) {
		l.onOutcome = f
	}
}

// NewListener accepts links whose callback path matches redirectURI's.
func NewListener(source Source, handler CallbackHandler, redirectURI string, opts ...ListenerOption) (*Listener, error) {
	if source == nil {
		return nil, errors.New("[NewListener] source is required")
	}
	if handler == nil {
		return nil, errors.New("[NewListener] handler is required")
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		source:       source,
		handler:      handler,
		callbackPath: CallbackPath(u),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CallbackPath normalizes the part of a URL that identifies the callback:
// host and path for custom schemes ("myapp://callback" is "callback"), the
// path alone for http(s). Surrounding slashes are trimmed.
func CallbackPath(u *url.URL) string {
	p := u.Path
	if u.Scheme != "http" && u.Scheme != "https" {
		p = u.Host + u.Path
	}
	return strings.Trim(p, "/")
}

// Run handles the initial link, then every received link until ctx is done
// or the source closes.
func (l *Listener) Run(ctx context.Context) error {
	if initial := l.source.InitialURL(); initial != "" {
		l.Handle(ctx, initial)
	}

	events, err := l.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-events:
			if !ok {
				return nil
			}
			l.Handle(ctx, u)
		}
	}
}

func (l *Listener) Handle(ctx context.Context, rawURL string) Outcome {
	outcome := l.handle(ctx, rawURL)
	if l.onOutcome != nil {
		l.onOutcome(outcome)
	}
	return outcome
}

func (l *Listener) handle(ctx context.Context, rawURL string) Outcome {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		log.Warn().Err(err).Msg("ignoring unparsable link")
		return OutcomeInvalid
	}
	if CallbackPath(u) != l.callbackPath {
		log.Debug().Str("path", CallbackPath(u)).Msg("ignoring link, not the auth callback")
		return OutcomeIgnored
	}

	redirect := auth.ParseRedirect(u.Query())
	if redirect.Err != nil {
		log.Warn().Str("error", redirect.Err.Code).Str("description", redirect.Err.Description).Msg("identity provider returned an error")
		return OutcomeProviderError
	}
	if redirect.Code == "" {
		log.Warn().Err(autherrors.ErrNoAuthorizationCode).Msg("auth callback")
		return OutcomeMissingCode
	}

	user, err := l.handler.HandleCallback(ctx, redirect.Code, auth.WithState(redirect.State))
	if err != nil {
		log.Err(err).Msg("auth callback failed")
		return OutcomeFailed
	}
	ev := log.Info()
	if user != nil {
		ev = ev.Str("userId", user.ID)
	}
	ev.Msg("signed in from callback link")
	return OutcomeSignedIn
}
