package auth

import (
	"net/url"

	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
)

// Redirect query parameters sent by the identity provider to the redirect URI.
const (
	// ParamCode is the single-use authorization code.
	// Example: http://127.0.0.1:53682/callback?code=01HX...&state=...
	ParamCode = "code"

	// ParamState echoes the state sent with the authorization request.
	ParamState = "state"

	// ParamError is the OAuth error code, e.g. "access_denied".
	ParamError = "error"

	// ParamErrorDescription is the human readable error, when the provider sends one.
	ParamErrorDescription = "error_description"
)

// Redirect is the parsed query of a provider redirect.
type Redirect struct {
	Code  string
	State string
	// Err is set when the provider reported an error; Code is then ignored
	Err *autherrors.ProviderError
}

// ParseRedirect reads the callback parameters from a redirect query.
func ParseRedirect(q url.Values) Redirect {
	r := Redirect{
		Code:  q.Get(ParamCode),
		State: q.Get(ParamState),
	}
	if code := q.Get(ParamError); code != "" {
		r.Err = &autherrors.ProviderError{
			Code:        code,
			Description: q.Get(ParamErrorDescription),
		}
	}
	return r
}

// CallbackOption configures HandleCallback.
type CallbackOption func(*callbackOptions)

type callbackOptions struct {
	state string
}

// WithState passes the redirect's state parameter so it can be checked
// against the pending sign-in.
func WithState(state string) CallbackOption {
	return func(o *callbackOptions) {
		o.state = state
	}
}

// CallbackState returns the state carried by opts, "" when none was given.
func CallbackState(opts ...CallbackOption) string {
	var o callbackOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.state
}
