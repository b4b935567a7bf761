package config

import "time"

type OAuthConfig interface {
	GetPkceTTL() time.Duration
	GetExpirySkew() time.Duration
	GetAuthSessionTimeout() time.Duration
	GetProviderHint() string
	GetIssuer() string
}

type OAuth struct {
	PkceTTL            time.Duration `env:"AUTHKIT_PKCE_TTL" envDefault:"10m"`
	ExpirySkew         time.Duration `env:"AUTHKIT_EXPIRY_SKEW" envDefault:"10s"`
	AuthSessionTimeout time.Duration `env:"AUTHKIT_AUTH_SESSION_TIMEOUT" envDefault:"5m"`
	ProviderHint       string        `env:"AUTHKIT_PROVIDER" envDefault:"authkit"`
	Issuer             string        `env:"WORKOS_ISSUER"`
}

var _ OAuthConfig = OAuth{}

// GetPkceTTL is how long a pending sign-in may wait for its callback.
func (o OAuth) GetPkceTTL() time.Duration {
	return o.PkceTTL
}

func (o OAuth) GetExpirySkew() time.Duration {
	return o.ExpirySkew
}

func (o OAuth) GetAuthSessionTimeout() time.Duration {
	return o.AuthSessionTimeout
}

func (o OAuth) GetProviderHint() string {
	return o.ProviderHint
}

// GetIssuer returns the expected access token issuer. Empty means
// <base>/user_management/<client_id>.
func (o OAuth) GetIssuer() string {
	return o.Issuer
}
