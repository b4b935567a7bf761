package config

import "strings"

const clientIDEnvVar = "WORKOS_CLIENT_ID"

type EnvVars struct {
	ClientID    string `env:"WORKOS_CLIENT_ID"`
	APIBaseURL  string `env:"WORKOS_API_BASE_URL" envDefault:"https://api.workos.com"`
	RedirectURI string `env:"AUTHKIT_REDIRECT_URI" envDefault:"http://127.0.0.1:53682/callback"`
}

var _ EnvConfig = EnvVars{}

// GetClientID returns the WorkOS client id. Public PKCE clients carry no secret.
func (e EnvVars) GetClientID() string {
	return e.ClientID
}

// GetAPIBaseURL returns the identity provider base URL without a trailing slash
// (e.g., "https://api.workos.com")
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(e.APIBaseURL, "/")
}

func (e EnvVars) GetRedirectURI() string {
	return e.RedirectURI
}
