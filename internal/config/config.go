package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	OAuthConfig
	StoreConfig
	LogConfig
}

type EnvConfig interface {
	GetClientID() string
	GetAPIBaseURL() string
	GetRedirectURI() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Store
	Logging
}

// Option overrides a value after the environment has been parsed (CLI flags).
type Option func(*options)

type options struct {
	envFile   string
	storePath string
	storeKind StoreBackend
	logLevel  string
}

// WithEnvFile loads variables from the given dotenv file instead of ./.env
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

func WithStorePath(path string) Option {
	return func(o *options) { o.storePath = path }
}

func WithStoreBackend(backend StoreBackend) Option {
	return func(o *options) { o.storeKind = backend }
}

func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = level }
}

// New loads an optional .env file and parses the environment into a Config.
// Variables already set in the process environment win over the file.
func New(opts ...Option) (Config, error) {
	o := options{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}

	var c mainConfig
	if err := ParseEnv(&c); err != nil {
		return nil, err
	}
	if o.storePath != "" {
		c.Store.Path = o.storePath
	}
	if o.storeKind != "" {
		c.Store.Backend = o.storeKind
	}
	if o.logLevel != "" {
		c.Logging.Level = o.logLevel
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c mainConfig) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%s is required", clientIDEnvVar)
	}
	if c.PkceTTL <= 0 {
		return fmt.Errorf("AUTHKIT_PKCE_TTL must be positive, got %s", c.PkceTTL)
	}
	switch c.Backend {
	case StoreBackendMemory, StoreBackendFile, StoreBackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if c.Backend != StoreBackendMemory && c.Passphrase == "" {
		return fmt.Errorf("AUTHKIT_STORE_PASSPHRASE is required for the %s store", c.Backend)
	}
	return nil
}
