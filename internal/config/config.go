package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/supervisor"
)

// Config represents the application configuration structure
type Config struct {
	Environment string `default:"prod"`

	PortalListenAddress string `default:"localhost:5173" split_words:"true"`
	PortalBaseAddress   string `default:"http://localhost:5173" split_words:"true"`

	ResourceAPIEnabled       bool   `default:"true" split_words:"true"`
	ResourceAPIListenAddress string `default:"localhost:8000" split_words:"true"`
	ResourceAPIBaseAddress   string `default:"http://localhost:8000" split_words:"true"`
	ResourceAPIAllowedOrigin string `default:"http://localhost:5173" split_words:"true"`

	OIDCIssuerURL         string   `default:"http://localhost:8080/realms/myrealm" split_words:"true"`
	OIDCClientID          string   `default:"react-client" split_words:"true"`
	OIDCClientSecret      string   `split_words:"true"`
	OIDCScopes            []string `default:"openid,profile,email" split_words:"true"`
	OIDCSigningAlgorithms []string `default:"RS256" split_words:"true"`

	OnLoad             string        `default:"login-required" split_words:"true"`
	PKCEMethod         string        `default:"S256" split_words:"true"`
	CheckLoginIframe   bool          `default:"false" split_words:"true"`
	RefreshInterval    time.Duration `default:"10s" split_words:"true"`
	RefreshMinValidity time.Duration `default:"30s" split_words:"true"`
	LoginFlowLifetime  time.Duration `default:"10m" split_words:"true"`
	APIRetryPolicy     string        `default:"none" split_words:"true"`
	OpenBrowser        bool          `default:"true" split_words:"true"`

	StorageDriver       string        `default:"inmem" split_words:"true"`
	StorageCacheEnabled bool          `default:"false" split_words:"true"`
	StorageCacheTTL     time.Duration `default:"5m" split_words:"true"`
	PostgresDSN         string        `split_words:"true"`
}

// LoadFromEnv loads a new configuration structure using environment variables and an optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	// Load a new configuration structure using environment variables
	config := new(Config)
	if err := envconfig.Process("portal", config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// IsEnvProduction returns whether the application runs in production mode
func (config *Config) IsEnvProduction() bool {
	return strings.ToLower(config.Environment) == "prod"
}

// Validate checks the configuration values that can not be expressed by struct tags alone
func (config *Config) Validate() error {
	if err := config.InitOptions().Validate(); err != nil {
		return err
	}
	if config.RefreshInterval <= 0 {
		return errors.New("the refresh interval has to be positive")
	}
	if config.RefreshMinValidity <= 0 {
		return errors.New("the refresh minimum validity has to be positive")
	}
	switch supervisor.RetryPolicy(config.APIRetryPolicy) {
	case supervisor.RetryNone, supervisor.RetryRefreshOnce:
	default:
		return fmt.Errorf("unknown API retry policy %q", config.APIRetryPolicy)
	}
	switch config.StorageDriver {
	case "inmem":
	case "postgres":
		if config.PostgresDSN == "" {
			return errors.New("the postgres storage driver requires a DSN")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.StorageDriver)
	}
	for name, raw := range map[string]string{
		"portal base address":       config.PortalBaseAddress,
		"resource API base address": config.ResourceAPIBaseAddress,
		"OIDC issuer URL":           config.OIDCIssuerURL,
	} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// InitOptions returns the options the identity client gets initialized with
func (config *Config) InitOptions() identity.InitOptions {
	return identity.InitOptions{
		OnLoad:           config.OnLoad,
		PKCEMethod:       config.PKCEMethod,
		CheckLoginIframe: config.CheckLoginIframe,
	}
}

// SupervisorOptions returns the tuning options of the session supervisor
func (config *Config) SupervisorOptions() supervisor.Options {
	return supervisor.Options{
		RefreshInterval: config.RefreshInterval,
		MinValidity:     config.RefreshMinValidity,
		RetryPolicy:     supervisor.RetryPolicy(config.APIRetryPolicy),
	}
}

// PortalCallbackURL returns the URL the identity provider redirects to after a login
func (config *Config) PortalCallbackURL() string {
	return strings.TrimSuffix(config.PortalBaseAddress, "/") + "/callback"
}

// ProtectedEndpoint returns the URL of the resource API endpoint the portal calls
func (config *Config) ProtectedEndpoint() string {
	return strings.TrimSuffix(config.ResourceAPIBaseAddress, "/") + "/protected"
}
