package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "REPLICA"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "replica.db"
	defaultLogLevel       = "info"
	defaultLogEncoding    = "json"
	defaultEphemeralTTL   = 30 * time.Second
	defaultIssuer         = "replica-sync"
	defaultTokenTTL       = 12 * time.Hour
	defaultHeartbeatEvery = 15 * time.Second
)

// AppConfig captures runtime configuration for the sync service.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	LogEncoding       string
	EphemeralTTL      time.Duration
	SigningSecret     string
	Issuer            string
	TokenTTL          time.Duration
	HeartbeatInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.heartbeat_interval", defaultHeartbeatEvery)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("ephemeral.ttl", defaultEphemeralTTL)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		LogEncoding:       configViper.GetString("log.encoding"),
		EphemeralTTL:      configViper.GetDuration("ephemeral.ttl"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		Issuer:            configViper.GetString("auth.issuer"),
		TokenTTL:          configViper.GetDuration("auth.token_ttl"),
		HeartbeatInterval: configViper.GetDuration("http.heartbeat_interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// ValidateAuth reports whether tokens can be issued and verified. Commands
// that never touch tokens skip it.
func (c AppConfig) ValidateAuth() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.EphemeralTTL <= 0 {
		return fmt.Errorf("ephemeral.ttl must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogEncoding)) {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", c.LogEncoding)
	}
	return nil
}
