package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path %s", cfg.DatabasePath)
	}
	if cfg.EphemeralTTL != 30*time.Second {
		t.Fatalf("unexpected ephemeral ttl %s", cfg.EphemeralTTL)
	}
	if cfg.Issuer != "replica-sync" || cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected auth defaults %s %s", cfg.Issuer, cfg.TokenTTL)
	}
	if cfg.LogEncoding != "json" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected log defaults %s %s", cfg.LogEncoding, cfg.LogLevel)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("REPLICA_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("REPLICA_EPHEMERAL_TTL", "5s")
	t.Setenv("REPLICA_DATABASE_PATH", "/tmp/other.db")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.SigningSecret != "from-env" {
		t.Fatalf("expected signing secret from env, got %q", cfg.SigningSecret)
	}
	if cfg.EphemeralTTL != 5*time.Second {
		t.Fatalf("expected ttl from env, got %s", cfg.EphemeralTTL)
	}
	if cfg.DatabasePath != "/tmp/other.db" {
		t.Fatalf("expected database path from env, got %s", cfg.DatabasePath)
	}
}

func TestLoadValidates(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]any
		message  string
	}{
		{name: "empty database path", settings: map[string]any{"auth.signing_secret": "s", "database.path": " "}, message: "database.path"},
		{name: "non-positive ttl", settings: map[string]any{"auth.signing_secret": "s", "ephemeral.ttl": "0s"}, message: "ephemeral.ttl"},
		{name: "unknown encoding", settings: map[string]any{"auth.signing_secret": "s", "log.encoding": "xml"}, message: "log.encoding"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}

func TestLoadWithoutSigningSecret(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("expected load to succeed without a signing secret, got %v", err)
	}
	err = cfg.ValidateAuth()
	if err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected auth validation error, got %v", err)
	}

	cfg.SigningSecret = "secret"
	if err := cfg.ValidateAuth(); err != nil {
		t.Fatalf("unexpected auth validation error: %v", err)
	}
}
