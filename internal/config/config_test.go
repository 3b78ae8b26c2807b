package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("BACKEND_URL")
	os.Unsetenv("SESSION_BACKEND")
	os.Unsetenv("ENV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("expected default port 3000, got %s", cfg.Port)
	}
	if cfg.BackendURL != "http://localhost:8081/api" {
		t.Errorf("expected default backend url, got %s", cfg.BackendURL)
	}
	if cfg.SessionBackend != SessionBackendMemory {
		t.Errorf("expected memory session backend, got %s", cfg.SessionBackend)
	}
	if cfg.SessionIdleTTL != 12*time.Hour {
		t.Errorf("expected 12h idle ttl, got %s", cfg.SessionIdleTTL)
	}
	if cfg.BackendTimeout != 0 {
		t.Errorf("expected backend timeout disabled, got %s", cfg.BackendTimeout)
	}
	if cfg.ViewerInstitutionType != "20" || cfg.ViewerDevMode != "0" {
		t.Errorf("unexpected viewer defaults: %q %q", cfg.ViewerInstitutionType, cfg.ViewerDevMode)
	}
	if cfg.ChallengeSecret == "" {
		t.Error("expected development challenge secret to be filled in")
	}
}

func TestLoad_WithBackendURL(t *testing.T) {
	os.Setenv("BACKEND_URL", "https://hospital.example/api")
	defer os.Unsetenv("BACKEND_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendURL != "https://hospital.example/api" {
		t.Errorf("expected BACKEND_URL to be set, got %s", cfg.BackendURL)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
	if !c.IsProduction() {
		t.Error("expected IsProduction() to return true for production")
	}
}

func validConfig() *Config {
	return &Config{
		Env:               "development",
		BackendURL:        "http://localhost:8081/api",
		SessionBackend:    SessionBackendMemory,
		SessionCookieName: "portal_session",
		SessionIdleTTL:    time.Hour,
	}
}

func TestValidate_DevelopmentMemory(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownSessionBackend(t *testing.T) {
	c := validConfig()
	c.SessionBackend = "memcached"
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error for unknown session backend")
	}
	if !strings.Contains(err.Error(), "SESSION_BACKEND") {
		t.Errorf("expected SESSION_BACKEND in error, got %v", err)
	}
}

func TestValidate_RedisRequiresURL(t *testing.T) {
	c := validConfig()
	c.SessionBackend = SessionBackendRedis
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when REDIS_URL is missing")
	}
	c.RedisURL = "redis://localhost:6379/0"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	c := validConfig()
	c.SessionBackend = SessionBackendPostgres
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.SessionCookieSecure = true
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing CHALLENGE_SECRET in production")
	}

	c.ChallengeSecret = strings.Repeat("s", 32)
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresSecureCookie(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.ChallengeSecret = strings.Repeat("s", 32)
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for insecure cookie in production")
	}
}

func TestValidate_TLSRequiresFiles(t *testing.T) {
	c := validConfig()
	c.TLSEnabled = true
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when TLS_CERT_FILE is missing")
	}
	c.TLSCertFile = "cert.pem"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when TLS_KEY_FILE is missing")
	}
	c.TLSKeyFile = "key.pem"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
