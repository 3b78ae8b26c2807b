package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Session backends understood by the portal.
const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	BackendURL            string        `mapstructure:"BACKEND_URL"`
	BackendTimeout        time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	SessionBackend        string        `mapstructure:"SESSION_BACKEND"`
	SessionCookieName     string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionCookieSecure   bool          `mapstructure:"SESSION_COOKIE_SECURE"`
	SessionIdleTTL        time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	ChallengeSecret       string        `mapstructure:"CHALLENGE_SECRET"`
	LoginRateLimitRPS     float64       `mapstructure:"LOGIN_RATE_LIMIT_RPS"`
	LoginRateLimitBurst   int           `mapstructure:"LOGIN_RATE_LIMIT_BURST"`
	ViewerInstitutionType string        `mapstructure:"VIEWER_INSTITUTION_TYPE"`
	ViewerDevMode         string        `mapstructure:"VIEWER_DEV_MODE"`
	TLSEnabled            bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile           string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile            string        `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "development")
	v.SetDefault("BACKEND_URL", "http://localhost:8081/api")
	v.SetDefault("BACKEND_TIMEOUT", "0s") // 0 disables the overall client timeout
	v.SetDefault("SESSION_BACKEND", SessionBackendMemory)
	v.SetDefault("SESSION_COOKIE_NAME", "portal_session")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_IDLE_TTL", "12h")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("LOGIN_RATE_LIMIT_RPS", 5)
	v.SetDefault("LOGIN_RATE_LIMIT_BURST", 10)
	v.SetDefault("VIEWER_INSTITUTION_TYPE", "20")
	v.SetDefault("VIEWER_DEV_MODE", "0")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("BACKEND_URL")
	v.BindEnv("BACKEND_TIMEOUT")
	v.BindEnv("SESSION_BACKEND")
	v.BindEnv("SESSION_COOKIE_NAME")
	v.BindEnv("SESSION_COOKIE_SECURE")
	v.BindEnv("SESSION_IDLE_TTL")
	v.BindEnv("REDIS_URL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CHALLENGE_SECRET")
	v.BindEnv("LOGIN_RATE_LIMIT_RPS")
	v.BindEnv("LOGIN_RATE_LIMIT_BURST")
	v.BindEnv("VIEWER_INSTITUTION_TYPE")
	v.BindEnv("VIEWER_DEV_MODE")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}

	if cfg.IsDev() && cfg.ChallengeSecret == "" {
		log.Println("WARNING: CHALLENGE_SECRET is not set; using a development-only secret.")
		log.Println("WARNING: Admin password challenges will not survive a restart.")
		cfg.ChallengeSecret = "development-challenge-secret"
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the portal is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The session backend
// must be one of the known stores and carry its connection string, and a
// challenge secret of at least 32 bytes is mandatory outside development.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is %q", c.SessionBackend)
		}
	case SessionBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_BACKEND is %q", c.SessionBackend)
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be \"memory\", \"redis\", or \"postgres\", got %q", c.SessionBackend)
	}

	if c.SessionCookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must not be negative, got %s", c.BackendTimeout)
	}

	if !c.IsDev() && len(c.ChallengeSecret) < 32 {
		return fmt.Errorf("CHALLENGE_SECRET must be at least 32 bytes outside development (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && !c.SessionCookieSecure && !c.TLSEnabled {
		return fmt.Errorf("SESSION_COOKIE_SECURE or TLS_ENABLED is required in production")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
