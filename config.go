package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvDevelopment relaxes cookie security; anything else is treated as
// production.
const EnvDevelopment = "development"

// Config carries every tunable of the subsystem. Instances are built once
// at startup (DefaultConfig or LoadEnv), validated, and then treated as
// immutable.
type Config struct {
	Environment   string
	Session       SessionConfig
	JWT           JWTConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Mail          MailConfig
	Server        ServerConfig
}

// SessionConfig controls session and cache lifetimes. CacheTTL must be at
// least TTL so the cache is never the earlier expiry source.
type SessionConfig struct {
	TTL         time.Duration
	CacheTTL    time.Duration
	CookieName  string
	CachePrefix string
	// CookieSkew is added to the cookie max-age at call-sites that set a
	// renewed cookie, to absorb client clock drift.
	CookieSkew time.Duration
}

// JWTConfig holds the shared HMAC signing secret. Token lifetime equals
// the session TTL.
type JWTConfig struct {
	Secret string
}

// PasswordConfig controls the bcrypt cost factor.
type PasswordConfig struct {
	BcryptCost int
}

// PasswordResetConfig controls the reset-token validity window.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// RateLimitConfig controls the fixed-window limiter in front of the auth
// endpoints.
type RateLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	SweepInterval time.Duration
}

// DatabaseConfig holds the Postgres connection string.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MailConfig holds the Resend credentials for reset emails. An empty API
// key selects the no-op mailer.
type MailConfig struct {
	ResendAPIKey string
	FromEmail    string
	AppURL       string
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns the canonical settings: 30 minute sessions, 60
// minute cache entries, bcrypt cost 12, 15 minute reset tokens.
func DefaultConfig() Config {
	return Config{
		Environment: EnvDevelopment,
		Session: SessionConfig{
			TTL:         30 * time.Minute,
			CacheTTL:    60 * time.Minute,
			CookieName:  "session",
			CachePrefix: "session",
			CookieSkew:  time.Minute,
		},
		Password:      PasswordConfig{BcryptCost: 12},
		PasswordReset: PasswordResetConfig{TokenTTL: 15 * time.Minute},
		RateLimit: RateLimitConfig{
			MaxAttempts:   10,
			Window:        time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Database: DatabaseConfig{URL: "postgres://localhost:5432/taskwell"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Validate rejects configurations that would silently weaken the session
// contract.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.CacheTTL < c.Session.TTL {
		return errors.New("cache TTL must be at least the session TTL")
	}
	if c.Session.CookieName == "" {
		return errors.New("session cookie name required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT secret required")
	}
	if c.Password.BcryptCost < 10 {
		return errors.New("bcrypt cost must be at least 10")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("reset token TTL must be positive")
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit attempts and window must be positive")
	}
	return nil
}

// LoadEnv builds a Config from environment variables on top of the
// defaults. Callers that want .env support load it before calling this
// (see cmd/authd).
func LoadEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Environment = getEnv("APP_ENV", cfg.Environment)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Session.CookieName = getEnv("SESSION_COOKIE_NAME", cfg.Session.CookieName)
	cfg.Mail.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Mail.FromEmail = getEnv("MAIL_FROM", "noreply@taskwell.app")
	cfg.Mail.AppURL = getEnv("APP_URL", "http://localhost:3000")
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	var err error
	if cfg.Session.TTL, err = getEnvDuration("SESSION_TTL", cfg.Session.TTL); err != nil {
		return cfg, err
	}
	if cfg.Session.CacheTTL, err = getEnvDuration("SESSION_CACHE_TTL", cfg.Session.CacheTTL); err != nil {
		return cfg, err
	}
	if cfg.PasswordReset.TokenTTL, err = getEnvDuration("RESET_TOKEN_TTL", cfg.PasswordReset.TokenTTL); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.Window, err = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window); err != nil {
		return cfg, err
	}
	if cfg.Server.Port, err = getEnvInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return cfg, err
	}
	if cfg.Password.BcryptCost, err = getEnvInt("BCRYPT_COST", cfg.Password.BcryptCost); err != nil {
		return cfg, err
	}
	if cfg.RateLimit.MaxAttempts, err = getEnvInt("RATE_LIMIT_MAX", cfg.RateLimit.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return cfg, err
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg, cfg.Validate()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Accept bare seconds as well as Go duration syntax.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
