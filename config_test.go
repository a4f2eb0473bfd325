package authcore

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = "unit-test-secret"
	return cfg
}

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.TTL != 30*time.Minute || cfg.Session.CacheTTL != 60*time.Minute {
		t.Fatalf("unexpected default lifetimes: %v / %v", cfg.Session.TTL, cfg.Session.CacheTTL)
	}
}

func TestValidateRejectsWeakenedContracts(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = "  " }},
		{"cache shorter than session", func(c *Config) { c.Session.CacheTTL = c.Session.TTL - time.Minute }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"empty cookie name", func(c *Config) { c.Session.CookieName = "" }},
		{"low bcrypt cost", func(c *Config) { c.Password.BcryptCost = 8 }},
		{"zero reset ttl", func(c *Config) { c.PasswordReset.TokenTTL = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxAttempts = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_TTL", "1200")        // bare seconds
	t.Setenv("SESSION_CACHE_TTL", "45m")   // duration syntax
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("SESSION_COOKIE_NAME", "sid")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if cfg.Environment != "production" {
		t.Fatalf("environment not applied: %q", cfg.Environment)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Fatal("secret not applied")
	}
	if cfg.Session.TTL != 20*time.Minute {
		t.Fatalf("bare-seconds TTL parsed as %v", cfg.Session.TTL)
	}
	if cfg.Session.CacheTTL != 45*time.Minute {
		t.Fatalf("duration-syntax cache TTL parsed as %v", cfg.Session.CacheTTL)
	}
	if cfg.RateLimit.MaxAttempts != 3 {
		t.Fatalf("rate limit max parsed as %d", cfg.RateLimit.MaxAttempts)
	}
	if cfg.Session.CookieName != "sid" {
		t.Fatalf("cookie name parsed as %q", cfg.Session.CookieName)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins parsed as %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadEnvRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadEnv(); err == nil {
		t.Fatal("expected validation failure without JWT_SECRET")
	}
}

func TestLoadEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("SESSION_TTL", "soon")
	if _, err := LoadEnv(); err == nil {
		t.Fatal("expected parse failure for malformed duration")
	}
}
