// Package config loads opgate settings from the environment, optionally
// seeded from a .env file, using Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	ProviderGoTrue = "gotrue"
	ProviderLocal  = "local"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// BasePath prefixes the auth routes (e.g. /api/auth).
	BasePath string `mapstructure:"BASE_PATH"`
	// Env is "development" or "production"; production switches logs to JSON.
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreDriver selects the operator store: postgres or sqlite.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`

	// IdentityProvider selects gotrue (remote admin API) or local (in-process).
	IdentityProvider       string `mapstructure:"IDENTITY_PROVIDER"`
	GoTrueURL              string `mapstructure:"GOTRUE_URL"`
	SupabaseURL            string `mapstructure:"SUPABASE_URL"`
	ServiceRoleKey         string `mapstructure:"SERVICE_ROLE_KEY"`
	SupabaseServiceRoleKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	LocalIDPSecret         string `mapstructure:"LOCAL_IDP_SECRET"`

	// DashboardURL is the public base reset links point at.
	DashboardURL  string `mapstructure:"DASHBOARD_URL"`
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`

	IdentityCache    string `mapstructure:"IDENTITY_CACHE"`
	IdentityCacheTTL string `mapstructure:"IDENTITY_CACHE_TTL"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	RedisPassword    string `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int    `mapstructure:"REDIS_DB"`

	// SMTP delivery of reset links. Without SMTP_HOST, development prints
	// links to stderr and production leaves them undelivered.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	// SMTPTLSMode is starttls, tls or none.
	SMTPTLSMode string `mapstructure:"SMTP_TLS_MODE"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

// Load reads envFile into the process environment when it is set, then
// builds Config from the environment. Variables already set win over the
// file. Only the store settings are validated here; see ValidateServe.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	// Every key needs a default for AutomaticEnv to reach it through Unmarshal.
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("BASE_PATH", "/api/auth")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "opgate.db")
	v.SetDefault("IDENTITY_PROVIDER", ProviderGoTrue)
	v.SetDefault("GOTRUE_URL", "")
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SERVICE_ROLE_KEY", "")
	v.SetDefault("SUPABASE_SERVICE_ROLE_KEY", "")
	v.SetDefault("LOCAL_IDP_SECRET", "")
	v.SetDefault("DASHBOARD_URL", "")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("IDENTITY_CACHE", CacheMemory)
	v.SetDefault("IDENTITY_CACHE_TTL", "5m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_TLS_MODE", "starttls")
	v.SetDefault("METRICS_ENABLED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.IdentityProvider = strings.ToLower(strings.TrimSpace(cfg.IdentityProvider))
	cfg.IdentityCache = strings.ToLower(strings.TrimSpace(cfg.IdentityCache))

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL must be set when STORE_DRIVER=%s", StorePostgres)
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("config: SQLITE_PATH must be set when STORE_DRIVER=%s", StoreSQLite)
		}
	default:
		return nil, fmt.Errorf("config: STORE_DRIVER must be %s or %s, got %q", StorePostgres, StoreSQLite, cfg.StoreDriver)
	}

	return &cfg, nil
}

// ValidateServe checks everything the HTTP server needs beyond the store.
func (c *Config) ValidateServe() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: HTTP_ADDR must be set")
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("config: BASE_PATH must start with /, got %q", c.BasePath)
	}

	if c.DashboardURL == "" {
		return fmt.Errorf("config: DASHBOARD_URL must be set")
	}
	u, err := url.Parse(c.DashboardURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: DASHBOARD_URL must be an absolute http(s) url, got %q", c.DashboardURL)
	}

	switch c.IdentityProvider {
	case ProviderGoTrue:
		if c.ResolvedGoTrueURL() == "" {
			return fmt.Errorf("config: GOTRUE_URL or SUPABASE_URL must be set when IDENTITY_PROVIDER=%s", ProviderGoTrue)
		}
		if c.ResolvedServiceRoleKey() == "" {
			return fmt.Errorf("config: SERVICE_ROLE_KEY must be set when IDENTITY_PROVIDER=%s", ProviderGoTrue)
		}
	case ProviderLocal:
		if c.LocalIDPSecret == "" {
			return fmt.Errorf("config: LOCAL_IDP_SECRET must be set when IDENTITY_PROVIDER=%s", ProviderLocal)
		}
		if c.IsProduction() {
			return fmt.Errorf("config: IDENTITY_PROVIDER=%s must not be used when APP_ENV=production", ProviderLocal)
		}
	default:
		return fmt.Errorf("config: IDENTITY_PROVIDER must be %s or %s, got %q", ProviderGoTrue, ProviderLocal, c.IdentityProvider)
	}

	switch c.IdentityCache {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR must be set when IDENTITY_CACHE=%s", CacheRedis)
		}
	default:
		return fmt.Errorf("config: IDENTITY_CACHE must be %s, %s or %s, got %q", CacheMemory, CacheRedis, CacheNone, c.IdentityCache)
	}

	if _, err := parsePositive(c.ResetTokenTTL); err != nil {
		return fmt.Errorf("config: RESET_TOKEN_TTL: %w", err)
	}
	if _, err := parsePositive(c.IdentityCacheTTL); err != nil {
		return fmt.Errorf("config: IDENTITY_CACHE_TTL: %w", err)
	}

	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return fmt.Errorf("config: SMTP_FROM must be set when SMTP_HOST is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// ResolvedGoTrueURL prefers GOTRUE_URL and otherwise derives the auth
// endpoint from SUPABASE_URL.
func (c *Config) ResolvedGoTrueURL() string {
	if c.GoTrueURL != "" {
		return strings.TrimRight(c.GoTrueURL, "/")
	}
	if c.SupabaseURL != "" {
		return strings.TrimRight(c.SupabaseURL, "/") + "/auth/v1"
	}
	return ""
}

func (c *Config) ResolvedServiceRoleKey() string {
	if c.ServiceRoleKey != "" {
		return c.ServiceRoleKey
	}
	return c.SupabaseServiceRoleKey
}

// ResetTTL returns RESET_TOKEN_TTL, or one hour when unset or invalid.
func (c *Config) ResetTTL() time.Duration {
	d, err := parsePositive(c.ResetTokenTTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// CacheTTL returns IDENTITY_CACHE_TTL, or five minutes when unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	d, err := parsePositive(c.IdentityCacheTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
