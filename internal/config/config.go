package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Upstream  UpstreamConfig
	Lookup    LookupConfig
	Returns   ReturnsConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	Name  string
	Env   string
	Port  string
	Debug bool
}

type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Timezone string
	Path     string // sqlite file
	LogLevel string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type RateLimitConfig struct {
	Requests int
	Duration int
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type UpstreamConfig struct {
	BaseURL           string
	Timeout           time.Duration
	ServiceToken      string
	RequestsPerSecond float64
	Burst             int
}

type LookupConfig struct {
	DefaultDelay       time.Duration
	PurchaseOrderDelay time.Duration
	SessionTTL         time.Duration
	PageSize           int
}

type ReturnsConfig struct {
	RequireReason bool
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads .env (if present) and the environment. Environment variables
// win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:  v.GetString("APP_NAME"),
			Env:   v.GetString("APP_ENV"),
			Port:  v.GetString("APP_PORT"),
			Debug: v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
			Timezone: v.GetString("DB_TIMEZONE"),
			Path:     v.GetString("DB_PATH"),
			LogLevel: v.GetString("DB_LOG_LEVEL"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CacheTTL: v.GetDuration("REDIS_CACHE_TTL"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: v.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders: v.GetStringSlice("CORS_ALLOWED_HEADERS"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Duration: v.GetInt("RATE_LIMIT_DURATION"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		Upstream: UpstreamConfig{
			BaseURL:           v.GetString("UPSTREAM_BASE_URL"),
			Timeout:           v.GetDuration("UPSTREAM_TIMEOUT"),
			ServiceToken:      v.GetString("UPSTREAM_SERVICE_TOKEN"),
			RequestsPerSecond: v.GetFloat64("UPSTREAM_REQUESTS_PER_SECOND"),
			Burst:             v.GetInt("UPSTREAM_BURST"),
		},
		Lookup: LookupConfig{
			DefaultDelay:       v.GetDuration("LOOKUP_DEFAULT_DELAY"),
			PurchaseOrderDelay: v.GetDuration("LOOKUP_PURCHASE_ORDER_DELAY"),
			SessionTTL:         v.GetDuration("LOOKUP_SESSION_TTL"),
			PageSize:           v.GetInt("LOOKUP_PAGE_SIZE"),
		},
		Returns: ReturnsConfig{
			RequireReason: v.GetBool("RETURNS_REQUIRE_REASON"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Path:    v.GetString("METRICS_PATH"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "pharmadesk")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "pharmadesk")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "Africa/Nairobi")
	v.SetDefault("DB_PATH", "pharmadesk.db")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CACHE_TTL", "60s")
	v.SetDefault("JWT_SECRET", "change-this-secret-in-production")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("CORS_ALLOWED_HEADERS", []string{})
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_DURATION", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("UPSTREAM_REQUESTS_PER_SECOND", 50)
	v.SetDefault("UPSTREAM_BURST", 20)
	v.SetDefault("LOOKUP_DEFAULT_DELAY", "300ms")
	v.SetDefault("LOOKUP_PURCHASE_ORDER_DELAY", "500ms")
	v.SetDefault("LOOKUP_SESSION_TTL", "15m")
	v.SetDefault("LOOKUP_PAGE_SIZE", 20)
	v.SetDefault("RETURNS_REQUIRE_REASON", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if c.RateLimit.Duration <= 0 {
		return fmt.Errorf("RATE_LIMIT_DURATION must be positive")
	}
	if c.App.Env == "production" && c.JWT.Secret == "change-this-secret-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode +
		" TimeZone=" + c.Timezone
}

// Addr is the host:port of the Redis server
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
