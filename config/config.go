package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Embedding   EmbeddingConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Intent      IntentConfig
	Matching    MatchingConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// EmbeddingConfig holds embedding runtime configuration
type EmbeddingConfig struct {
	Provider      string        `mapstructure:"provider"` // "tei" or "openai"
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BatchSize     int           `mapstructure:"batch_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// IntentConfig holds purchase intent classifier configuration
type IntentConfig struct {
	Threshold float64  `mapstructure:"threshold"`
	Exemplars []string `mapstructure:"exemplars"`
}

// MatchingConfig holds product matching configuration
type MatchingConfig struct {
	TopK               int     `mapstructure:"top_k"`
	Threshold          float64 `mapstructure:"threshold"`
	Strict             bool    `mapstructure:"strict"`
	EnableDebugLogging bool    `mapstructure:"enable_debug_logging"`
}

// IdempotencyConfig controls duplicate message suppression
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// Load loads configuration from an optional .env file, environment variables and config files
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/replybot/")

	// REPLYBOT_MATCHING_TOP_K -> matching.top_k
	v.SetEnvPrefix("REPLYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadDotEnv loads .env from the working directory or ./config when present.
// Variables already set in the environment win.
func loadDotEnv() {
	for _, path := range []string{".env", "config/.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// setDefaults sets default configuration values. Every key is registered so
// that AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.request_timeout", "10s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Embedding defaults
	v.SetDefault("embedding.provider", "tei")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "intfloat/multilingual-e5-large")
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.rate_per_second", 50)
	v.SetDefault("embedding.burst", 10)

	// Database defaults
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "720h") // 30 days

	// Intent defaults
	v.SetDefault("intent.threshold", 0.8)
	v.SetDefault("intent.exemplars", []string{})

	// Matching defaults
	v.SetDefault("matching.top_k", 1)
	v.SetDefault("matching.threshold", 0.6)
	v.SetDefault("matching.strict", true)
	v.SetDefault("matching.enable_debug_logging", false)

	// Idempotency defaults
	v.SetDefault("idempotency.ttl", "24h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set REPLYBOT_DATABASE_DSN)")
	}

	if config.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding base URL is required (set REPLYBOT_EMBEDDING_BASE_URL)")
	}

	if config.Embedding.Provider != "tei" && config.Embedding.Provider != "openai" {
		return fmt.Errorf("embedding provider must be 'tei' or 'openai', got: %s", config.Embedding.Provider)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is 'redis'")
	}

	if config.Intent.Threshold <= 0 || config.Intent.Threshold > 1 {
		return fmt.Errorf("intent threshold must be within (0, 1], got: %v", config.Intent.Threshold)
	}

	if config.Matching.Threshold < -1 || config.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold must be within [-1, 1], got: %v", config.Matching.Threshold)
	}

	return nil
}
