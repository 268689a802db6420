package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setRequired sets the variables Load cannot do without
func setRequired(t *testing.T) {
	t.Setenv("REPLYBOT_DATABASE_DSN", "postgres://localhost/replybot")
	t.Setenv("REPLYBOT_EMBEDDING_BASE_URL", "http://embeddings:8080")
}

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when only required env vars set", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Server.RequestTimeout != 10*time.Second {
			t.Errorf("Server.RequestTimeout = %v, want 10s", cfg.Server.RequestTimeout)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("Log = %+v, want info/json", cfg.Log)
		}
		if cfg.Embedding.Provider != "tei" {
			t.Errorf("Embedding.Provider = %s, want tei", cfg.Embedding.Provider)
		}
		if cfg.Embedding.Model != "intfloat/multilingual-e5-large" {
			t.Errorf("Embedding.Model = %s", cfg.Embedding.Model)
		}
		if cfg.Embedding.BatchSize != 32 {
			t.Errorf("Embedding.BatchSize = %d, want 32", cfg.Embedding.BatchSize)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 720*time.Hour {
			t.Errorf("Cache.TTL = %v, want 720h", cfg.Cache.TTL)
		}
		if cfg.Intent.Threshold != 0.8 {
			t.Errorf("Intent.Threshold = %v, want 0.8", cfg.Intent.Threshold)
		}
		if len(cfg.Intent.Exemplars) != 0 {
			t.Errorf("Intent.Exemplars = %v, want empty", cfg.Intent.Exemplars)
		}
		if cfg.Matching.TopK != 1 || cfg.Matching.Threshold != 0.6 || !cfg.Matching.Strict {
			t.Errorf("Matching = %+v, want top_k 1, threshold 0.6, strict", cfg.Matching)
		}
		if cfg.Idempotency.TTL != 24*time.Hour {
			t.Errorf("Idempotency.TTL = %v, want 24h", cfg.Idempotency.TTL)
		}
		if cfg.RateLimit.PerIP != 100 {
			t.Errorf("RateLimit.PerIP = %d, want 100", cfg.RateLimit.PerIP)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		setRequired(t)
		t.Setenv("REPLYBOT_SERVER_PORT", "3000")
		t.Setenv("REPLYBOT_SERVER_ENVIRONMENT", "production")
		t.Setenv("REPLYBOT_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
		t.Setenv("REPLYBOT_EMBEDDING_PROVIDER", "openai")
		t.Setenv("REPLYBOT_CACHE_TYPE", "redis")
		t.Setenv("REPLYBOT_CACHE_REDIS_URL", "redis://localhost:6379/0")
		t.Setenv("REPLYBOT_INTENT_THRESHOLD", "0.75")
		t.Setenv("REPLYBOT_INTENT_EXEMPLARS", "buy,order")
		t.Setenv("REPLYBOT_MATCHING_TOP_K", "3")
		t.Setenv("REPLYBOT_MATCHING_STRICT", "false")
		t.Setenv("REPLYBOT_IDEMPOTENCY_TTL", "1h")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "3000" {
			t.Errorf("Server.Port = %s, want 3000", cfg.Server.Port)
		}
		if cfg.Server.Environment != "production" {
			t.Errorf("Server.Environment = %s, want production", cfg.Server.Environment)
		}
		wantOrigins := []string{"https://a.example", "https://b.example"}
		if !reflect.DeepEqual(cfg.Server.AllowedOrigins, wantOrigins) {
			t.Errorf("Server.AllowedOrigins = %v, want %v", cfg.Server.AllowedOrigins, wantOrigins)
		}
		if cfg.Embedding.Provider != "openai" {
			t.Errorf("Embedding.Provider = %s, want openai", cfg.Embedding.Provider)
		}
		if cfg.Cache.Type != "redis" || cfg.Cache.RedisURL != "redis://localhost:6379/0" {
			t.Errorf("Cache = %+v", cfg.Cache)
		}
		if cfg.Intent.Threshold != 0.75 {
			t.Errorf("Intent.Threshold = %v, want 0.75", cfg.Intent.Threshold)
		}
		if !reflect.DeepEqual(cfg.Intent.Exemplars, []string{"buy", "order"}) {
			t.Errorf("Intent.Exemplars = %v", cfg.Intent.Exemplars)
		}
		if cfg.Matching.TopK != 3 || cfg.Matching.Strict {
			t.Errorf("Matching = %+v, want top_k 3, not strict", cfg.Matching)
		}
		if cfg.Idempotency.TTL != time.Hour {
			t.Errorf("Idempotency.TTL = %v, want 1h", cfg.Idempotency.TTL)
		}
	})

	t.Run("reads config file from working directory", func(t *testing.T) {
		setRequired(t)
		dir := t.TempDir()
		yaml := "matching:\n  top_k: 5\n  threshold: 0.4\nlog:\n  level: debug\n"
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
			t.Fatal(err)
		}
		chdir(t, dir)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Matching.TopK != 5 || cfg.Matching.Threshold != 0.4 {
			t.Errorf("Matching = %+v, want top_k 5, threshold 0.4", cfg.Matching)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
		}
	})

	t.Run("loads required values from .env", func(t *testing.T) {
		dir := t.TempDir()
		env := "REPLYBOT_DATABASE_DSN=postgres://dotenv/replybot\nREPLYBOT_EMBEDDING_BASE_URL=http://dotenv:8080\n"
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
			t.Fatal(err)
		}
		chdir(t, dir)
		// godotenv writes straight into the process environment
		t.Setenv("REPLYBOT_DATABASE_DSN", "")
		t.Setenv("REPLYBOT_EMBEDDING_BASE_URL", "")
		os.Unsetenv("REPLYBOT_DATABASE_DSN")
		os.Unsetenv("REPLYBOT_EMBEDDING_BASE_URL")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if cfg.Database.DSN != "postgres://dotenv/replybot" {
			t.Errorf("Database.DSN = %s", cfg.Database.DSN)
		}
	})
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing database dsn",
			env:     map[string]string{"REPLYBOT_DATABASE_DSN": ""},
			wantErr: "database DSN is required",
		},
		{
			name:    "missing embedding url",
			env:     map[string]string{"REPLYBOT_EMBEDDING_BASE_URL": ""},
			wantErr: "embedding base URL is required",
		},
		{
			name:    "unknown provider",
			env:     map[string]string{"REPLYBOT_EMBEDDING_PROVIDER": "grpc"},
			wantErr: "embedding provider",
		},
		{
			name:    "unknown cache type",
			env:     map[string]string{"REPLYBOT_CACHE_TYPE": "memcached"},
			wantErr: "cache type",
		},
		{
			name:    "redis without url",
			env:     map[string]string{"REPLYBOT_CACHE_TYPE": "redis"},
			wantErr: "redis URL is required",
		},
		{
			name:    "intent threshold out of range",
			env:     map[string]string{"REPLYBOT_INTENT_THRESHOLD": "1.5"},
			wantErr: "intent threshold",
		},
		{
			name:    "intent threshold zero",
			env:     map[string]string{"REPLYBOT_INTENT_THRESHOLD": "0"},
			wantErr: "intent threshold",
		},
		{
			name:    "intent threshold negative",
			env:     map[string]string{"REPLYBOT_INTENT_THRESHOLD": "-0.5"},
			wantErr: "intent threshold",
		},
		{
			name:    "matching threshold out of range",
			env:     map[string]string{"REPLYBOT_MATCHING_THRESHOLD": "-2"},
			wantErr: "matching threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
