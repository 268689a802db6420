package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/replybot/backend/config"
	httpDelivery "github.com/replybot/backend/internal/delivery/http"
	"github.com/replybot/backend/internal/domain"
	"github.com/replybot/backend/internal/infrastructure/cache"
	"github.com/replybot/backend/internal/infrastructure/catalog"
	"github.com/replybot/backend/internal/infrastructure/embedding"
	"github.com/replybot/backend/internal/logger"
	"github.com/replybot/backend/internal/metrics"
	"github.com/replybot/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	zl.Info("starting replybot backend",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	// Cache backs both embedding reuse and processed-message tracking
	store, closeStore, err := newCache(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	embeddingClient, err := embedding.NewClient(embedding.Config{
		Provider:      cfg.Embedding.Provider,
		BaseURL:       cfg.Embedding.BaseURL,
		APIKey:        cfg.Embedding.APIKey,
		Model:         cfg.Embedding.Model,
		BatchSize:     cfg.Embedding.BatchSize,
		Timeout:       cfg.Embedding.Timeout,
		RatePerSecond: cfg.Embedding.RatePerSecond,
		Burst:         cfg.Embedding.Burst,
	}, zl.Named("embedding"))
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}
	encoder := embedding.NewCachedEncoder(embeddingClient, store, cfg.Embedding.Model, cfg.Cache.TTL, zl.Named("embedding"))

	db, err := catalog.Open(cfg.Database.DSN, catalog.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	catalogRepo := catalog.NewPostgresRepository(db, zl.Named("catalog"))

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := catalogRepo.Ping(pingCtx); err != nil {
		zl.Warn("catalog database not reachable at startup", zap.Error(err))
	}
	cancel()

	// Initialize usecase layer
	classifier := usecase.NewIntentClassifier(encoder, usecase.IntentConfig{
		Threshold: cfg.Intent.Threshold,
		Exemplars: cfg.Intent.Exemplars,
	}, zl.Named("intent"))

	matcher := usecase.NewMatchingService(encoder, usecase.MatchConfig{
		TopK:               cfg.Matching.TopK,
		Threshold:          cfg.Matching.Threshold,
		Strict:             cfg.Matching.Strict,
		EnableDebugLogging: cfg.Matching.EnableDebugLogging,
	}, zl.Named("matching"))

	purchase := usecase.NewPurchaseService(
		classifier,
		matcher,
		catalogRepo,
		usecase.NewRandomPicker(time.Now().UnixNano()),
		zl.Named("purchase"),
	)

	// A failed warmup is retried on the first message
	warmCtx, cancel := context.WithTimeout(context.Background(), cfg.Embedding.Timeout)
	if err := classifier.Warmup(warmCtx); err != nil {
		zl.Warn("intent exemplar warmup failed", zap.Error(err))
	}
	cancel()

	zl.Info("pipeline configured",
		zap.Float64("intent_threshold", classifier.Threshold()),
		zap.Int("match_top_k", matcher.Defaults().TopK),
		zap.Float64("match_threshold", matcher.Defaults().Threshold),
		zap.Bool("match_strict", matcher.Defaults().Strict),
	)

	handler := httpDelivery.NewHandler(purchase, classifier, matcher, store, httpDelivery.HandlerConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		IdempotencyTTL: cfg.Idempotency.TTL,
	}, zl.Named("http"))

	router := httpDelivery.SetupRouter(cfg, handler, zl.Named("access"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCache builds the configured cache and its close function
func newCache(cfg *config.Config) (domain.CacheRepository, func(), error) {
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisCache.Ping(ctx); err != nil {
			_ = redisCache.Close()
			return nil, nil, err
		}
		return redisCache, func() { _ = redisCache.Close() }, nil
	default:
		memoryCache := cache.NewMemoryCache(10 * time.Minute)
		metrics.WatchCacheEntries(memoryCache.Size)
		return memoryCache, func() { _ = memoryCache.Close() }, nil
	}
}
