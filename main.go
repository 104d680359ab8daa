package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sjsage522/hotpostcollector/config"
	"sjsage522/hotpostcollector/helpers"
	"sjsage522/hotpostcollector/internal"
	"sjsage522/hotpostcollector/internal/api"
	"sjsage522/hotpostcollector/internal/crawler"
	"sjsage522/hotpostcollector/internal/metrics"
	"sjsage522/hotpostcollector/internal/store"
	"sjsage522/hotpostcollector/logger"
	"sjsage522/hotpostcollector/services/cache"
	"sjsage522/hotpostcollector/services/publisher"
	"sjsage522/hotpostcollector/services/scheduler"
	"sjsage522/hotpostcollector/services/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("listing_url", cfg.ListingURL).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting application")

	metrics.Init()

	// Set up context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize services
	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close services")
		}
	}()

	fetcher := helpers.NewFetcher(cfg.FetchTimeout, helpers.BrowserHeaders(cfg.UserAgent, cfg.AcceptLanguage))
	c := crawler.NewTheqooHotCrawler(cfg, fetcher, deps.Cache)
	w := worker.NewWorker(c, deps.Store, deps.Publisher)

	sched := scheduler.New(w, cfg.CrawlInterval)
	sched.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(deps.Store, w).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-serverDone:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server exited with error")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	sched.Stop()
}

// initializeServices opens the store and connects the optional backends
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	st, err := store.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	deps.Store = st
	logger.Info("Opened post store at %s", cfg.DBPath)

	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.Warn("Memcache at %s not reachable yet: %v", cfg.MemcacheAddr, err)
		}
		deps.Cache = mc
		logger.Info("Using Memcache at %s for rate-limit blocks", cfg.MemcacheAddr)
	}

	if cfg.RedisAddr != "" {
		pub := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := pub.Ping(); err != nil {
			// posts are still stored, only notifications are lost
			logger.LogError("publisher", err, "Redis at %s unreachable, publishing disabled", cfg.RedisAddr)
			_ = pub.Close()
		} else {
			deps.Publisher = pub
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	return deps, nil
}
