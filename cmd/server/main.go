// Package main is the entrypoint for the document generation API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/api"
	"github.com/F-kaue/WorkflowApp-sub000/internal/api/handler"
	mw "github.com/F-kaue/WorkflowApp-sub000/internal/api/middleware"
	"github.com/F-kaue/WorkflowApp-sub000/internal/cache"
	"github.com/F-kaue/WorkflowApp-sub000/internal/config"
	"github.com/F-kaue/WorkflowApp-sub000/internal/generation"
	"github.com/F-kaue/WorkflowApp-sub000/internal/metrics"
	"github.com/F-kaue/WorkflowApp-sub000/internal/routing"
	"github.com/F-kaue/WorkflowApp-sub000/internal/store"
	"github.com/F-kaue/WorkflowApp-sub000/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	// writeTimeout must outlast the engine deadline plus a full stream.
	writeTimeout = 120 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	})))
	slog.Info("config loaded", "env", cfg.Server.Env, "models", cfg.AI.Models, "cache_backend", cfg.Cache.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI providers and the shared engine
	providers, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	engine := ai.NewEngineFromConfig(providers, cfg.AI, cfg.Stream)
	if !engine.Configured() {
		// the server still starts; generation requests answer CONFIGURATION_ERROR
		slog.Warn("no AI model can be served by the configured providers")
	}

	// 6. Routing rules
	rules, err := routing.Load(cfg.Routing.RulesFile)
	if err != nil {
		return fmt.Errorf("load routing rules: %w", err)
	}

	// 7. Wire services
	metrics.MustRegister()
	workers := worker.NewPool(cfg.Worker.Workers, cfg.Worker.QueueSize)
	// jobs keep running after a shutdown signal; a drain that outlasts
	// shutdownTimeout cancels them so they end in error
	workers.Start(context.WithoutCancel(ctx))

	c := components{
		store:      store.NewPostgresStore(pool),
		kv:         redisCache,
		similarity: newSimilarityCache(cfg.Cache, redisCache),
		engine:     engine,
		rules:      rules,
		pool:       workers,
	}
	router, svc := newHandler(cfg, c)

	// 8. Start HTTP server, reaper and shutdown watcher
	srv := newHTTPServer(cfg.Server.Port, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunReaper(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := workers.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain worker pool: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// components are the long-lived dependencies the HTTP layer is built from.
type components struct {
	store      store.Store
	kv         cache.Cache
	similarity cache.SimilarityCache
	engine     generation.Engine
	rules      *routing.Router
	pool       generation.Submitter
}

// newHandler builds the router and the job service over c. The same
// similarity cache and engine serve the job and streaming paths.
func newHandler(cfg *config.Config, c components) (http.Handler, *generation.Service) {
	svc := generation.NewService(c.store, c.similarity, c.engine, c.rules, c.pool, generation.Options{
		CacheHitDelay: cfg.Cache.HitDelay,
		StaleAfter:    cfg.Worker.StaleAfter,
		ReapInterval:  cfg.Worker.ReapInterval,
	})
	streamer := generation.NewStreamer(c.similarity, c.engine, c.rules, cfg.Cache.StreamHitDelay)

	auth := mw.NewAuth(cfg.Auth.APIKeyHashes)
	if !auth.Enabled() {
		slog.Warn("API key authentication disabled, no key hashes configured")
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(c.kv, cfg.Server.RateLimitPerMinute),

		HealthHandler:         handler.NewHealthHandler(c.store, c.kv),
		SubmitJobHandler:      handler.NewSubmitJobHandler(svc),
		JobStatusHandler:      handler.NewJobStatusHandler(svc),
		MarkJobTimeoutHandler: handler.NewMarkJobTimeoutHandler(svc),
		StreamGenerateHandler: handler.NewStreamGenerateHandler(streamer),
		MetricsHandler:        promhttp.Handler(),
	})
	return router, svc
}

func newSimilarityCache(cfg config.CacheConfig, rc *cache.RedisCache) cache.SimilarityCache {
	opts := cache.SimilarityOptions{
		Capacity:  cfg.Capacity,
		TTL:       cfg.TTL,
		Threshold: cfg.Threshold,
	}
	if cfg.Backend == "redis" {
		slog.Info("similarity cache backed by redis", "capacity", opts.Capacity)
		return cache.NewRedisSimilarityCache(rc, opts)
	}
	slog.Info("similarity cache held in memory", "capacity", opts.Capacity)
	return cache.NewMemorySimilarityCache(opts)
}

func newHTTPServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
