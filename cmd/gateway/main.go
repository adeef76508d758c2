package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/janus-gateway/internal/artifact"
	"github.com/af-corp/janus-gateway/internal/auth"
	"github.com/af-corp/janus-gateway/internal/classifier"
	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/gateway"
	"github.com/af-corp/janus-gateway/internal/memory"
	"github.com/af-corp/janus-gateway/internal/ratelimit"
	"github.com/af-corp/janus-gateway/internal/router"
	"github.com/af-corp/janus-gateway/internal/sandbox"
	"github.com/af-corp/janus-gateway/internal/telemetry"
	"github.com/af-corp/janus-gateway/internal/upstream"
	"github.com/af-corp/janus-gateway/internal/usage"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	loader := config.NewLoader(*configDir, slog.Default())
	if err := loader.Load(); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(loader.Config().Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// PostgreSQL is optional. Without it auth, usage accounting and memory
	// persistence are disabled; routing still works.
	var dbPool *pgxpool.Pool
	pool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Warn("database config invalid, persistence disabled", "error", err)
	} else if err := pool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable, persistence disabled", "error", err)
		pool.Close()
	} else {
		dbPool = pool
		defer dbPool.Close()
		logger.Info("database connected")
	}

	// Redis is optional. Without it rate limits and caches fail open.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, caches and rate limits fail open", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	upstreamClient := upstream.NewClient(func() config.UpstreamConfig {
		return loader.Config().Upstream
	})

	verdictCache := classifier.NewVerdictCache(rdb, func() time.Duration {
		return loader.Config().Classifier.CacheTTL
	})
	clf := classifier.New(func() config.ClassifierConfig {
		return loader.Config().Classifier
	}, upstreamClient, verdictCache)
	loader.OnReload(func() {
		clf.ReloadKeywords()
		logger.Info("classifier keywords reloaded")
	})

	sandboxCfg := func() config.SandboxConfig { return loader.Config().Sandbox }
	provisioner := sandbox.NewProvisioner(sandboxCfg)
	sandboxMgr := sandbox.NewManager(sandboxCfg, provisioner, metrics)

	artifactStore, err := artifact.NewStore(func() config.ArtifactConfig {
		return loader.Config().Artifacts
	}, metrics)
	if err != nil {
		logger.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	artifactStore.StartSweeper(sweepCtx)

	routingCfg := func() config.RoutingConfig { return loader.Config().Routing }
	policy := router.NewPolicy(routingCfg)
	if routingCfg().PolicyEnabled {
		if err := policy.Load(); err != nil {
			logger.Error("failed to load routing policies", "error", err)
			os.Exit(1)
		}
	}

	usageStore := usage.NewStore(dbPool)
	var memStore memory.Store
	if dbPool != nil {
		memStore = memory.NewPGStore(dbPool)
	}
	memExtractor := memory.NewExtractor(func() config.MemoryConfig {
		return loader.Config().Memory
	}, upstreamClient, memStore)

	rt := router.New(router.Deps{
		Routing:    routingCfg,
		Models:     func() config.ModelsConfig { return *loader.Models() },
		Telemetry:  func() config.TelemetryConfig { return loader.Config().Telemetry },
		Classifier: clf,
		Sandbox:    sandboxMgr,
		Upstream:   upstreamClient,
		Artifacts:  artifactStore,
		Policy:     policy,
		Metrics:    metrics,
		Usage:      usageStore,
		Memory:     memExtractor,
	})

	handler := gateway.NewHandler(rt, func() config.ModelsConfig { return *loader.Models() })
	artifactHandler := artifact.NewHandler(artifactStore)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/janus/v1/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/artifacts/{id}", artifactHandler.Get)

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			if dbPool == nil {
				logger.Error("auth enabled but database unavailable")
				os.Exit(1)
			}
			keyStore := auth.NewCachedKeyStore(dbPool, rdb)
			r.Use(auth.Middleware(keyStore))
		}
		if cfg.RateLimit.Enabled {
			limiter := ratelimit.NewLimiter(rdb)
			r.Use(ratelimit.Middleware(limiter, func() config.RateLimitConfig {
				return loader.Config().RateLimit
			}, metrics))
		}
		r.Post("/v1/chat/completions", handler.ChatCompletions)
		r.Get("/v1/models", handler.ListModels)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func buildLogger(cfg config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
