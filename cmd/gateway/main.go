// Command gateway starts the Ninefold inference gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/cache"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/httpserver"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/queue/redpanda"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/workerclient"
	"github.com/s2intelligence/ninefold-gateway/internal/app"
	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/analyzer"
	"github.com/s2intelligence/ninefold-gateway/internal/service/auth"
	"github.com/s2intelligence/ninefold-gateway/internal/service/metrics"
	"github.com/s2intelligence/ninefold-gateway/internal/service/ratelimiter"
	"github.com/s2intelligence/ninefold-gateway/internal/service/registry"
	"github.com/s2intelligence/ninefold-gateway/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	catalogue, err := config.LoadCatalogue(cfg.WorkerCatalogue)
	if err != nil {
		slog.Error("catalogue load failed", slog.Any("error", err))
		os.Exit(1)
	}

	secret := cfg.TokenSecret
	if secret == "" {
		if cfg.IsProd() {
			slog.Error("TOKEN_SECRET is required in prod")
			os.Exit(1)
		}
		secret = "dev-only-secret"
		slog.Warn("TOKEN_SECRET not set; using dev default")
	}

	authSvc := auth.New(secret, cfg.TokenLifetime, auth.DemoVerifier{})
	principals, err := authSvc.SeedDefaults()
	if err != nil {
		slog.Error("principal seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, p := range principals {
		// Demo keys are printed once at startup so the tiers can be
		// exercised without a separate provisioning step.
		slog.Info("principal seeded",
			slog.String("username", p.Username),
			slog.String("tier", string(p.Tier)),
			slog.String("api_key", p.APIKey))
	}

	client := workerclient.New(cfg.WorkerHost, cfg.InferenceTimeout)
	reg := registry.New(catalogue, client, cfg.ProbeInterval, cfg.ProbeTimeout)
	reg.Start(ctx)
	defer reg.Stop()

	var store domain.CacheStore = cache.NewDisabled()
	if cfg.CacheEnabled {
		switch cfg.CacheBackend {
		case "redis":
			rstore, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.CacheTTL)
			if err != nil {
				slog.Error("redis cache connect failed", slog.Any("error", err))
				os.Exit(1)
			}
			defer func() { _ = rstore.Close() }()
			store = rstore
		default:
			store = cache.NewMemory(cfg.CacheTTL, cfg.CacheCapacity)
		}
	}

	an, err := analyzer.New(catalogue)
	if err != nil {
		slog.Error("analyzer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	agg := metrics.New()
	router := usecase.NewRouter(an, reg, client, store, agg, usecase.Options{
		InferenceTimeout: cfg.InferenceTimeout,
		SynthesisTimeout: cfg.SynthesisTimeout,
	})

	limiter := ratelimiter.New(int64(cfg.RateLimitBase), cfg.RateLimitWindow, func(t domain.Tier) int {
		m := cfg.TierMultiplier(string(t))
		if m < 1 {
			m = 1
		}
		return m
	})

	var audit domain.AuditPublisher
	if cfg.AuditEnabled() {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			slog.Error("audit producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = producer.Close() }()
		audit = producer
	}

	srv := httpserver.New(cfg, authSvc, limiter, router, reg, agg, audit)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway starting",
			slog.Int("port", cfg.Port),
			slog.Int("workers", len(catalogue)),
			slog.String("cache_backend", cfg.CacheBackend))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
