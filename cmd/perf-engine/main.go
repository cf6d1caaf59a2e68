package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-perf/internal/api"
	"github.com/miradorstack/mirador-perf/internal/cache"
	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/engine"
	"github.com/miradorstack/mirador-perf/internal/metrics"
	"github.com/miradorstack/mirador-perf/internal/repo"
	"github.com/miradorstack/mirador-perf/internal/services"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging)
	logger.Info("starting mirador-perf", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := newCache(cfg.Cache, logger)
	defer cacheProvider.Close()

	loader := repo.NewLoaderClient(
		cfg.Clients.Loader.BaseURL,
		cfg.Clients.Loader.SamplesPath,
		cfg.Clients.Loader.SettingsPath,
		cfg.Clients.Loader.Timeout,
		cacheProvider,
		cfg.Cache.SettingsTTL,
	)

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	analyzer := engine.New(logger,
		engine.WithParallelism(cfg.Engine.Parallelism),
		engine.WithRules(ruleEngine),
	)
	service := services.NewAnalysisService(logger, loader, analyzer, cacheProvider, cfg.Cache.ResultTTL, cfg.Analysis)

	server, err := api.NewServer(cfg.Server, service)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-perf stopped", slog.Duration("latency_p95", service.LatencyP95()))
}

// newCache picks Redis when configured, an in-process cache when caching is
// enabled without an address or Redis is unreachable, and no cache otherwise.
func newCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewRedisProvider(cache.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("redis cache unavailable, using in-process cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}
