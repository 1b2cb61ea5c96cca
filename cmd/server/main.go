package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"videostream/aggregatorservice/internal/ai"
	apihttp "videostream/aggregatorservice/internal/api/http"
	"videostream/aggregatorservice/internal/app"
	"videostream/aggregatorservice/internal/catalog"
	"videostream/aggregatorservice/internal/fetch"
	"videostream/aggregatorservice/internal/metrics"
	"videostream/aggregatorservice/internal/search"
	"videostream/aggregatorservice/internal/telemetry"
	"videostream/aggregatorservice/internal/websearch"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "video-aggregator",
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "video-aggregator"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("searchEngineURL", cfg.SearchEngineURL),
		slog.String("aiModel", cfg.AIModel),
		slog.Bool("hasAIKey", strings.TrimSpace(cfg.AIAPIKey) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	scrapeClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	aiClient := ai.NewClient(
		&http.Client{Timeout: cfg.AITimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		fetch.DefaultPolicy(),
		ai.Config{APIURL: cfg.AIAPIURL, APIKey: cfg.AIAPIKey, Model: cfg.AIModel},
	)

	webProvider := websearch.NewProvider(websearch.Config{
		Endpoint: cfg.SearchEngineURL,
		Client:   scrapeClient,
		Policy:   fetch.DefaultPolicy(),
	})

	catalogCfg := catalog.Config{
		Sources:   buildCatalogSources(cfg),
		UserAgent: cfg.UserAgent,
		Client:    scrapeClient,
		Policy:    fetch.DefaultPolicy(),
		Logger:    logger,
		AIConfig:  aiClient.Defaults(),
	}
	if cfg.AIFallbackEnabled {
		catalogCfg.AIFallback = aiClient
	}
	catalogProvider := catalog.NewProvider(catalogCfg)

	searchService := search.NewService(
		webProvider,
		aiClient,
		catalogProvider,
		cfg.RequestTimeout,
		buildServiceOptions(cfg, logger)...,
	)

	handler := apihttp.NewServer(searchService, catalogProvider,
		apihttp.WithLogger(logger),
		apihttp.WithFrontendDefaults(cfg.SearchEngineURL, cfg.ParsingInterfaces),
		apihttp.WithPlayerURLTemplate(cfg.PlayerURLTemplate),
	).Handler()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The AI classification call can legitimately run for minutes on a
		// slow model. Rely on per-request timeouts instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("video aggregator service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("video aggregator service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildCatalogSources(cfg app.Config) []catalog.Source {
	configured := app.ParseCatalogSources(cfg.CatalogSources)
	if len(configured) == 0 {
		return nil
	}
	sources := make([]catalog.Source, 0, len(configured))
	for _, entry := range configured {
		sources = append(sources, catalog.Source{
			Name:               entry.Name,
			BaseURL:            entry.BaseURL,
			SearchPathTemplate: entry.SearchPathTemplate,
		})
	}
	return sources
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{search.WithLogger(logger)}

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}

	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}

	return opts
}
