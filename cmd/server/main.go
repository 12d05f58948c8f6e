package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/quantinsight/quantinsight/internal/agents"
	"github.com/quantinsight/quantinsight/internal/api"
	"github.com/quantinsight/quantinsight/internal/assistant"
	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/database"
	"github.com/quantinsight/quantinsight/internal/impact"
	"github.com/quantinsight/quantinsight/internal/inference"
	"github.com/quantinsight/quantinsight/internal/llm"
	"github.com/quantinsight/quantinsight/internal/logging"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/metrics"
	"github.com/quantinsight/quantinsight/internal/news"
	"github.com/quantinsight/quantinsight/internal/scheduler"
	"github.com/quantinsight/quantinsight/internal/server"
	"github.com/quantinsight/quantinsight/internal/verification"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting QuantInsight", "version", version)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	logger.Info("connecting to database", "url", config.RedactDSN(cfg.Database.URL))
	db, err := database.Connect(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Migrations are non-fatal so the API can start against a database
	// that is already at the current schema.
	if err := database.RunMigrations(db, cfg.Database.MigrationsDir, logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	users := database.NewUserRepository(db)
	stocks := database.NewStockRepository(db)
	codes := database.NewVerificationRepository(db)
	history := database.NewAnalysisHistoryRepository(db)
	inferenceLogs := database.NewInferenceLogRepository(db)

	collector, err := metrics.New()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	store := cache.New(ctx, cfg.Cache.RedisURL, logger)
	defer store.Close()
	loader := cache.NewLoader(store, logger, collector)

	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}
	market := marketdata.NewService(
		marketdata.NewProviders(cfg.Providers, httpClient),
		loader, cfg.Cache.TTL, logger,
		marketdata.WithObserver(collector),
	)
	newsSources := news.BuildSources(cfg.Providers, httpClient)
	aggregator := news.NewAggregator(newsSources, loader, cfg.Cache.TTL.News, logger)
	serper := news.NewSerper(cfg.Providers.SerperKey, httpClient, "", logger)

	inferenceLogger := inference.NewLogger(inferenceLogs, logger)
	client, err := llm.New(ctx, cfg.LLM, logger, inferenceLogger)
	if err != nil {
		logger.Warn("failed to initialize LLM provider, using mock client", "provider", cfg.LLM.Provider, "error", err)
		client = llm.NewMockClient()
	}
	client = llm.Safe(client)
	logger.Info("llm ready", "model", client.Model())

	crew := &agents.Crew{
		LLM:         client,
		Logger:      logger,
		Observer:    collector,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	gatherer := &agents.ContextGatherer{Market: market, News: aggregator, Search: serper}
	pipeline := agents.NewPipeline(crew, gatherer, loader, history, logger,
		agents.WithResultTTL(cfg.Cache.TTL.Analysis))

	chat := assistant.New(client, assistant.NewToolkit(market), stocks, logger)
	analyzer := impact.NewAnalyzer(client, market, nil, logger)

	verifier := verification.NewService(codes, users, verification.NewMailer(cfg.Email, logger), logger)

	handler := api.NewRouter(api.Deps{
		Market:        market,
		News:          aggregator,
		Analysis:      pipeline,
		Assistant:     chat,
		Impact:        analyzer,
		Users:         users,
		Stocks:        stocks,
		History:       history,
		Verification:  verifier,
		InferenceLogs: inferenceLogs,
		Metrics:       collector,
		Auth: auth.Config{
			JWTSecret:     cfg.Auth.JWTSecret,
			TokenDuration: cfg.Auth.TokenDuration,
		},
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Version:       version,
		CacheBackend:  store.Stats(ctx).Type,
		NewsSources:   aggregator.Sources(),
		Health:        func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
		DBStats:       func() map[string]interface{} { return database.Stats(db) },
		Logger:        logger,
	})

	if cfg.Scheduler.PrefetchEnabled {
		prefetch := scheduler.NewPrefetchScheduler(market, stocks, cfg.Scheduler.PrefetchSchedule, logger)
		if err := prefetch.Start(ctx); err != nil {
			logger.Error("failed to start prefetch scheduler", "error", err)
		} else {
			defer prefetch.Stop()
		}
	}

	srv := server.New(cfg.Server, logger, handler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("QuantInsight started", "port", cfg.Server.Port)

	waitForSignal(logger)

	logger.Info("shutting down")
	stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
}
