package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantinsight/quantinsight/internal/assistant"
	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/logging"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/server"
)

const version = "1.0.0"

func main() {
	transport := flag.String("transport", "stdio", "stdio or http")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.NewWithWriter(os.Stderr, cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := cache.New(ctx, cfg.Cache.RedisURL, logger)
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}
	market := marketdata.NewService(
		marketdata.NewProviders(cfg.Providers, httpClient),
		cache.NewLoader(store, logger, nil),
		cfg.Cache.TTL, logger,
	)
	mcp := NewMCPServer(assistant.NewToolkit(market), version, logger)

	logger.Info("starting QuantInsight MCP server", "transport", *transport)

	switch *transport {
	case "stdio":
		if err := mcp.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			logger.Error("stdio server failed", "error", err)
			os.Exit(1)
		}
	case "http":
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcp)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		serverCfg := cfg.Server
		serverCfg.StaticDir = ""
		srv := server.New(serverCfg, logger, enableCORS(mux))
		go func() {
			<-ctx.Done()
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error("shutdown error", "error", err)
			}
		}()
		if err := srv.Start(); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown transport", "transport", *transport)
		os.Exit(2)
	}
	logger.Info("MCP server stopped")
}
