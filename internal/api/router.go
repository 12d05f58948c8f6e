package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/models"
)

// NewRouter builds the full HTTP handler: routes, CORS and request metrics.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	SetupRoutes(mux, d)

	var h http.Handler = mux
	if d.Metrics != nil {
		h = d.Metrics.InstrumentHandler(h)
	}
	return withCORS(d.AllowedOrigin, h)
}

// SetupRoutes registers every route whose dependencies are present in d.
func SetupRoutes(mux *http.ServeMux, d Deps) {
	logger := d.Logger
	protect := auth.Middleware(d.Auth)
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	mux.HandleFunc("GET /healthz", healthHandler(d.Health, logger))
	mux.HandleFunc("GET /api/info", infoHandler(d, logger))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	if d.Users != nil && d.Verification != nil {
		authHandler := NewAuthHandler(d.Users, d.Verification, d.Auth, logger)
		mux.HandleFunc("POST /auth/v2/register", authHandler.Register)
		mux.HandleFunc("POST /auth/v2/verify-registration", authHandler.VerifyRegistration)
		mux.HandleFunc("POST /auth/v2/send-login-code", authHandler.SendLoginCode)
		mux.HandleFunc("POST /auth/v2/login-with-code", authHandler.LoginWithCode)
		mux.HandleFunc("POST /auth/v2/login-with-password", authHandler.LoginWithPassword)
		mux.HandleFunc("POST /auth/v2/resend-verification", authHandler.ResendVerification)
		mux.HandleFunc("POST /auth/token", authHandler.TokenForm)
		private("GET /auth/me", authHandler.Me)
		private("POST /auth/complete-setup", authHandler.CompleteSetup)
		private("POST /auth/refresh", authHandler.Refresh)
		private("PUT /auth/update-profile", authHandler.UpdateProfile)
		private("POST /auth/change-password", authHandler.ChangePassword)
	}

	if d.Stocks != nil {
		stockHandler := NewStockHandler(d.Stocks, logger)
		private("GET /user/stocks", stockHandler.List)
		private("POST /user/stocks", stockHandler.Follow)
		private("DELETE /user/stocks/{symbol}", stockHandler.Unfollow)
		private("GET /user/stocks/search", stockHandler.Search)
		private("POST /user/stocks/initialize-popular", stockHandler.InitializePopular)
	}

	if d.Market != nil && d.Stocks != nil {
		marketHandler := NewMarketHandler(d.Market, d.News, d.Stocks, logger)
		private("GET /api/market/quote/{symbol}", marketHandler.Quote)
		private("POST /api/market/quotes", marketHandler.Quotes)
		private("GET /api/market/followed", marketHandler.Followed)
		private("GET /api/market/history/{symbol}", marketHandler.History)
		private("GET /api/market/search", marketHandler.Search)
		private("GET /api/market/summary", marketHandler.Summary)
		private("GET /api/market/company/{symbol}", marketHandler.Company)
		private("GET /api/market/cache-stats", marketHandler.CacheStats)
		private("POST /api/market/prefetch", marketHandler.Prefetch)
		if d.News != nil {
			private("GET /api/news/{symbol}", marketHandler.News)
		}

		stream := NewMarketStream(d.Market, d.Stocks, d.Auth, d.AllowedOrigin, d.QuotePushInterval, logger)
		mux.Handle("GET /ws/market-data", stream)
	}

	if d.Analysis != nil && d.Stocks != nil {
		analysisHandler := NewAnalysisHandler(d.Analysis, d.Stocks, logger)
		private("GET /news/custom-summary", analysisHandler.CustomSummary)
		private("GET /news/analysis-stream/{ticker}", analysisHandler.Stream)
		private("DELETE /news/cache/clear", analysisHandler.ClearCache)
		private("POST /news/compare", analysisHandler.Compare)
		private("POST /comparison/compare", analysisHandler.Compare)
		private("GET /news/professional-report/{ticker}", analysisHandler.ProfessionalReport)
	}

	if d.History != nil {
		historyHandler := NewHistoryHandler(d.History, logger)
		private("POST /analysis-history", historyHandler.Save)
		private("GET /analysis-history", historyHandler.List)
		private("GET /analysis-history/{id}", historyHandler.Get)
		private("DELETE /analysis-history/{id}", historyHandler.Delete)
	}

	if d.Assistant != nil && d.Impact != nil {
		assistantHandler := NewAssistantHandler(d.Assistant, d.Impact, logger)
		private("POST /ai-assistant/{$}", assistantHandler.Ask)
		private("POST /ai-assistant", assistantHandler.Ask)
		private("POST /market-impact/analyze", assistantHandler.AnalyzeImpact)
	}

	if d.InferenceLogs != nil {
		inferenceLogHandler := NewInferenceLogHandler(d.InferenceLogs, logger)
		private("GET /api/admin/inference-logs", inferenceLogHandler.ListInferenceLogs)
		private("GET /api/admin/inference-logs/stats", inferenceLogHandler.GetInferenceStats)
	}
}

func healthHandler(check func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "healthy", "database": "not configured"}
		status := http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", "error", err)
				body["status"] = "degraded"
				body["database"] = "unavailable"
				status = http.StatusServiceUnavailable
			} else {
				body["database"] = "ok"
			}
		}
		writeJSON(w, logger, status, body)
	}
}

func infoHandler(d Deps, logger *slog.Logger) http.HandlerFunc {
	model := ""
	if d.Analysis != nil {
		model = d.Analysis.Model()
	}
	info := map[string]any{
		"name":           "QuantInsight API",
		"version":        d.Version,
		"llm_model":      model,
		"cache":          d.CacheBackend,
		"news_sources":   d.NewsSources,
		"analysis_types": models.AllAnalysisTypes,
		"popular_stocks": models.PopularSymbols(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if d.DBStats == nil {
			writeJSON(w, logger, http.StatusOK, info)
			return
		}
		body := make(map[string]any, len(info)+1)
		for k, v := range info {
			body[k] = v
		}
		body["database"] = d.DBStats()
		writeJSON(w, logger, http.StatusOK, body)
	}
}
