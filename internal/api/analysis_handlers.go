package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/agents"
	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/models"
)

// AnalysisHandler exposes the agent pipeline over HTTP and SSE.
type AnalysisHandler struct {
	pipeline AnalysisService
	stocks   StockStore
	logger   *slog.Logger
}

func NewAnalysisHandler(pipeline AnalysisService, stocks StockStore, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{pipeline: pipeline, stocks: stocks, logger: logger}
}

func (h *AnalysisHandler) analysisType(w http.ResponseWriter, r *http.Request) (models.AnalysisType, bool) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("analysis_type")))
	t, ok := models.ParseAnalysisType(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "analysis_type must be one of quick, standard, comprehensive")
	}
	return t, ok
}

// CustomSummary handles GET /news/custom-summary?tickers=&analysis_type=
func (h *AnalysisHandler) CustomSummary(w http.ResponseWriter, r *http.Request) {
	t, ok := h.analysisType(w, r)
	if !ok {
		return
	}
	claims, _ := auth.UserFromContext(r.Context())
	explicit := r.URL.Query().Get("tickers")

	var followed []string
	if strings.TrimSpace(explicit) == "" {
		var err error
		followed, err = h.stocks.FollowedSymbols(r.Context(), claims.UserID)
		if err != nil {
			h.logger.Warn("failed to load followed symbols, using defaults", "error", err, "user_id", claims.UserID)
		}
	}

	tickers := agents.ResolveTickers(explicit, followed, t)
	h.logger.Info("custom summary requested", "user_id", claims.UserID, "tickers", tickers, "analysis_type", t)
	writeJSON(w, h.logger, http.StatusOK, h.pipeline.Run(r.Context(), claims.UserID, tickers, t))
}

// Stream handles GET /news/analysis-stream/{ticker}. Each pipeline event is
// written as one "data: {json}" frame and flushed.
func (h *AnalysisHandler) Stream(w http.ResponseWriter, r *http.Request) {
	t, ok := h.analysisType(w, r)
	if !ok {
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut long analyses short.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", "error", err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	emit := func(ev agents.Event) {
		if ctx.Err() != nil {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode stream event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			h.logger.Debug("flush failed", "error", err)
		}
	}

	claims, _ := auth.UserFromContext(ctx)
	if err := h.pipeline.Stream(ctx, claims.UserID, ticker, t, emit); err != nil {
		h.logger.Warn("analysis stream ended early", "ticker", ticker, "error", err)
	}
}

// ClearCache handles DELETE /news/cache/clear?ticker=
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	n, err := h.pipeline.ClearCache(r.Context(), claims.UserID, ticker)
	if err != nil {
		serverError(w, h.logger, "failed to clear analysis cache", err)
		return
	}
	msg := fmt.Sprintf("Cleared %d cached entries", n)
	if ticker != "" {
		msg = "Cleared cache for " + ticker
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "success", "message": msg})
}

// Compare handles POST /news/compare
func (h *AnalysisHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.Tickers = normalizeSymbols(req.Tickers)
	if len(req.Tickers) < 2 {
		writeError(w, http.StatusBadRequest, "At least 2 stocks required for comparison")
		return
	}
	if !validRequest(w, &req) {
		return
	}

	claims, _ := auth.UserFromContext(r.Context())
	result, err := h.pipeline.Compare(r.Context(), claims.UserID, req.Tickers)
	if errors.Is(err, agents.ErrTooFewTickers) {
		writeError(w, http.StatusBadRequest, "At least 2 stocks required for comparison")
		return
	}
	if err != nil {
		serverError(w, h.logger, "comparison failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// ProfessionalReport handles GET /news/professional-report/{ticker}
func (h *AnalysisHandler) ProfessionalReport(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	report, err := h.pipeline.ProfessionalReport(r.Context(), ticker)
	if err != nil {
		serverError(w, h.logger, "professional report failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}
