package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// InferenceLogHandler exposes recorded LLM calls for cost and latency review.
type InferenceLogHandler struct {
	repo   InferenceLogStore
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogStore, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// ListInferenceLogs handles GET /api/admin/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.InferenceLogQuery{
		Provider:  q.Get("provider"),
		Model:     q.Get("model"),
		Operation: q.Get("operation"),
		Status:    q.Get("status"),
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		query.Offset = offset
	}

	var ok bool
	if query.StartDate, query.EndDate, ok = dateRange(w, r); !ok {
		return
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		serverError(w, h.logger, "failed to list inference logs", err)
		return
	}
	if logs == nil {
		logs = []models.InferenceLog{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetInferenceStats handles GET /api/admin/inference-logs/stats
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	start, end, ok := dateRange(w, r)
	if !ok {
		return
	}
	stats, err := h.repo.Stats(r.Context(), start, end)
	if err != nil {
		serverError(w, h.logger, "failed to get inference stats", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// dateRange parses optional RFC 3339 start_date and end_date parameters.
func dateRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	parse := func(name string) (*time.Time, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, true
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
			return nil, false
		}
		return &t, true
	}
	start, ok := parse("start_date")
	if !ok {
		return nil, nil, false
	}
	end, ok := parse("end_date")
	if !ok {
		return nil, nil, false
	}
	return start, end, true
}
