package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/database"
	"github.com/quantinsight/quantinsight/internal/models"
)

// HistoryHandler stores and replays a user's recent analyses.
type HistoryHandler struct {
	history HistoryStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewHistoryHandler(history HistoryStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger, now: time.Now}
}

// HistoryItem is the client facing shape of a saved analysis.
type HistoryItem struct {
	ID           string          `json:"id"`
	Tickers      []string        `json:"tickers"`
	AnalysisType string          `json:"analysis_type"`
	Results      json.RawMessage `json:"results"`
	Status       string          `json:"status"`
	StartTime    time.Time       `json:"startTime"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

func toHistoryItem(h models.AnalysisHistory) HistoryItem {
	results := h.Results
	if len(results) == 0 {
		results = json.RawMessage("{}")
	}
	return HistoryItem{
		ID:           h.AnalysisID,
		Tickers:      h.Tickers,
		AnalysisType: h.AnalysisType,
		Results:      results,
		Status:       h.Status,
		StartTime:    h.CreatedAt,
		CompletedAt:  h.CompletedAt,
	}
}

// Save handles POST /analysis-history
func (h *HistoryHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveHistoryRequest
	if !bind(w, r, &req) {
		return
	}
	results, err := json.Marshal(req.Results)
	if err != nil {
		writeError(w, http.StatusBadRequest, "results must be a JSON object")
		return
	}
	if req.Results == nil {
		results = json.RawMessage("{}")
	}
	status := req.Status
	if status == "" {
		status = "completed"
	}
	completed := h.now().UTC()

	claims, _ := auth.UserFromContext(r.Context())
	entry := &models.AnalysisHistory{
		UserID:       claims.UserID,
		AnalysisID:   req.AnalysisID,
		Tickers:      normalizeSymbols(req.Tickers),
		AnalysisType: req.AnalysisType,
		Results:      results,
		Status:       status,
		CompletedAt:  &completed,
	}
	if err := h.history.Save(r.Context(), entry); err != nil {
		serverError(w, h.logger, "failed to save analysis history", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"message": "Analysis saved successfully",
	})
}

// List handles GET /analysis-history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	entries, err := h.history.List(r.Context(), claims.UserID)
	if err != nil {
		serverError(w, h.logger, "failed to list analysis history", err)
		return
	}
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toHistoryItem(e))
	}
	writeJSON(w, h.logger, http.StatusOK, items)
}

// Get handles GET /analysis-history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	entry, err := h.history.Get(r.Context(), claims.UserID, r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		serverError(w, h.logger, "failed to load analysis", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toHistoryItem(*entry))
}

// Delete handles DELETE /analysis-history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	err := h.history.Delete(r.Context(), claims.UserID, r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		serverError(w, h.logger, "failed to delete analysis", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, message("Analysis deleted successfully"))
}
