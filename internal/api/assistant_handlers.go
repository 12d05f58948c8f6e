package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantinsight/quantinsight/internal/impact"
)

// AssistantHandler serves the chat assistant and the news impact analyzer.
type AssistantHandler struct {
	assistant AssistantService
	impact    ImpactService
	logger    *slog.Logger
}

func NewAssistantHandler(assistant AssistantService, analyzer ImpactService, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, impact: analyzer, logger: logger}
}

// Ask handles POST /ai-assistant/
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AssistantRequest
	if !bind(w, r, &req) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.assistant.Answer(r.Context(), req.Query))
}

// AnalyzeImpact handles POST /market-impact/analyze
func (h *AssistantHandler) AnalyzeImpact(w http.ResponseWriter, r *http.Request) {
	var req ImpactRequest
	if !bind(w, r, &req) {
		return
	}
	result, err := h.impact.Analyze(r.Context(), impact.Input{
		Text: req.Text,
		URL:  strings.TrimSpace(req.URL),
	})
	switch {
	case err == nil:
		writeJSON(w, h.logger, http.StatusOK, result)
	case errors.Is(err, impact.ErrNoInput), errors.Is(err, impact.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, impact.ErrBlockedSite):
		writeError(w, http.StatusUnprocessableEntity, impact.ErrBlockedSite.Error())
	case errors.Is(err, impact.ErrFetch):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		serverError(w, h.logger, "market impact analysis failed", err)
	}
}
