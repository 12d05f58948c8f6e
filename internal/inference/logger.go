// Package inference records every language model call for cost and latency
// accounting.
package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// Store persists inference log rows.
type Store interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger logs inference calls to the database. With a nil store it only
// writes structured log lines.
type Logger struct {
	repo   Store
	logger *slog.Logger
}

// NewLogger creates a new inference logger. repo may be nil.
func NewLogger(repo Store, logger *slog.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger,
	}
}

// LogCallParams describes one inference call.
type LogCallParams struct {
	Provider     string
	Model        string
	Operation    string
	TokensUsed   int
	InputTokens  *int
	OutputTokens *int
	CostUSD      *float64
	LatencyMs    *int
	Status       string // "success" or "error"
	ErrorMessage *string
	Metadata     map[string]interface{}
}

// LogCall logs an inference call to the database
func (l *Logger) LogCall(ctx context.Context, params LogCallParams) {
	if l == nil {
		return
	}

	var metadataJSON string
	if params.Metadata != nil {
		if jsonBytes, err := json.Marshal(params.Metadata); err == nil {
			metadataJSON = string(jsonBytes)
		}
	}

	log := models.InferenceLog{
		Provider:     params.Provider,
		Model:        params.Model,
		Operation:    params.Operation,
		TokensUsed:   params.TokensUsed,
		InputTokens:  params.InputTokens,
		OutputTokens: params.OutputTokens,
		CostUSD:      params.CostUSD,
		LatencyMs:    params.LatencyMs,
		Status:       params.Status,
		ErrorMessage: params.ErrorMessage,
		Metadata:     metadataJSON,
	}

	level := slog.LevelDebug
	if log.Failed() {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "inference call",
		"provider", log.Provider,
		"model", log.Model,
		"operation", log.Operation,
		"tokens", log.TokensUsed,
		"status", log.Status)

	if l.repo == nil {
		return
	}

	// Log asynchronously to avoid blocking the main operation
	go func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.repo.Create(bgCtx, log); err != nil {
			l.logger.Error("failed to log inference call", "error", err)
		}
	}()
}

// Usage is the token accounting a client reports after a call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// LogLLMCall is the helper every llm client uses after a call.
func (l *Logger) LogLLMCall(ctx context.Context, provider, model, operation string, usage Usage, latency time.Duration, err error, metadata map[string]interface{}) {
	if l == nil {
		return
	}

	params := LogCallParams{
		Provider:     provider,
		Model:        model,
		Operation:    operation,
		TokensUsed:   usage.InputTokens + usage.OutputTokens,
		InputTokens:  &usage.InputTokens,
		OutputTokens: &usage.OutputTokens,
		Metadata:     metadata,
	}

	latencyMs := int(latency.Milliseconds())
	params.LatencyMs = &latencyMs

	if err != nil {
		params.Status = models.InferenceError
		errMsg := err.Error()
		params.ErrorMessage = &errMsg
	} else {
		params.Status = models.InferenceSuccess
	}

	cost := EstimateCost(provider, model, usage.InputTokens, usage.OutputTokens)
	params.CostUSD = &cost

	l.LogCall(ctx, params)
}

// EstimateCost gives a rough USD cost from list prices per million tokens.
func EstimateCost(provider, model string, inputTokens, outputTokens int) float64 {
	var inputCostPer1M, outputCostPer1M float64

	switch provider {
	case "gemini":
		switch {
		case strings.Contains(model, "flash-lite"):
			inputCostPer1M, outputCostPer1M = 0.075, 0.30
		case strings.Contains(model, "flash"):
			inputCostPer1M, outputCostPer1M = 0.10, 0.40
		case strings.Contains(model, "pro"):
			inputCostPer1M, outputCostPer1M = 1.25, 10.00
		default:
			inputCostPer1M, outputCostPer1M = 0.10, 0.40
		}
	case "openai":
		switch model {
		case "gpt-4o":
			inputCostPer1M, outputCostPer1M = 2.50, 10.00
		case "gpt-4o-mini":
			inputCostPer1M, outputCostPer1M = 0.15, 0.60
		case "gpt-4-turbo", "gpt-4-turbo-preview":
			inputCostPer1M, outputCostPer1M = 10.00, 30.00
		default:
			inputCostPer1M, outputCostPer1M = 5.00, 15.00
		}
	case "anthropic":
		switch {
		case strings.Contains(model, "haiku"):
			inputCostPer1M, outputCostPer1M = 1.00, 5.00
		case strings.Contains(model, "opus"):
			inputCostPer1M, outputCostPer1M = 15.00, 75.00
		default:
			inputCostPer1M, outputCostPer1M = 3.00, 15.00
		}
	default:
		return 0
	}

	inputCost := (float64(inputTokens) / 1_000_000) * inputCostPer1M
	outputCost := (float64(outputTokens) / 1_000_000) * outputCostPer1M

	return inputCost + outputCost
}
