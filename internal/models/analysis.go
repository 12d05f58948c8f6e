package models

import (
	"encoding/json"
	"time"
)

// AnalysisType selects how many agents run per ticker.
type AnalysisType string

const (
	AnalysisQuick         AnalysisType = "quick"
	AnalysisStandard      AnalysisType = "standard"
	AnalysisComprehensive AnalysisType = "comprehensive"
)

// AllAnalysisTypes lists every valid AnalysisType.
var AllAnalysisTypes = []AnalysisType{AnalysisQuick, AnalysisStandard, AnalysisComprehensive}

// ParseAnalysisType normalises user input, defaulting to standard.
func ParseAnalysisType(raw string) (AnalysisType, bool) {
	switch AnalysisType(raw) {
	case "":
		return AnalysisStandard, true
	case AnalysisQuick, AnalysisStandard, AnalysisComprehensive:
		return AnalysisType(raw), true
	default:
		return "", false
	}
}

// TickerStatus is the outcome of analyzing one ticker.
type TickerStatus string

const (
	StatusSuccess  TickerStatus = "success"
	StatusFallback TickerStatus = "fallback"
	StatusTimeout  TickerStatus = "timeout"
	StatusError    TickerStatus = "error"
)

// TickerReport is the per-ticker result of the agent pipeline.
type TickerReport struct {
	Status     TickerStatus   `json:"status"`
	Ticker     string         `json:"ticker"`
	Prediction map[string]any `json:"prediction,omitempty"`
	Error      string         `json:"error,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
}

// ReportSummary aggregates a multi-ticker run.
type ReportSummary struct {
	TotalTickers          int       `json:"total_tickers"`
	SuccessfulPredictions int       `json:"successful_predictions"`
	SuccessRate           string    `json:"success_rate"`
	AnalysisType          string    `json:"analysis_type"`
	Model                 string    `json:"model"`
	ExecutionTimeSeconds  float64   `json:"execution_time_seconds"`
	AverageTimePerTicker  float64   `json:"average_time_per_ticker"`
	CacheEnabled          bool      `json:"cache_enabled"`
	Timestamp             time.Time `json:"timestamp"`
}

// Report is the response of a multi-ticker analysis.
type Report struct {
	Reports map[string]TickerReport `json:"reports"`
	Summary ReportSummary           `json:"summary"`
	Status  string                  `json:"status"`
	Message string                  `json:"message"`
}

// RankedStock is one line of a comparison ranking.
type RankedStock struct {
	Rank   int    `json:"rank"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Comparison is the result of comparing several tickers.
type Comparison struct {
	Tickers        []string                `json:"tickers"`
	Analyses       map[string]TickerReport `json:"analyses"`
	Summary        string                  `json:"comparison_summary"`
	Recommendation string                  `json:"recommended_stock"`
	Ranking        []RankedStock           `json:"ranking"`
	Timestamp      time.Time               `json:"timestamp"`
}

// AnalysisHistory is a saved analysis run for a user.
type AnalysisHistory struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	AnalysisID   string          `json:"analysis_id"`
	Tickers      []string        `json:"tickers"`
	AnalysisType string          `json:"analysis_type"`
	Results      json.RawMessage `json:"results"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
