package models

import "time"

// Outcomes recorded in InferenceLog.Status.
const (
	InferenceSuccess = "success"
	InferenceError   = "error"
)

// InferenceLog audits one model call made by the agent crew, the chat
// assistant or the impact analyzer. Operation names the caller, such as
// "agent:market_analyst" or "impact:classify". Token, cost and latency
// figures are nil when the provider did not report them, and Metadata holds
// the caller's context (ticker, agent) as a JSON document.
type InferenceLog struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  *int      `json:"input_tokens"`
	OutputTokens *int      `json:"output_tokens"`
	CostUSD      *float64  `json:"cost_usd"`
	LatencyMs    *int      `json:"latency_ms"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message"`
	Metadata     string    `json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}

// Failed reports whether the call ended in an error.
func (l InferenceLog) Failed() bool {
	return l.Status == InferenceError
}

// InferenceLogStats summarizes model usage for the admin stats endpoint.
type InferenceLogStats struct {
	TotalCalls      int     `json:"total_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

// InferenceLogQuery filters the admin log listing. Empty fields match every
// row; the date bounds are inclusive.
type InferenceLogQuery struct {
	Provider  string
	Model     string
	Operation string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
