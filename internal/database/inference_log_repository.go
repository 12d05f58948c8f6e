package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// InferenceLogRepository handles inference log database operations
type InferenceLogRepository struct {
	db *sql.DB
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *sql.DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

// Create logs a new inference call
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	query := `
		INSERT INTO inference_logs (
			provider, model, operation, tokens_used, input_tokens, output_tokens,
			cost_usd, latency_ms, status, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::jsonb)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.Provider,
		log.Model,
		log.Operation,
		log.TokensUsed,
		log.InputTokens,
		log.OutputTokens,
		log.CostUSD,
		log.LatencyMs,
		log.Status,
		log.ErrorMessage,
		log.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inference log: %w", err)
	}
	return nil
}

// filter accumulates WHERE clauses with positional arguments.
type filter struct {
	clause string
	args   []interface{}
}

func (f *filter) add(cond string, arg interface{}) {
	f.args = append(f.args, arg)
	f.clause += fmt.Sprintf(" AND "+cond, len(f.args))
}

func logFilter(q models.InferenceLogQuery) *filter {
	f := &filter{clause: " WHERE 1=1"}
	if q.Provider != "" {
		f.add("provider = $%d", q.Provider)
	}
	if q.Model != "" {
		f.add("model = $%d", q.Model)
	}
	if q.Operation != "" {
		f.add("operation LIKE $%d", q.Operation+"%")
	}
	if q.Status != "" {
		f.add("status = $%d", q.Status)
	}
	if q.StartDate != nil {
		f.add("created_at >= $%d", *q.StartDate)
	}
	if q.EndDate != nil {
		f.add("created_at <= $%d", *q.EndDate)
	}
	return f
}

// List retrieves inference logs, newest first. Operation matches as a
// prefix so "agent:" selects every agent call.
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	f := logFilter(query)
	sqlQuery := `
		SELECT id, provider, model, operation, tokens_used, input_tokens, output_tokens,
		       cost_usd, latency_ms, status, error_message, COALESCE(metadata::text, ''), created_at
		FROM inference_logs` + f.clause + " ORDER BY created_at DESC"

	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	f.args = append(f.args, limit)
	sqlQuery += fmt.Sprintf(" LIMIT $%d", len(f.args))
	if query.Offset > 0 {
		f.args = append(f.args, query.Offset)
		sqlQuery += fmt.Sprintf(" OFFSET $%d", len(f.args))
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, f.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", err)
	}
	defer rows.Close()

	logs := []models.InferenceLog{}
	for rows.Next() {
		var log models.InferenceLog
		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&log.TokensUsed,
			&log.InputTokens,
			&log.OutputTokens,
			&log.CostUSD,
			&log.LatencyMs,
			&log.Status,
			&log.ErrorMessage,
			&log.Metadata,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// Stats aggregates calls in the optional date window.
func (r *InferenceLogRepository) Stats(ctx context.Context, startDate, endDate *time.Time) (*models.InferenceLogStats, error) {
	f := logFilter(models.InferenceLogQuery{StartDate: startDate, EndDate: endDate})
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(cost_usd), 0),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(latency_ms), 0)
		FROM inference_logs` + f.clause

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, query, f.args...).Scan(
		&stats.TotalCalls,
		&stats.TotalTokens,
		&stats.TotalCostUSD,
		&stats.SuccessfulCalls,
		&stats.FailedCalls,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get inference stats: %w", err)
	}

	return &stats, nil
}
