package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/quantinsight/quantinsight/internal/models"
)

// HistoryLimit is how many analyses are kept per user.
const HistoryLimit = 10

// AnalysisHistoryRepository stores completed analyses per user.
type AnalysisHistoryRepository struct {
	db *sql.DB
}

func NewAnalysisHistoryRepository(db *sql.DB) *AnalysisHistoryRepository {
	return &AnalysisHistoryRepository{db: db}
}

// Save upserts the entry by (user, analysis_id) and prunes the user's
// history down to the newest HistoryLimit rows.
func (r *AnalysisHistoryRepository) Save(ctx context.Context, h *models.AnalysisHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	results := []byte(h.Results)
	if len(results) == 0 {
		results = []byte("{}")
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO analysis_history (user_id, analysis_id, tickers, analysis_type, results, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, analysis_id) DO UPDATE SET
			tickers = EXCLUDED.tickers,
			analysis_type = EXCLUDED.analysis_type,
			results = EXCLUDED.results,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
		RETURNING id, created_at
	`, h.UserID, h.AnalysisID, pq.Array(h.Tickers), h.AnalysisType, results, h.Status, h.CompletedAt).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save analysis history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM analysis_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM analysis_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		)
	`, h.UserID, HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to prune analysis history: %w", err)
	}
	return tx.Commit()
}

// List returns the user's newest analyses first.
func (r *AnalysisHistoryRepository) List(ctx context.Context, userID string) ([]models.AnalysisHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, analysis_id, tickers, analysis_type, results, status, created_at, completed_at
		FROM analysis_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis history: %w", err)
	}
	defer rows.Close()

	out := []models.AnalysisHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// Get returns one entry by its analysis_id, scoped to the user.
func (r *AnalysisHistoryRepository) Get(ctx context.Context, userID, analysisID string) (*models.AnalysisHistory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, analysis_id, tickers, analysis_type, results, status, created_at, completed_at
		FROM analysis_history
		WHERE user_id = $1 AND analysis_id = $2
	`, userID, analysisID)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return h, err
}

func (r *AnalysisHistoryRepository) Delete(ctx context.Context, userID, analysisID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM analysis_history WHERE user_id = $1 AND analysis_id = $2`, userID, analysisID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHistory(s scanner) (*models.AnalysisHistory, error) {
	var (
		h       models.AnalysisHistory
		results []byte
	)
	err := s.Scan(&h.ID, &h.UserID, &h.AnalysisID, pq.Array(&h.Tickers), &h.AnalysisType,
		&results, &h.Status, &h.CreatedAt, &h.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis history: %w", err)
	}
	h.Results = results
	return &h, nil
}
