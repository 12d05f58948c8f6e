package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quantinsight/quantinsight/internal/models"
)

// VerificationRepository stores mailed verification codes.
type VerificationRepository struct {
	db *sql.DB
}

func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// InvalidateUnused marks every outstanding code for email and purpose used.
func (r *VerificationRepository) InvalidateUnused(ctx context.Context, email string, purpose models.VerificationPurpose) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET is_used = TRUE WHERE email = $1 AND purpose = $2 AND is_used = FALSE`,
		email, string(purpose))
	if err != nil {
		return fmt.Errorf("failed to invalidate verification codes: %w", err)
	}
	return nil
}

func (r *VerificationRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	var userID sql.NullString
	if code.UserID != "" {
		userID = sql.NullString{String: code.UserID, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO verification_codes (user_id, email, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, userID, code.Email, code.Code, string(code.Purpose), code.ExpiresAt).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}
	return nil
}

// Find returns the newest code matching all three fields, or nil.
func (r *VerificationRepository) Find(ctx context.Context, email, code string, purpose models.VerificationPurpose) (*models.VerificationCode, error) {
	var (
		v      models.VerificationCode
		userID sql.NullString
		p      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, code, purpose, expires_at, is_used, created_at
		FROM verification_codes
		WHERE email = $1 AND code = $2 AND purpose = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, email, code, string(purpose)).Scan(&v.ID, &userID, &v.Email, &v.Code, &p, &v.ExpiresAt, &v.IsUsed, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification code: %w", err)
	}
	v.UserID = userID.String
	v.Purpose = models.VerificationPurpose(p)
	return &v, nil
}

func (r *VerificationRepository) MarkUsed(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE verification_codes SET is_used = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark verification code used: %w", err)
	}
	return nil
}
