// Package verification issues and checks the six digit codes mailed to users
// during registration and passwordless login.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	CodeLength = 6
	CodeExpiry = 10 * time.Minute
)

var (
	ErrInvalidCode = errors.New("Invalid verification code")
	ErrCodeUsed    = errors.New("This code has already been used")
	ErrCodeExpired = errors.New("This code has expired")
)

// Store persists verification codes. Find returns nil when nothing matches.
type Store interface {
	InvalidateUnused(ctx context.Context, email string, purpose models.VerificationPurpose) error
	Create(ctx context.Context, code *models.VerificationCode) error
	Find(ctx context.Context, email, code string, purpose models.VerificationPurpose) (*models.VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
}

// UserVerifier flags an account as verified once its registration code is used.
type UserVerifier interface {
	MarkVerified(ctx context.Context, userID string) error
}

type Service struct {
	store  Store
	users  UserVerifier
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, users UserVerifier, mailer Mailer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, users: users, mailer: mailer, logger: logger, now: time.Now}
}

// CreateCode retires any outstanding code for the same email and purpose,
// stores a fresh one and mails it. userID may be empty for login codes.
func (s *Service) CreateCode(ctx context.Context, userID, email string, purpose models.VerificationPurpose) (*models.VerificationCode, error) {
	if err := s.store.InvalidateUnused(ctx, email, purpose); err != nil {
		return nil, fmt.Errorf("invalidate codes: %w", err)
	}

	digits, err := GenerateCode(CodeLength)
	if err != nil {
		return nil, err
	}
	code := &models.VerificationCode{
		UserID:    userID,
		Email:     email,
		Code:      digits,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(CodeExpiry),
	}
	if err := s.store.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	if err := s.mailer.Send(ctx, VerificationMessage(email, digits, purpose)); err != nil {
		// the code stays valid so the user can ask for a resend
		s.logger.Error("failed to send verification email", "email", email, "purpose", purpose, "error", err)
	}
	return code, nil
}

// Verify consumes a code. The returned error is one of ErrInvalidCode,
// ErrCodeUsed or ErrCodeExpired, or a storage failure.
func (s *Service) Verify(ctx context.Context, email, code string, purpose models.VerificationPurpose) error {
	found, err := s.store.Find(ctx, email, code, purpose)
	if err != nil {
		return fmt.Errorf("find code: %w", err)
	}
	switch {
	case found == nil:
		return ErrInvalidCode
	case found.IsUsed:
		return ErrCodeUsed
	case found.Expired(s.now()):
		return ErrCodeExpired
	}

	if err := s.store.MarkUsed(ctx, found.ID); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	if purpose == models.PurposeRegistration && found.UserID != "" && s.users != nil {
		if err := s.users.MarkVerified(ctx, found.UserID); err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}
	}
	return nil
}

// SendWelcome mails the post-verification greeting. Failures are logged only.
func (s *Service) SendWelcome(ctx context.Context, email, firstName string) {
	if err := s.mailer.Send(ctx, WelcomeMessage(email, firstName)); err != nil {
		s.logger.Warn("failed to send welcome email", "email", email, "error", err)
	}
}

// GenerateCode returns n random decimal digits.
func GenerateCode(n int) (string, error) {
	buf := make([]byte, n)
	ten := big.NewInt(10)
	for i := range buf {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}
