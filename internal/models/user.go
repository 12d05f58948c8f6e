package models

import "time"

// User is an account holder. Email is the login identifier.
type User struct {
	ID                string    `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Email             string    `json:"email"`
	HashedPassword    string    `json:"-"`
	IsVerified        bool      `json:"is_verified"`
	HasCompletedSetup bool      `json:"has_completed_setup"`
	CreatedAt         time.Time `json:"created_at"`
}

// VerificationPurpose distinguishes registration codes from passwordless login codes.
type VerificationPurpose string

const (
	PurposeRegistration VerificationPurpose = "registration"
	PurposeLogin        VerificationPurpose = "login"
)

// VerificationCode is a single-use six digit code mailed to a user.
type VerificationCode struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id,omitempty"`
	Email     string              `json:"email"`
	Code      string              `json:"-"`
	Purpose   VerificationPurpose `json:"purpose"`
	ExpiresAt time.Time           `json:"expires_at"`
	IsUsed    bool                `json:"is_used"`
	CreatedAt time.Time           `json:"created_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (v VerificationCode) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
