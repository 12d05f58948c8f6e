package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/database"
	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/verification"
)

// AuthHandler serves registration, code and password login, and profile routes.
type AuthHandler struct {
	users    UserStore
	verifier Verifier
	config   auth.Config
	logger   *slog.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(users UserStore, verifier Verifier, config auth.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		verifier: verifier,
		config:   config,
		logger:   logger,
	}
}

// TokenResponse is returned by every login route.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Message     string `json:"message,omitempty"`
}

// Register handles POST /auth/v2/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if !validRequest(w, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := h.users.GetByEmail(r.Context(), email); err == nil {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		serverError(w, h.logger, "failed to look up user", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		serverError(w, h.logger, "failed to hash password", err)
		return
	}
	user := &models.User{
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Email:          email,
		HashedPassword: hash,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		serverError(w, h.logger, "failed to create user", err)
		return
	}

	if _, err := h.verifier.CreateCode(r.Context(), user.ID, user.Email, models.PurposeRegistration); err != nil {
		serverError(w, h.logger, "failed to create verification code", err)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, h.logger, http.StatusOK, user)
}

// VerifyRegistration handles POST /auth/v2/verify-registration
func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !bind(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !h.verify(w, r, email, req.Code, models.PurposeRegistration) {
		return
	}

	user, ok := h.userByEmail(w, r, email)
	if !ok {
		return
	}
	h.verifier.SendWelcome(r.Context(), user.Email, user.FirstName)
	h.issueToken(w, user, "Email verified successfully")
}

// SendLoginCode handles POST /auth/v2/send-login-code
func (h *AuthHandler) SendLoginCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !bind(w, r, &req) {
		return
	}
	user, ok := h.userByEmail(w, r, strings.ToLower(strings.TrimSpace(req.Email)))
	if !ok {
		return
	}
	if !user.IsVerified {
		writeError(w, http.StatusBadRequest, "Please verify your email first")
		return
	}
	if _, err := h.verifier.CreateCode(r.Context(), user.ID, user.Email, models.PurposeLogin); err != nil {
		serverError(w, h.logger, "failed to create login code", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, message("Verification code sent to your email"))
}

// LoginWithCode handles POST /auth/v2/login-with-code
func (h *AuthHandler) LoginWithCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !bind(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !h.verify(w, r, email, req.Code, models.PurposeLogin) {
		return
	}
	user, ok := h.userByEmail(w, r, email)
	if !ok {
		return
	}
	h.issueToken(w, user, "Login successful")
}

// LoginWithPassword handles POST /auth/v2/login-with-password
func (h *AuthHandler) LoginWithPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordLoginRequest
	if !bind(w, r, &req) {
		return
	}
	h.passwordLogin(w, r, req.Email, req.Password)
}

// TokenForm handles POST /auth/token, the form based login where username is the email.
func (h *AuthHandler) TokenForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	h.passwordLogin(w, r, username, password)
}

func (h *AuthHandler) passwordLogin(w http.ResponseWriter, r *http.Request, email, password string) {
	user, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(email)))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		serverError(w, h.logger, "failed to look up user", err)
		return
	}
	if err != nil || !auth.CheckPassword(password, user.HashedPassword) {
		h.logger.Warn("failed login attempt", "ip", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.IsVerified {
		writeError(w, http.StatusBadRequest, "Please verify your email first")
		return
	}
	h.issueToken(w, user, "")
}

// ResendVerification handles POST /auth/v2/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !bind(w, r, &req) {
		return
	}
	user, ok := h.userByEmail(w, r, strings.ToLower(strings.TrimSpace(req.Email)))
	if !ok {
		return
	}
	if user.IsVerified {
		writeError(w, http.StatusBadRequest, "Email already verified")
		return
	}
	if _, err := h.verifier.CreateCode(r.Context(), user.ID, user.Email, models.PurposeRegistration); err != nil {
		serverError(w, h.logger, "failed to create verification code", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, message("Verification code resent"))
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

// CompleteSetup handles POST /auth/complete-setup
func (h *AuthHandler) CompleteSetup(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	if err := h.users.CompleteSetup(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "failed to complete setup", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, message("Setup completed."))
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.issueToken(w, user, "")
}

// UpdateProfile handles PUT /auth/update-profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !bind(w, r, &req) {
		return
	}
	claims, _ := auth.UserFromContext(r.Context())
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if err := h.users.UpdateProfile(r.Context(), claims.UserID, first, last); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "failed to update profile", err)
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !bind(w, r, &req) {
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(req.CurrentPassword, user.HashedPassword) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		serverError(w, h.logger, "failed to hash password", err)
		return
	}
	if err := h.users.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		serverError(w, h.logger, "failed to update password", err)
		return
	}
	h.logger.Info("password changed", "user_id", user.ID)
	writeJSON(w, h.logger, http.StatusOK, message("Password changed successfully"))
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request, email, code string, purpose models.VerificationPurpose) bool {
	err := h.verifier.Verify(r.Context(), email, code, purpose)
	switch {
	case err == nil:
		return true
	case errors.Is(err, verification.ErrInvalidCode),
		errors.Is(err, verification.ErrCodeUsed),
		errors.Is(err, verification.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		serverError(w, h.logger, "failed to verify code", err)
	}
	return false
}

func (h *AuthHandler) userByEmail(w http.ResponseWriter, r *http.Request, email string) (*models.User, bool) {
	user, err := h.users.GetByEmail(r.Context(), email)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		serverError(w, h.logger, "failed to look up user", err)
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		serverError(w, h.logger, "failed to load user", err)
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, user *models.User, msg string) {
	token, err := auth.GenerateToken(user.ID, user.Email, h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		serverError(w, h.logger, "failed to generate token", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Message:     msg,
	})
}
