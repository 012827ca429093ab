package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/auth"
	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/store"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
	"github.com/lexgraph/legal-assistant-api/pkg/metrics"
)

// loginFailedMessage is returned for every authentication failure so callers
// cannot distinguish unknown users from wrong passwords or disabled accounts.
const loginFailedMessage = "Invalid username or password"

// AuthHandler serves login and the authenticated identity endpoint.
type AuthHandler struct {
	users  store.UserRepo
	issuer *auth.Issuer
	logger *logger.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users store.UserRepo, issuer *auth.Issuer, log *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer, logger: log}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := middleware.ValidateCredentials(req.Username, req.Password); err != nil {
		writeError(w, h.logger, apierr.Validation(err.Error()))
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		h.rejectLogin(w, "unknown_user")
		return
	}
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}
	if !h.users.VerifyPassword(user, req.Password) {
		h.rejectLogin(w, "bad_password")
		return
	}
	if !user.IsActive {
		h.rejectLogin(w, "inactive")
		return
	}

	token, err := h.issuer.CreateToken(user.ID, user.Username)
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, model.TokenResponse{
		AccessToken:     token,
		TokenType:       "bearer",
		ExpiresIn:       h.issuer.ExpirySeconds(),
		UserID:          user.ID,
		Username:        user.Username,
		AvailableTokens: user.AvailableTokens,
	})
}

func (h *AuthHandler) rejectLogin(w http.ResponseWriter, outcome string) {
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	writeError(w, h.logger, apierr.Unauthorized(loginFailedMessage))
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.GetByID(r.Context(), userID)
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, h.logger, apierr.Unauthorized("Account no longer exists"))
		return
	}
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, model.UserInfoResponse{
		ID:              user.ID,
		Username:        user.Username,
		AvailableTokens: user.AvailableTokens,
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
	})
}
