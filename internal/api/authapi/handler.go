// Package authapi implements the session endpoints: login issues a JWT after a
// bcrypt password check, logout exists so the audit trail records session ends
// (tokens are stateless and simply expire client-side).
package authapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libreria/libreria-backend/internal/auth"
	"github.com/libreria/libreria-backend/internal/db/repositories"
)

// DefaultTokenTTL is used when no expiry is configured.
const DefaultTokenTTL = 24 * time.Hour

var errInvalidCredentials = errors.New("invalid email or password")

// Handler serves the auth endpoints.
type Handler struct {
	users    *repositories.UserRepository
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users *repositories.UserRepository, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{users: users, tokenTTL: tokenTTL, logger: logger}
}

func fail(c *gin.Context, code int, err error) {
	c.Error(err)
	c.JSON(code, gin.H{"status": "error", "message": err.Error()})
}

// LoginRequest is the payload for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login. Failed attempts always return the
// same message regardless of whether the email exists.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load user: %w", err))
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.logger.Warn("login failed", "email", req.Email, "ip", c.ClientIP())
		fail(c, http.StatusUnauthorized, errInvalidCredentials)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.tokenTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to issue token: %w", err))
		return
	}

	h.logger.Info("login", "user_id", user.ID, "email", user.Email)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"token":      token,
			"expires_in": int64(h.tokenTTL.Seconds()),
			"user":       user,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. JWTs are not revocable server-side;
// the endpoint exists so session ends appear in the audit trail.
func (h *Handler) Logout(c *gin.Context) {
	if userID, exists := c.Get("user_id"); exists {
		h.logger.Info("logout", "user_id", userID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "logged out"})
}

// Me handles GET /api/v1/auth/me, returning the authenticated user.
func (h *Handler) Me(c *gin.Context) {
	user, exists := c.Get("user")
	if !exists {
		fail(c, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}
