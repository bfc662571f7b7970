// Package users implements the admin-only user management API.
package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/libreria/libreria-backend/internal/auth"
	"github.com/libreria/libreria-backend/internal/db/models"
	"github.com/libreria/libreria-backend/internal/db/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	minPasswordLength = 8
)

// Handler serves the user management API.
type Handler struct {
	users  *repositories.UserRepository
	logger *slog.Logger
}

// NewHandler creates a users handler.
func NewHandler(users *repositories.UserRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{users: users, logger: logger}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func okMsg(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data, "message": msg})
}

func fail(c *gin.Context, code int, err error) {
	c.Error(err)
	c.JSON(code, gin.H{"status": "error", "message": err.Error()})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateUserRequest is the payload for POST /api/v1/users.
type CreateUserRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
	Role      string  `json:"role"`
}

// UpdateUserRequest is the payload for PUT /api/v1/users/:id. Password changes
// go through a separate flow and are not accepted here.
type UpdateUserRequest struct {
	Email     string  `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
	Role      string  `json:"role"`
}

func validRole(role string) bool {
	return role == "admin" || role == "user"
}

// List handles GET /api/v1/users.
func (h *Handler) List(c *gin.Context) {
	page := intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := intQuery(c, "limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	list, total, err := h.users.ListUsers(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list users: %w", err))
		return
	}

	ok(c, gin.H{
		"users":       list,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": (total + limit - 1) / limit,
	})
}

// Get handles GET /api/v1/users/:id.
func (h *Handler) Get(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load user: %w", err))
		return
	}
	if user == nil {
		fail(c, http.StatusNotFound, errors.New("user not found"))
		return
	}
	ok(c, user)
}

// Create handles POST /api/v1/users.
func (h *Handler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fail(c, http.StatusBadRequest, errors.New("a valid email is required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		fail(c, http.StatusBadRequest, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}
	if req.Role != "" && !validRole(req.Role) {
		fail(c, http.StatusBadRequest, errors.New("role must be 'admin' or 'user'"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to hash password: %w", err))
		return
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		Role:         req.Role,
	}

	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if isUniqueViolation(err) {
			fail(c, http.StatusConflict, errors.New("a user with this email already exists"))
			return
		}
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create user: %w", err))
		return
	}

	h.logger.Info("user created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": user, "message": "user created"})
}

// Update handles PUT /api/v1/users/:id.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fail(c, http.StatusBadRequest, errors.New("a valid email is required"))
		return
	}
	if req.Role != "" && !validRole(req.Role) {
		fail(c, http.StatusBadRequest, errors.New("role must be 'admin' or 'user'"))
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load user: %w", err))
		return
	}
	if user == nil {
		fail(c, http.StatusNotFound, errors.New("user not found"))
		return
	}

	user.Email = req.Email
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.Username = req.Username
	if req.Role != "" {
		user.Role = req.Role
	}

	if err := h.users.UpdateUser(c.Request.Context(), user); err != nil {
		if isUniqueViolation(err) {
			fail(c, http.StatusConflict, errors.New("a user with this email already exists"))
			return
		}
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to update user: %w", err))
		return
	}

	okMsg(c, user, "user updated")
}

// Delete handles DELETE /api/v1/users/:id. Accounts are deactivated rather than
// erased so audit records keep their actor references. Admins cannot delete
// their own account.
func (h *Handler) Delete(c *gin.Context) {
	targetID := c.Param("id")
	if actorID, exists := c.Get("user_id"); exists && actorID == targetID {
		fail(c, http.StatusBadRequest, errors.New("cannot delete your own account"))
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), targetID)
	if err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load user: %w", err))
		return
	}
	if user == nil {
		fail(c, http.StatusNotFound, errors.New("user not found"))
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), user.ID); err != nil {
		fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete user: %w", err))
		return
	}

	h.logger.Info("user deleted", "user_id", user.ID, "email", user.Email)
	okMsg(c, gin.H{"id": user.ID}, "user deleted")
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
