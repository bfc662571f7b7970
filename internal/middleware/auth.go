// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, metrics, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Metrics → Auth → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the actor identity in the Gin context; the audit middleware
// reads it from there, so audit runs after auth on protected routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/libreria/libreria-backend/internal/auth"
	"github.com/libreria/libreria-backend/internal/db/repositories"
)

// setUserContext installs the authenticated user under the context keys the
// audit and admin middlewares read.
func setUserContext(c *gin.Context, userRepo *repositories.UserRepository, userID string) bool {
	user, err := userRepo.GetUserByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		return false
	}
	c.Set("user", user)
	c.Set("user_id", user.ID)
	c.Set("email", user.Email)
	c.Set("display_name", user.DisplayName())
	c.Set("role", user.Role)
	return true
}

// bearerToken extracts the Bearer token from the Authorization header, or ""
// when the header is absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AuthMiddleware validates the JWT on protected routes and loads the user into
// the request context. Requests without a valid token are rejected.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid or expired token",
			})
			return
		}

		if !setUserContext(c, userRepo, claims.UserID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "user not found or deactivated",
			})
			return
		}

		c.Next()
	}
}

// OptionalAuthMiddleware loads the user context when a valid token is present
// but never rejects the request. Used on public read routes so audit records
// still carry the actor when the client happens to be logged in.
func OptionalAuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := auth.ValidateJWT(token); err == nil {
				setUserContext(c, userRepo, claims.UserID)
			}
		}
		c.Next()
	}
}

// AdminMiddleware requires the authenticated user to carry the admin role.
// Must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status":  "error",
				"message": "admin access required",
			})
			return
		}
		c.Next()
	}
}
