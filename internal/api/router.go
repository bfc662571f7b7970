// Package api wires together all HTTP routes for the bookstore backend.
//
// Route grouping philosophy:
//   - Book reads (/api/v1/books GET) are public with optional authentication, so
//     the storefront can browse without credentials while authenticated traffic
//     still gets actor attribution in the audit trail.
//   - Book mutations require a valid JWT. The audit middleware wraps both groups
//     and records every inventory operation.
//   - User management and the audit-log query surface (/api/v1/audit-logs/)
//     require the admin role.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/libreria/libreria-backend/internal/api/auditlogs"
	"github.com/libreria/libreria-backend/internal/api/authapi"
	"github.com/libreria/libreria-backend/internal/api/books"
	"github.com/libreria/libreria-backend/internal/api/users"
	"github.com/libreria/libreria-backend/internal/audit"
	"github.com/libreria/libreria-backend/internal/config"
	"github.com/libreria/libreria-backend/internal/db/repositories"
	"github.com/libreria/libreria-backend/internal/jobs"
	"github.com/libreria/libreria-backend/internal/middleware"
	"github.com/libreria/libreria-backend/internal/safego"
	"github.com/libreria/libreria-backend/internal/storage"

	// Import storage backends to register them
	_ "github.com/libreria/libreria-backend/internal/storage/local"
	_ "github.com/libreria/libreria-backend/internal/storage/s3"
)

// BackgroundServices holds references to background goroutines and resources
// that must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	auditRecorder  *audit.StoreRecorder
	auditRetention *jobs.AuditRetention
	rateLimiters   []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first: the
// recorder is closed last because requests enqueue records into it.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.auditRetention != nil {
		bg.auditRetention.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditRecorder != nil {
		bg.auditRecorder.Close()
	}
	slog.Info("all background services stopped")
}

// classifierRules converts the configured route registry into classifier rules.
func classifierRules(cfg *config.Config) []audit.RouteRule {
	rules := make([]audit.RouteRule, 0, len(cfg.Audit.Routes))
	for _, r := range cfg.Audit.Routes {
		rules = append(rules, audit.RouteRule{
			PathSubstring: r.PathSubstring,
			EntityType:    r.EntityType,
			Audited:       r.Audited,
		})
	}
	return rules
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	logger := slog.Default()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("storage backend initialized", "backend", cfg.Storage.DefaultBackend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Wrap *sql.DB with sqlx for the book repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	bookRepo := repositories.NewBookRepository(sqlxDB)

	// Audit pipeline: classifier and extractor feed the interceptor; the
	// recorder decouples request latency from database writes.
	classifier := audit.NewClassifier(classifierRules(cfg), cfg.Audit.ExcludedPathSubstrings)
	extractor := audit.NewExtractor(bookRepo, logger)
	recorder := audit.NewStoreRecorder(auditRepo, cfg.Audit.QueueSize, logger)
	auditService := audit.NewService(auditRepo, bookRepo, cfg.Audit.ListMaxLimit, cfg.Audit.ExportMaxLimit, logger)
	auditMW := middleware.AuditMiddleware(middleware.Auditor{
		Classifier: classifier,
		Extractor:  extractor,
		Recorder:   recorder,
	})
	if !cfg.Audit.Enabled {
		auditMW = func(c *gin.Context) { c.Next() }
		slog.Warn("audit logging is disabled")
	}

	// Retention job purges old audit records on a fixed interval.
	var retentionJob *jobs.AuditRetention
	if cfg.Audit.Enabled && cfg.Audit.RetentionDays > 0 {
		retentionJob = jobs.NewAuditRetention(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.CleanupIntervalHours, logger)
		job := retentionJob
		safego.Go(func() {
			job.Start(context.Background())
		})
		slog.Info("audit retention job started",
			"retention_days", cfg.Audit.RetentionDays,
			"interval_hours", cfg.Audit.CleanupIntervalHours)
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes storage backend probe)
	router.GET("/ready", readinessHandler(db, storageBackend))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	bookHandler := books.NewHandler(bookRepo, storageBackend, logger)
	userHandler := users.NewHandler(userRepo, logger)
	authHandler := authapi.NewHandler(userRepo, cfg.Auth.JWT.ExpiresIn, logger)
	auditHandler := auditlogs.NewHandler(auditService)

	// Initialize rate limiters
	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	uploadRateLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	apiV1 := router.Group("/api/v1")
	{
		// Session endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/logout", middleware.AuthMiddleware(userRepo), authHandler.Logout)
			authGroup.GET("/me", middleware.AuthMiddleware(userRepo), authHandler.Me)
		}

		// File serving for the local storage backend with ServeDirectly enabled
		apiV1.GET("/files/*filepath", serveFileHandler(storageBackend))

		// Public book reads — optional auth populates the actor for the audit
		// trail when a token is present.
		publicBooks := apiV1.Group("/books")
		publicBooks.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		publicBooks.Use(middleware.OptionalAuthMiddleware(userRepo))
		publicBooks.Use(auditMW)
		{
			publicBooks.GET("", bookHandler.List)
			publicBooks.GET("/filter-options", bookHandler.FilterOptions)
			publicBooks.GET("/:id", bookHandler.Get)
			publicBooks.GET("/:id/cover", bookHandler.Cover)
		}

		// Book mutations require a valid JWT
		protectedBooks := apiV1.Group("/books")
		protectedBooks.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		protectedBooks.Use(middleware.AuthMiddleware(userRepo))
		protectedBooks.Use(auditMW)
		{
			protectedBooks.POST("", bookHandler.Create)
			protectedBooks.PUT("/:id", bookHandler.Update)
			protectedBooks.DELETE("/:id", bookHandler.Delete)
			protectedBooks.POST("/:id/cover",
				middleware.RateLimitMiddleware(uploadRateLimiter),
				bookHandler.UploadCover)
		}

		// Admin-only surface: user management and the audit-log query API
		adminGroup := apiV1.Group("")
		adminGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		adminGroup.Use(middleware.AuthMiddleware(userRepo))
		adminGroup.Use(middleware.AdminMiddleware())
		{
			usersGroup := adminGroup.Group("/users")
			{
				usersGroup.GET("", userHandler.List)
				usersGroup.GET("/:id", userHandler.Get)
				usersGroup.POST("", userHandler.Create)
				usersGroup.PUT("/:id", userHandler.Update)
				usersGroup.DELETE("/:id", userHandler.Delete)
			}

			auditGroup := adminGroup.Group("/audit-logs")
			{
				auditGroup.GET("", auditHandler.List)
				auditGroup.GET("/stats", auditHandler.Stats)
				auditGroup.GET("/actions", auditHandler.Actions)
				auditGroup.GET("/export", auditHandler.Export)
				auditGroup.GET("/inventory", auditHandler.Inventory)
				auditGroup.GET("/inventory/export", auditHandler.InventoryExport)
				auditGroup.GET("/inventory/filter-options", auditHandler.InventoryFilterOptions)
				auditGroup.DELETE("/delete-all", auditHandler.DeleteAll)
				auditGroup.GET("/cleanup", auditHandler.Cleanup)
				auditGroup.GET("/update-metadata", auditHandler.UpdateMetadata)
			}
		}
	}

	bg := &BackgroundServices{
		auditRecorder:  recorder,
		auditRetention: retentionJob,
		rateLimiters:   []*middleware.RateLimiter{authRateLimiter, generalRateLimiter, uploadRateLimiter},
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a Kubernetes readiness gate fails when cover uploads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Check storage backend — probe with a known-absent sentinel path.
		// Exists() exercises authentication and network connectivity without
		// creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// serveFileHandler streams stored files (cover images) for the local storage
// backend when ServeDirectly is enabled.
func serveFileHandler(storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Param("filepath")
		if len(path) > 0 && path[0] == '/' {
			path = path[1:]
		}

		reader, err := storageBackend.Download(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "file not found"})
			return
		}
		defer reader.Close()

		c.DataFromReader(http.StatusOK, -1, "application/octet-stream", reader, nil)
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
