// Package auditlogs implements the admin HTTP surface over the audit query and
// export service. Every response uses the uniform envelope
// {status, data, message}; CSV exports are the one exception and stream
// text/csv with a Content-Disposition attachment header.
package auditlogs

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libreria/libreria-backend/internal/audit"
	"github.com/libreria/libreria-backend/internal/db/models"
	"github.com/libreria/libreria-backend/internal/db/repositories"
)

// Handler serves the /api/v1/audit-logs routes.
type Handler struct {
	service *audit.Service
}

// NewHandler creates a new audit logs handler.
func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func okMsg(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data, "message": message})
}

func fail(c *gin.Context, code int, err error, message string) {
	if err != nil {
		c.Error(err)
	}
	c.JSON(code, gin.H{"status": "error", "message": message})
}

// parseFilters reads the filter query parameters shared by listing and export.
func parseFilters(c *gin.Context) repositories.AuditFilters {
	var f repositories.AuditFilters

	strParam := func(name string) *string {
		if v := c.Query(name); v != "" {
			return &v
		}
		return nil
	}

	f.ActorID = strParam("actor_id")
	f.EntityType = strParam("entity_type")
	f.EntityID = strParam("entity_id")
	f.Search = strParam("search")
	f.Author = strParam("author")
	f.Publisher = strParam("publisher")
	f.Genre = strParam("genre")

	if v := c.Query("action"); v != "" {
		action := models.AuditAction(v)
		f.Action = &action
	}
	if v := c.Query("status"); v != "" {
		status := models.AuditStatus(v)
		f.Status = &status
	}
	if v := c.Query("level"); v != "" {
		level := models.AuditLevel(v)
		f.Level = &level
	}
	if t, err := time.Parse(time.RFC3339, c.Query("start_date")); err == nil {
		f.StartDate = &t
	}
	if t, err := time.Parse(time.RFC3339, c.Query("end_date")); err == nil {
		f.EndDate = &t
	}

	return f
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return v
}

// List returns one page of filtered audit records.
// GET /api/v1/audit-logs
func (h *Handler) List(c *gin.Context) {
	page := h.findPage(c, parseFilters(c))
	if page == nil {
		return
	}
	ok(c, page)
}

func (h *Handler) findPage(c *gin.Context, filters repositories.AuditFilters) *audit.Page {
	page, err := h.service.FindAll(
		c.Request.Context(),
		filters,
		intQuery(c, "page", 1),
		intQuery(c, "limit", 20),
		c.Query("sort_by"),
		c.Query("sort_dir"),
	)
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to query audit logs")
		return nil
	}
	return page
}

// Stats returns aggregate counts and recent activity.
// GET /api/v1/audit-logs/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to compute audit stats")
		return
	}
	ok(c, stats)
}

// Actions returns every known audit action value, for filter dropdowns.
// GET /api/v1/audit-logs/actions
func (h *Handler) Actions(c *gin.Context) {
	ok(c, models.AllAuditActions)
}

// Export streams the filtered records as a generic CSV attachment.
// GET /api/v1/audit-logs/export
func (h *Handler) Export(c *gin.Context) {
	csvData, err := h.service.ExportCSV(c.Request.Context(), parseFilters(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to export audit logs")
		return
	}
	sendCSV(c, "audit-logs", csvData)
}

// Inventory returns one page of Book records only.
// GET /api/v1/audit-logs/inventory
func (h *Handler) Inventory(c *gin.Context) {
	filters := parseFilters(c)
	book := "Book"
	filters.EntityType = &book

	page := h.findPage(c, filters)
	if page == nil {
		return
	}
	ok(c, page)
}

// InventoryExport streams the filtered Book records as an inventory CSV with
// decoded metadata columns.
// GET /api/v1/audit-logs/inventory/export
func (h *Handler) InventoryExport(c *gin.Context) {
	csvData, err := h.service.ExportInventoryCSV(c.Request.Context(), parseFilters(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to export inventory audit logs")
		return
	}
	sendCSV(c, "inventario", csvData)
}

// InventoryFilterOptions returns distinct genre/publisher/author dropdown values
// from the live books table.
// GET /api/v1/audit-logs/inventory/filter-options
func (h *Handler) InventoryFilterOptions(c *gin.Context) {
	values, err := h.service.InventoryFilterOptions(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to load filter options")
		return
	}
	ok(c, values)
}

// DeleteAll purges every audit record. Irreversible.
// DELETE /api/v1/audit-logs/delete-all
func (h *Handler) DeleteAll(c *gin.Context) {
	count, err := h.service.DeleteAll(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to purge audit logs")
		return
	}
	okMsg(c, gin.H{"deleted": count}, fmt.Sprintf("deleted %d audit logs", count))
}

// Cleanup hard-deletes records older than ?days=N (default 90).
// GET /api/v1/audit-logs/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	days := intQuery(c, "days", audit.DefaultCleanupDays)
	count, err := h.service.CleanupOlderThan(c.Request.Context(), days)
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to clean up audit logs")
		return
	}
	okMsg(c, gin.H{"deleted": count}, fmt.Sprintf("deleted %d audit logs older than %d days", count, days))
}

// UpdateMetadata backfills metadata from stored request snapshots for legacy
// Book records.
// GET /api/v1/audit-logs/update-metadata
func (h *Handler) UpdateMetadata(c *gin.Context) {
	count, err := h.service.BackfillMetadata(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "failed to backfill audit metadata")
		return
	}
	okMsg(c, gin.H{"updated": count}, fmt.Sprintf("backfilled metadata on %d audit logs", count))
}

func sendCSV(c *gin.Context, name, data string) {
	filename := fmt.Sprintf("%s-%s.csv", name, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(data))
}
