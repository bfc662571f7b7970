// csv.go renders audit record sets as CSV for the export endpoints. Two flavors
// exist: a generic export and an inventory export that decodes the embedded book
// metadata into its own columns.
package audit

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/libreria/libreria-backend/internal/db/models"
)

var genericCSVHeader = []string{
	"id", "actor", "action", "entity_type", "description", "status", "level",
	"ip_address", "endpoint", "http_method", "response_time_ms", "created_at",
}

var inventoryCSVHeader = []string{
	"id", "actor", "action", "action_description", "title", "author", "publisher",
	"genre", "stock", "price", "description", "status", "created_at",
}

// ExportCSV renders the generic export: one header row plus one row per record.
// Field escaping (quoting fields containing commas, quotes, or newlines) is
// handled by encoding/csv.
func ExportCSV(logs []*models.AuditLog) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(genericCSVHeader); err != nil {
		return "", err
	}
	for _, log := range logs {
		row := []string{
			fmt.Sprintf("%d", log.ID),
			log.ActorName(),
			string(log.Action),
			log.EntityType,
			log.Description,
			string(log.Status),
			string(log.Level),
			log.IPAddress,
			log.Endpoint,
			log.HTTPMethod,
			fmt.Sprintf("%d", log.ResponseTimeMs),
			log.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

// ExportInventoryCSV renders the inventory export: metadata decoded into
// title/author/publisher/genre/stock/price/description columns, plus a
// book-specific narrative per action.
func ExportInventoryCSV(logs []*models.AuditLog) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(inventoryCSVHeader); err != nil {
		return "", err
	}
	for _, log := range logs {
		m := log.Metadata
		if m == nil {
			m = &models.BookMetadata{}
		}
		row := []string{
			fmt.Sprintf("%d", log.ID),
			log.ActorName(),
			string(log.Action),
			inventoryNarrative(log.Action, m),
			strOrEmpty(m.Title),
			strOrEmpty(m.Author),
			strOrEmpty(m.Publisher),
			strOrEmpty(m.Genre),
			intOrEmpty(m.Stock),
			floatOrEmpty(m.Price),
			strOrEmpty(m.Description),
			string(log.Status),
			log.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

// inventoryNarrative rewrites the record description into a book-centric
// sentence for the inventory export.
func inventoryNarrative(action models.AuditAction, m *models.BookMetadata) string {
	title := "unknown title"
	if m.Title != nil && *m.Title != "" {
		title = *m.Title
	}
	switch action {
	case models.ActionAdded:
		return fmt.Sprintf("Book added to inventory: '%s'", title)
	case models.ActionUpdated:
		return fmt.Sprintf("Book updated in inventory: '%s'", title)
	case models.ActionRemoved:
		return fmt.Sprintf("Book removed from inventory: '%s'", title)
	case models.ActionSearched:
		return "Búsqueda en el inventario"
	case models.ActionViewed:
		return "Inventory viewed"
	default:
		return string(action)
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%d", *n)
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}
