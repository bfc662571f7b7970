package audit

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/libreria/libreria-backend/internal/db/models"
)

func parseCSV(t *testing.T, doc string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(doc)).ReadAll()
	if err != nil {
		t.Fatalf("parsing generated CSV: %v", err)
	}
	return rows
}

func TestExportCSV(t *testing.T) {
	name := "Ana García"
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	logs := []*models.AuditLog{
		{
			ID:               1,
			ActorDisplayName: &name,
			Action:           models.ActionAdded,
			EntityType:       "Book",
			Description:      `Book created: 'Don Quijote, "El ingenioso hidalgo"' by Cervantes at Francisco de Robles`,
			Status:           models.StatusSuccess,
			Level:            models.LevelInfo,
			IPAddress:        "10.0.0.5",
			Endpoint:         "/api/v1/books",
			HTTPMethod:       "POST",
			ResponseTimeMs:   42,
			CreatedAt:        created,
		},
		{
			ID:         2,
			Action:     models.ActionViewed,
			EntityType: "Book",
			Status:     models.StatusSuccess,
			Level:      models.LevelInfo,
			HTTPMethod: "GET",
			CreatedAt:  created,
		},
	}

	doc, err := ExportCSV(logs)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows := parseCSV(t, doc)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "id" || rows[0][11] != "created_at" {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[1] != "Ana García" {
		t.Errorf("actor = %q", first[1])
	}
	if first[2] != "ADDED" || first[9] != "POST" || first[10] != "42" {
		t.Errorf("row = %v", first)
	}
	// The description carries a comma and quotes; the reader must recover it intact.
	if !strings.Contains(first[4], `Quijote, "El ingenioso hidalgo"`) {
		t.Errorf("description = %q", first[4])
	}
	if first[11] != "2026-03-14T09:30:00Z" {
		t.Errorf("created_at = %q", first[11])
	}

	// Unauthenticated record falls back to the system actor.
	if rows[2][1] != "system" {
		t.Errorf("actor = %q, want system", rows[2][1])
	}
}

func TestExportCSV_EmptySet(t *testing.T) {
	doc, err := ExportCSV(nil)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	rows := parseCSV(t, doc)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}

func TestExportInventoryCSV(t *testing.T) {
	title := "La Regenta"
	author := "Leopoldo Alas"
	publisher := "Librería de Fernando Fe"
	genre := "Novela"
	stock := 7
	price := 18.5
	email := "ana@libreria.example"
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	logs := []*models.AuditLog{
		{
			ID:         10,
			ActorEmail: &email,
			Action:     models.ActionAdded,
			EntityType: "Book",
			Status:     models.StatusSuccess,
			CreatedAt:  created,
			Metadata: &models.BookMetadata{
				Title:     &title,
				Author:    &author,
				Publisher: &publisher,
				Genre:     &genre,
				Stock:     &stock,
				Price:     &price,
			},
		},
		{
			ID:         11,
			Action:     models.ActionSearched,
			EntityType: "Book",
			Status:     models.StatusSuccess,
			CreatedAt:  created,
			// no metadata: search records carry none
		},
	}

	doc, err := ExportInventoryCSV(logs)
	if err != nil {
		t.Fatalf("ExportInventoryCSV: %v", err)
	}

	rows := parseCSV(t, doc)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if len(rows[0]) != 13 || rows[0][4] != "title" || rows[0][9] != "price" {
		t.Errorf("header = %v", rows[0])
	}

	added := rows[1]
	if added[3] != "Book added to inventory: 'La Regenta'" {
		t.Errorf("narrative = %q", added[3])
	}
	if added[4] != "La Regenta" || added[5] != "Leopoldo Alas" || added[8] != "7" || added[9] != "18.50" {
		t.Errorf("metadata columns = %v", added)
	}
	if added[1] != "ana@libreria.example" {
		t.Errorf("actor = %q", added[1])
	}

	searched := rows[2]
	if searched[3] != "Búsqueda en el inventario" {
		t.Errorf("narrative = %q", searched[3])
	}
	for _, col := range []int{4, 5, 6, 7, 8, 9, 10} {
		if searched[col] != "" {
			t.Errorf("column %d = %q, want empty", col, searched[col])
		}
	}
}

func TestInventoryNarratives(t *testing.T) {
	title := "Rayuela"
	m := &models.BookMetadata{Title: &title}

	tests := []struct {
		action models.AuditAction
		want   string
	}{
		{models.ActionAdded, "Book added to inventory: 'Rayuela'"},
		{models.ActionUpdated, "Book updated in inventory: 'Rayuela'"},
		{models.ActionRemoved, "Book removed from inventory: 'Rayuela'"},
		{models.ActionViewed, "Inventory viewed"},
		{models.AuditAction("EXPORT"), "EXPORT"},
	}
	for _, tt := range tests {
		if got := inventoryNarrative(tt.action, m); got != tt.want {
			t.Errorf("inventoryNarrative(%s) = %q, want %q", tt.action, got, tt.want)
		}
	}

	if got := inventoryNarrative(models.ActionRemoved, &models.BookMetadata{}); got != "Book removed from inventory: 'unknown title'" {
		t.Errorf("narrative without title = %q", got)
	}
}
