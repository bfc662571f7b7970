// service.go is the query/export surface of the audit subsystem: it translates
// filter criteria into store queries, serializes result sets to CSV, and exposes
// the administrative maintenance operations (purge, retention cleanup, metadata
// backfill). Unlike the write path, errors here propagate to the caller — these
// are explicit reads, not side-effects of an unrelated operation.
package audit

import (
	"context"
	"log/slog"

	"github.com/libreria/libreria-backend/internal/db/models"
	"github.com/libreria/libreria-backend/internal/db/repositories"
)

// Queries is the read/maintenance port over the audit store. Satisfied by
// repositories.AuditRepository.
type Queries interface {
	List(ctx context.Context, filters repositories.AuditFilters, opts repositories.ListOptions) ([]*models.AuditLog, int, error)
	Stats(ctx context.Context) (*repositories.AuditStats, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
	BackfillMetadata(ctx context.Context) (int64, error)
}

// FilterSource provides the distinct dropdown values for the inventory filter
// UI, queried from the live books table. Satisfied by repositories.BookRepository.
type FilterSource interface {
	DistinctFilterValues(ctx context.Context) (*models.BookFilterValues, error)
}

// DefaultCleanupDays is the retention window applied when the cleanup endpoint
// is called without an explicit days parameter.
const DefaultCleanupDays = 90

// Service implements the audit query/export surface.
type Service struct {
	queries Queries
	books   FilterSource
	logger  *slog.Logger

	listMaxLimit   int
	exportMaxLimit int
}

// NewService creates a Service. Limits below 1 fall back to 100 and 10000.
func NewService(queries Queries, books FilterSource, listMaxLimit, exportMaxLimit int, logger *slog.Logger) *Service {
	if listMaxLimit < 1 {
		listMaxLimit = 100
	}
	if exportMaxLimit < listMaxLimit {
		exportMaxLimit = 10000
	}
	return &Service{
		queries:        queries,
		books:          books,
		logger:         logger,
		listMaxLimit:   listMaxLimit,
		exportMaxLimit: exportMaxLimit,
	}
}

// Page is a paginated audit log result set.
type Page struct {
	Logs       []*models.AuditLog `json:"logs"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

// FindAll returns one page of filtered audit records, with the page size capped
// at the listing limit.
func (s *Service) FindAll(ctx context.Context, filters repositories.AuditFilters, page, limit int, sortBy, sortDir string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > s.listMaxLimit {
		limit = s.listMaxLimit
	}

	logs, total, err := s.queries.List(ctx, filters, repositories.ListOptions{
		Page:     page,
		Limit:    limit,
		MaxLimit: s.listMaxLimit,
		SortBy:   sortBy,
		SortDir:  sortDir,
	})
	if err != nil {
		return nil, err
	}

	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}

	return &Page{Logs: logs, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

// Stats returns aggregate counts and recent activity.
func (s *Service) Stats(ctx context.Context) (*repositories.AuditStats, error) {
	return s.queries.Stats(ctx)
}

// exportLogs fetches all records matching the filters, up to the export ceiling.
func (s *Service) exportLogs(ctx context.Context, filters repositories.AuditFilters) ([]*models.AuditLog, error) {
	logs, _, err := s.queries.List(ctx, filters, repositories.ListOptions{
		Page:     1,
		Limit:    s.exportMaxLimit,
		MaxLimit: s.exportMaxLimit,
	})
	return logs, err
}

// ExportCSV renders all records matching the filters as a generic CSV document.
func (s *Service) ExportCSV(ctx context.Context, filters repositories.AuditFilters) (string, error) {
	logs, err := s.exportLogs(ctx, filters)
	if err != nil {
		return "", err
	}
	return ExportCSV(logs)
}

// ExportInventoryCSV renders all Book records matching the filters as an
// inventory CSV document with decoded metadata columns.
func (s *Service) ExportInventoryCSV(ctx context.Context, filters repositories.AuditFilters) (string, error) {
	book := "Book"
	filters.EntityType = &book
	logs, err := s.exportLogs(ctx, filters)
	if err != nil {
		return "", err
	}
	return ExportInventoryCSV(logs)
}

// InventoryFilterOptions returns distinct genre/publisher/author values from the
// live books table for dropdown population, bypassing the audit log.
func (s *Service) InventoryFilterOptions(ctx context.Context) (*models.BookFilterValues, error) {
	return s.books.DistinctFilterValues(ctx)
}

// DeleteAll purges every audit record. Irreversible.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	count, err := s.queries.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("purged all audit logs", "deleted", count)
	return count, nil
}

// CleanupOlderThan hard-deletes records older than the given number of days.
// Non-positive values fall back to the 90-day default.
func (s *Service) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		days = DefaultCleanupDays
	}
	count, err := s.queries.DeleteOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}
	s.logger.Info("cleaned up old audit logs", "days", days, "deleted", count)
	return count, nil
}

// BackfillMetadata fills metadata from stored request snapshots for legacy Book
// records missing it.
func (s *Service) BackfillMetadata(ctx context.Context) (int64, error) {
	count, err := s.queries.BackfillMetadata(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("backfilled audit metadata", "updated", count)
	return count, nil
}
