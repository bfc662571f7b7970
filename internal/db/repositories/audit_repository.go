// audit_repository.go implements AuditRepository, the append-only store for audit
// records. It supports filtered, paginated, sorted retrieval (including filters on
// the embedded book metadata JSONB), aggregate stats, bulk purges, and a metadata
// backfill for legacy records.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libreria/libreria-backend/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs. Author, Publisher, and
// Genre match against the embedded metadata snapshot, never against the live
// books table, so audit queries stay consistent for deleted or renamed books.
type AuditFilters struct {
	ActorID    *string
	Action     *models.AuditAction
	EntityType *string
	EntityID   *string
	Status     *models.AuditStatus
	Level      *models.AuditLevel
	StartDate  *time.Time
	EndDate    *time.Time
	// Search is a case-insensitive substring match over description, actor
	// display name, and actor email.
	Search *string
	// Book metadata filters
	Author    *string
	Publisher *string
	Genre     *string
}

// ListOptions controls pagination and ordering of List.
type ListOptions struct {
	Page     int
	Limit    int
	MaxLimit int // ceiling applied to Limit; 100 for listings, higher for exports
	SortBy   string
	SortDir  string // "asc" or "desc"
}

// sortColumns is the allow-list of sortable fields. Unrecognized sort values
// silently fall back to created_at.
var sortColumns = map[string]string{
	"id":          "id",
	"action":      "action",
	"entity_type": "entity_type",
	"status":      "status",
	"level":       "level",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

const auditLogColumns = `id, actor_id, actor_email, actor_display_name, action, entity_type,
		entity_id, description, request_snapshot, response_snapshot, status, level,
		ip_address, user_agent, endpoint, http_method, response_time_ms, error_message,
		metadata, is_active, created_at, updated_at`

// Create appends a new audit record and fills in its assigned id and timestamps.
// Callers on the request path must treat failures as log-only (see the audit
// recorder) — a failed audit write never fails the HTTP response.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	now := time.Now()
	log.CreatedAt = now
	log.UpdatedAt = now
	log.IsActive = true

	requestJSON, err := marshalJSONB(log.RequestSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal request snapshot: %w", err)
	}
	responseJSON, err := marshalJSONB(log.ResponseSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal response snapshot: %w", err)
	}
	var metadataJSON []byte
	if log.Metadata != nil {
		metadataJSON, err = json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (actor_id, actor_email, actor_display_name, action,
			entity_type, entity_id, description, request_snapshot, response_snapshot,
			status, level, ip_address, user_agent, endpoint, http_method,
			response_time_ms, error_message, metadata, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		log.ActorID,
		log.ActorEmail,
		log.ActorDisplayName,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.Description,
		requestJSON,
		responseJSON,
		log.Status,
		log.Level,
		log.IPAddress,
		log.UserAgent,
		log.Endpoint,
		log.HTTPMethod,
		log.ResponseTimeMs,
		log.ErrorMessage,
		metadataJSON,
		log.IsActive,
		log.CreatedAt,
		log.UpdatedAt,
	).Scan(&log.ID)
}

// List retrieves audit logs with filters, pagination, and ordering. It returns
// the matching page and the total count across all pages.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, opts ListOptions) ([]*models.AuditLog, int, error) {
	where, args := buildAuditWhere(filters)

	countQuery := `SELECT COUNT(*) FROM audit_logs` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := clampLimit(opts.Limit, opts.MaxLimit)
	offset := (page - 1) * limit

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if opts.SortDir == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		auditLogColumns, where, column, dir, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// buildAuditWhere assembles the WHERE clause and positional args for the given
// filters. The count and page queries share the result.
func buildAuditWhere(f AuditFilters) (string, []interface{}) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	next := func() int { return len(args) + 1 }

	if f.ActorID != nil {
		where += fmt.Sprintf(` AND actor_id = $%d`, next())
		args = append(args, *f.ActorID)
	}
	if f.Action != nil {
		where += fmt.Sprintf(` AND action = $%d`, next())
		args = append(args, *f.Action)
	}
	if f.EntityType != nil {
		where += fmt.Sprintf(` AND entity_type = $%d`, next())
		args = append(args, *f.EntityType)
	}
	if f.EntityID != nil {
		where += fmt.Sprintf(` AND entity_id = $%d`, next())
		args = append(args, *f.EntityID)
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, next())
		args = append(args, *f.Status)
	}
	if f.Level != nil {
		where += fmt.Sprintf(` AND level = $%d`, next())
		args = append(args, *f.Level)
	}
	if f.StartDate != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, next())
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		where += fmt.Sprintf(` AND created_at <= $%d`, next())
		args = append(args, *f.EndDate)
	}
	if f.Search != nil && *f.Search != "" {
		n := next()
		where += fmt.Sprintf(` AND (description ILIKE $%d OR actor_display_name ILIKE $%d OR actor_email ILIKE $%d)`, n, n, n)
		args = append(args, "%"+*f.Search+"%")
	}
	if f.Author != nil {
		where += fmt.Sprintf(` AND metadata->>'author' ILIKE $%d`, next())
		args = append(args, *f.Author)
	}
	if f.Publisher != nil {
		where += fmt.Sprintf(` AND metadata->>'publisher' ILIKE $%d`, next())
		args = append(args, *f.Publisher)
	}
	if f.Genre != nil {
		where += fmt.Sprintf(` AND metadata->>'genre' ILIKE $%d`, next())
		args = append(args, *f.Genre)
	}

	return where, args
}

// clampLimit normalizes a requested page size against the caller's ceiling.
func clampLimit(limit, max int) int {
	if max < 1 {
		max = 100
	}
	if limit < 1 {
		return 20
	}
	if limit > max {
		return max
	}
	return limit
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var requestJSON, responseJSON, metadataJSON []byte

	err := row.Scan(
		&log.ID,
		&log.ActorID,
		&log.ActorEmail,
		&log.ActorDisplayName,
		&log.Action,
		&log.EntityType,
		&log.EntityID,
		&log.Description,
		&requestJSON,
		&responseJSON,
		&log.Status,
		&log.Level,
		&log.IPAddress,
		&log.UserAgent,
		&log.Endpoint,
		&log.HTTPMethod,
		&log.ResponseTimeMs,
		&log.ErrorMessage,
		&metadataJSON,
		&log.IsActive,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if requestJSON != nil {
		if err := json.Unmarshal(requestJSON, &log.RequestSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request snapshot: %w", err)
		}
	}
	if responseJSON != nil {
		if err := json.Unmarshal(responseJSON, &log.ResponseSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response snapshot: %w", err)
		}
	}
	if metadataJSON != nil {
		log.Metadata = &models.BookMetadata{}
		if err := json.Unmarshal(metadataJSON, log.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return log, nil
}

// AuditStats aggregates record counts for the stats endpoint.
type AuditStats struct {
	Total          int64              `json:"total"`
	ByAction       map[string]int64   `json:"by_action"`
	ByStatus       map[string]int64   `json:"by_status"`
	ByLevel        map[string]int64   `json:"by_level"`
	RecentActivity []*models.AuditLog `json:"recent_activity"`
}

// Stats returns the total record count, per-dimension breakdowns, and the ten
// most recent records.
func (r *AuditRepository) Stats(ctx context.Context) (*AuditStats, error) {
	stats := &AuditStats{
		ByAction: make(map[string]int64),
		ByStatus: make(map[string]int64),
		ByLevel:  make(map[string]int64),
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	for _, dim := range []struct {
		column string
		dest   map[string]int64
	}{
		{"action", stats.ByAction},
		{"status", stats.ByStatus},
		{"level", stats.ByLevel},
	} {
		query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM audit_logs GROUP BY %s`, dim.column, dim.column)
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate audit logs by %s: %w", dim.column, err)
		}
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s aggregate: %w", dim.column, err)
			}
			dim.dest[key] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	recent, _, err := r.List(ctx, AuditFilters{}, ListOptions{Page: 1, Limit: 10, MaxLimit: 10})
	if err != nil {
		return nil, err
	}
	stats.RecentActivity = recent

	return stats, nil
}

// DeleteAll hard-deletes every audit record and returns the number removed.
func (r *AuditRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOlderThan hard-deletes records older than the given number of days and
// returns the number removed. Running it twice with no new records deletes zero
// rows the second time.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	return res.RowsAffected()
}

// BackfillMetadata fills the metadata column from the stored request snapshot
// for legacy Book records that were written before metadata capture existed.
// It is the single maintenance exception to record immutability.
func (r *AuditRepository) BackfillMetadata(ctx context.Context) (int64, error) {
	query := `
		UPDATE audit_logs SET
			metadata = jsonb_build_object(
				'title',       request_snapshot->'body'->'title',
				'author',      request_snapshot->'body'->'author',
				'publisher',   request_snapshot->'body'->'publisher',
				'genre',       request_snapshot->'body'->'genre',
				'stock',       request_snapshot->'body'->'stock',
				'price',       request_snapshot->'body'->'price',
				'description', request_snapshot->'body'->'description'
			),
			updated_at = now()
		WHERE entity_type = 'Book'
		  AND metadata IS NULL
		  AND request_snapshot ? 'body'
	`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill audit metadata: %w", err)
	}
	return res.RowsAffected()
}

func marshalJSONB(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
