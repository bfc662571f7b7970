// Package models - audit_log.go defines the AuditLog model: one immutable record per
// audited request, capturing actor, action, affected entity, redacted request/response
// snapshots, network context, timing, and an optional book metadata snapshot.
package models

import "time"

// AuditAction classifies what an audited request did.
type AuditAction string

// Inventory-specific actions (assigned by the route classifier for book routes)
// plus the generic CRUD/auth taxonomy used by other entity types and exports.
const (
	ActionAdded    AuditAction = "ADDED"
	ActionUpdated  AuditAction = "UPDATED"
	ActionRemoved  AuditAction = "REMOVED"
	ActionViewed   AuditAction = "VIEWED"
	ActionSearched AuditAction = "SEARCHED"

	ActionCreate     AuditAction = "CREATE"
	ActionRead       AuditAction = "READ"
	ActionUpdate     AuditAction = "UPDATE"
	ActionDelete     AuditAction = "DELETE"
	ActionLogin      AuditAction = "LOGIN"
	ActionLogout     AuditAction = "LOGOUT"
	ActionExport     AuditAction = "EXPORT"
	ActionImport     AuditAction = "IMPORT"
	ActionSearch     AuditAction = "SEARCH"
	ActionFilter     AuditAction = "FILTER"
	ActionSort       AuditAction = "SORT"
	ActionPagination AuditAction = "PAGINATION"
)

// AllAuditActions lists every action value, in the order shown by the
// /audit-logs/actions endpoint.
var AllAuditActions = []AuditAction{
	ActionAdded, ActionUpdated, ActionRemoved, ActionViewed, ActionSearched,
	ActionCreate, ActionRead, ActionUpdate, ActionDelete,
	ActionLogin, ActionLogout, ActionExport, ActionImport,
	ActionSearch, ActionFilter, ActionSort, ActionPagination,
}

// AuditStatus tracks the lifecycle of a record. Every record is created PENDING
// and transitions exactly once to SUCCESS or FAILURE; terminal records are never
// reopened.
type AuditStatus string

const (
	StatusPending AuditStatus = "PENDING"
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailure AuditStatus = "FAILURE"
)

// AuditLevel is the severity attached to a record.
type AuditLevel string

const (
	LevelInfo    AuditLevel = "INFO"
	LevelWarning AuditLevel = "WARNING"
	LevelError   AuditLevel = "ERROR"
	LevelDebug   AuditLevel = "DEBUG"
)

// BookMetadata is the snapshot of a book's business fields embedded in an audit
// record, enabling downstream filtering and inventory exports without joining to
// the live books table. Populated only for Book entity records.
type BookMetadata struct {
	Title       *string  `json:"title"`
	Author      *string  `json:"author"`
	Publisher   *string  `json:"publisher"`
	Genre       *string  `json:"genre"`
	Stock       *int     `json:"stock"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
}

// AuditLog represents one audited request/response cycle.
type AuditLog struct {
	ID int64 `json:"id"`

	// Actor — absent for unauthenticated requests
	ActorID          *string `json:"actor_id,omitempty"`
	ActorEmail       *string `json:"actor_email,omitempty"`
	ActorDisplayName *string `json:"actor_display_name,omitempty"`

	Action      AuditAction `json:"action"`
	EntityType  string      `json:"entity_type"`
	EntityID    *string     `json:"entity_id,omitempty"`
	Description string      `json:"description"`

	// Redacted structured snapshots, never raw bodies
	RequestSnapshot  map[string]interface{} `json:"request_snapshot,omitempty"`
	ResponseSnapshot map[string]interface{} `json:"response_snapshot,omitempty"`

	Status AuditStatus `json:"status"`
	Level  AuditLevel  `json:"level"`

	// Network context
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	Endpoint   string `json:"endpoint"`
	HTTPMethod string `json:"http_method"`

	ResponseTimeMs int64   `json:"response_time_ms"`
	ErrorMessage   *string `json:"error_message,omitempty"` // present only when Status is FAILURE

	Metadata *BookMetadata `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`
}

// ActorName returns the display name if set, falling back to the actor email,
// then to "system" for unauthenticated records.
func (l *AuditLog) ActorName() string {
	if l.ActorDisplayName != nil && *l.ActorDisplayName != "" {
		return *l.ActorDisplayName
	}
	if l.ActorEmail != nil && *l.ActorEmail != "" {
		return *l.ActorEmail
	}
	return "system"
}

// IsTerminal reports whether the record has reached a final status.
func (l *AuditLog) IsTerminal() bool {
	return l.Status == StatusSuccess || l.Status == StatusFailure
}
