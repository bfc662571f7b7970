// audit_retention.go implements the AuditRetention background job, which
// periodically hard-deletes audit log records older than the configured
// retention window. Deletion is permanent: audit_logs has no soft-delete
// column, so the purge keeps the table bounded without leaving tombstones.
// The job is a no-op when audit.retention_days is zero or negative, so it is
// always safe to start regardless of deployment environment.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/libreria/libreria-backend/internal/telemetry"
)

// RetentionStore is the slice of the audit repository the job needs.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// AuditRetention periodically purges audit records past the retention window.
type AuditRetention struct {
	store         RetentionStore
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
	stopChan      chan struct{}
}

// NewAuditRetention creates a new AuditRetention job.
// intervalHours controls how often the purge runs (default 24h).
func NewAuditRetention(store RetentionStore, retentionDays, intervalHours int, logger *slog.Logger) *AuditRetention {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &AuditRetention{
		store:         store,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalHours) * time.Hour,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background purge loop.
// It runs an initial purge immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (j *AuditRetention) Start(ctx context.Context) {
	if j.retentionDays <= 0 {
		j.logger.Info("audit retention job disabled (audit.retention_days not set)")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("audit retention job started",
		"retention_days", j.retentionDays, "interval", j.interval)

	j.runPurge(ctx)

	for {
		select {
		case <-ticker.C:
			j.runPurge(ctx)
		case <-j.stopChan:
			j.logger.Info("audit retention job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("audit retention job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *AuditRetention) Stop() {
	close(j.stopChan)
}

// runPurge deletes everything older than the retention window.
func (j *AuditRetention) runPurge(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := j.store.DeleteOlderThan(purgeCtx, j.retentionDays)
	if err != nil {
		j.logger.Error("audit retention purge failed", "error", err)
		return
	}
	if deleted > 0 {
		telemetry.AuditRetentionDeletes.Add(float64(deleted))
		j.logger.Info("audit retention purge completed",
			"deleted", deleted, "retention_days", j.retentionDays)
	}
}
