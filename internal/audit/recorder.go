// recorder.go decouples audit persistence from the request path. Records are
// handed to a bounded channel and written by a single background goroutine, so
// audit latency never adds to client-perceived latency and a slow store cannot
// pile up unbounded goroutines. When the queue is full new records are dropped
// with a warning rather than blocking the response.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/libreria/libreria-backend/internal/db/models"
	"github.com/libreria/libreria-backend/internal/telemetry"
)

// Store is the persistence port the recorder writes to. Satisfied by
// repositories.AuditRepository.
type Store interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Recorder accepts finalized audit records for asynchronous persistence.
// Record must never block and must never return an error to the caller:
// audit persistence is best-effort from the request path's perspective.
type Recorder interface {
	Record(log *models.AuditLog)
}

// writeTimeout bounds each database write so one stuck insert cannot stall the
// writer goroutine forever.
const writeTimeout = 5 * time.Second

// StoreRecorder is the production Recorder: a bounded queue feeding a dedicated
// writer goroutine.
type StoreRecorder struct {
	store  Store
	logger *slog.Logger
	queue  chan *models.AuditLog

	closeOnce sync.Once
	done      chan struct{}
}

// NewStoreRecorder creates a StoreRecorder with the given queue capacity and
// starts its writer goroutine. Call Close during shutdown to drain the queue.
func NewStoreRecorder(store Store, queueSize int, logger *slog.Logger) *StoreRecorder {
	if queueSize < 1 {
		queueSize = 1024
	}
	r := &StoreRecorder{
		store:  store,
		logger: logger,
		queue:  make(chan *models.AuditLog, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a record for persistence. When the queue is full the record
// is dropped and counted; the request that produced it is unaffected.
func (r *StoreRecorder) Record(log *models.AuditLog) {
	select {
	case r.queue <- log:
	default:
		telemetry.AuditQueueDrops.Inc()
		r.logger.Warn("audit queue full, dropping record",
			"action", log.Action, "entity_type", log.EntityType, "endpoint", log.Endpoint)
	}
}

// run is the writer loop. Store errors are logged and counted, never
// propagated — a failed audit write must not affect anything else.
func (r *StoreRecorder) run() {
	defer close(r.done)
	for log := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Create(ctx, log); err != nil {
			telemetry.AuditWriteFailures.Inc()
			r.logger.Error("failed to persist audit record",
				"action", log.Action, "entity_type", log.EntityType, "error", err)
		} else {
			telemetry.AuditRecordsWritten.Inc()
		}
		cancel()
	}
}

// Close stops accepting records, drains the queue, and waits for the writer to
// finish. Safe to call more than once.
func (r *StoreRecorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}
