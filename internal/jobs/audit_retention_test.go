package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeRetentionStore counts purge calls and returns a scripted result.
type fakeRetentionStore struct {
	mu      sync.Mutex
	calls   int
	gotDays []int
	deleted int64
	err     error
}

func (f *fakeRetentionStore) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotDays = append(f.gotDays, days)
	return f.deleted, f.err
}

func (f *fakeRetentionStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestAuditRetention_RunsInitialPurge(t *testing.T) {
	store := &fakeRetentionStore{deleted: 5}
	job := NewAuditRetention(store, 90, 24, testLogger())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	// The initial purge runs synchronously at loop start.
	deadline := time.After(2 * time.Second)
	for store.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial purge never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	job.Stop()
	<-done

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.gotDays[0] != 90 {
		t.Errorf("purge used %d days, want 90", store.gotDays[0])
	}
}

func TestAuditRetention_DisabledWhenRetentionUnset(t *testing.T) {
	store := &fakeRetentionStore{}
	job := NewAuditRetention(store, 0, 24, testLogger())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled job did not return immediately")
	}

	if store.callCount() != 0 {
		t.Errorf("disabled job ran %d purges, want 0", store.callCount())
	}
}

func TestAuditRetention_StopsOnContextCancel(t *testing.T) {
	store := &fakeRetentionStore{}
	job := NewAuditRetention(store, 30, 24, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not exit on context cancellation")
	}
}

func TestAuditRetention_PurgeErrorDoesNotStopLoop(t *testing.T) {
	store := &fakeRetentionStore{err: errors.New("db down")}
	job := NewAuditRetention(store, 30, 24, testLogger())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("purge never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The loop must still be alive after a failed purge.
	select {
	case <-done:
		t.Fatal("job exited after purge error")
	default:
	}

	job.Stop()
	<-done
}

func TestNewAuditRetention_DefaultsInterval(t *testing.T) {
	job := NewAuditRetention(&fakeRetentionStore{}, 30, 0, testLogger())
	if job.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", job.interval)
	}
}
