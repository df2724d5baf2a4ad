package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Log wraps a Store with convenience methods that fill in identifiers and
// timestamps, and swallow persistence failures into a warning log rather
// than propagating them into the request path they're observing.
type Log struct {
	store  Store
	logger *slog.Logger
}

// NewLog creates a Log around store. logger may be nil.
func NewLog(store Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{store: store, logger: logger}
}

// RecordPermissionEvent persists a permission grant/revoke/check/clear event.
func (l *Log) RecordPermissionEvent(ctx context.Context, ev PermissionEvent) {
	if l == nil || l.store == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := l.store.CreatePermissionEvent(ctx, &ev); err != nil {
		l.logger.Warn("failed to record permission event", "action", ev.Action, "error", err)
	}
}

// RecordExecution persists the outcome of one executeCode call.
func (l *Log) RecordExecution(ctx context.Context, rec ExecutionRecord) {
	if l == nil || l.store == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := l.store.CreateExecutionRecord(ctx, &rec); err != nil {
		l.logger.Warn("failed to record execution", "backend", rec.Backend, "error", err)
	}
}

// ListExecutions returns the most recent execution records, newest first.
func (l *Log) ListExecutions(ctx context.Context, limit int) ([]*ExecutionRecord, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.ListExecutionRecords(ctx, limit)
}

// ListPermissionEvents returns the most recent permission audit entries,
// newest first.
func (l *Log) ListPermissionEvents(ctx context.Context, limit int) ([]*PermissionEvent, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	return l.store.ListPermissionEvents(ctx, limit)
}

// Close closes the underlying store.
func (l *Log) Close() error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close()
}
