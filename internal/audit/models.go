// Package audit persists the execution log and permission audit trail, an
// ambient observability concern layered on top of the core broker.
package audit

import (
	"context"
	"time"

	"github.com/goodtune/ghbroker/internal/capability"
)

// ExecutionRecord is one row per executeCode call.
type ExecutionRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Backend    string // "preamble" | "container"
	Success    bool
	ExitCode   *int
	Error      string
	DurationMS int64
}

// PermissionEvent is one row per permission-store mutation or denial.
type PermissionEvent struct {
	ID         string
	Timestamp  time.Time
	Action     string // "grant" | "revoke" | "check_denied" | "clear"
	Capability capability.Capability
	RequestID  string
}

// Store defines the persistence operations audit needs.
type Store interface {
	CreateExecutionRecord(ctx context.Context, rec *ExecutionRecord) error
	ListExecutionRecords(ctx context.Context, limit int) ([]*ExecutionRecord, error)

	CreatePermissionEvent(ctx context.Context, ev *PermissionEvent) error
	ListPermissionEvents(ctx context.Context, limit int) ([]*PermissionEvent, error)

	Close() error
}

// MigrationExecutor is implemented by stores that can run migrations.
type MigrationExecutor interface {
	EnsureMigrationsTable(ctx context.Context) error
	AppliedMigrations(ctx context.Context) ([]string, error)
	RunMigration(ctx context.Context, name, sql string) error
}
