package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/ghbroker/internal/capability"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "audit.db")
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	migrator := NewMigrator(store)
	if err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func TestMigrate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending, err := NewMigrator(store).PendingMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("PendingMigrations = %v, want none after Migrate", pending)
	}

	statuses, err := NewMigrator(store).Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration status")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.Name)
		}
	}
}

func TestExecutionRecordCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	code := 0
	rec := &ExecutionRecord{
		Backend:    "preamble",
		Success:    true,
		ExitCode:   &code,
		DurationMS: 120,
	}
	if err := store.CreateExecutionRecord(ctx, rec); err != nil {
		t.Fatalf("CreateExecutionRecord: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected ID to be set")
	}

	records, err := store.ListExecutionRecords(ctx, 10)
	if err != nil {
		t.Fatalf("ListExecutionRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListExecutionRecords = %d, want 1", len(records))
	}
	if records[0].Backend != "preamble" {
		t.Errorf("Backend = %q, want preamble", records[0].Backend)
	}
	if records[0].ExitCode == nil || *records[0].ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", records[0].ExitCode)
	}
}

func TestPermissionEventCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := &PermissionEvent{
		Action: "check_denied",
		Capability: capability.Capability{
			Kind: capability.KindHTTP,
			Host: "api.example.com",
		},
		RequestID: "req-1",
	}
	if err := store.CreatePermissionEvent(ctx, ev); err != nil {
		t.Fatalf("CreatePermissionEvent: %v", err)
	}

	events, err := store.ListPermissionEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListPermissionEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListPermissionEvents = %d, want 1", len(events))
	}
	if events[0].Capability.Host != "api.example.com" {
		t.Errorf("Host = %q, want api.example.com", events[0].Capability.Host)
	}
	if events[0].RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", events[0].RequestID)
	}
}
