package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/goodtune/ghbroker/internal/capability"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(str string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, str); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- Migration support ---

func (s *SQLiteStore) EnsureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)
	`)
	return err
}

func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM schema_migrations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) RunMigration(ctx context.Context, name, sqlStr string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("executing migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// --- Execution log ---

func (s *SQLiteStore) CreateExecutionRecord(ctx context.Context, rec *ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_log (id, started_at, finished_at, backend, success, exit_code, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Backend, rec.Success, exitCode, rec.Error, rec.DurationMS)
	return err
}

func (s *SQLiteStore) ListExecutionRecords(ctx context.Context, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, backend, success, exit_code, error, duration_ms
		FROM execution_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExecutionRecord
	for rows.Next() {
		rec := &ExecutionRecord{}
		var startedStr, finishedStr string
		var exitCode sql.NullInt64
		if err := rows.Scan(&rec.ID, &startedStr, &finishedStr, &rec.Backend, &rec.Success, &exitCode, &rec.Error, &rec.DurationMS); err != nil {
			return nil, err
		}
		rec.StartedAt = parseTime(startedStr)
		rec.FinishedAt = parseTime(finishedStr)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Permission audit ---

func (s *SQLiteStore) CreatePermissionEvent(ctx context.Context, ev *PermissionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	capJSON, err := json.Marshal(ev.Capability)
	if err != nil {
		return fmt.Errorf("marshaling capability: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permission_audit (id, timestamp, action, capability, request_id)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.Timestamp.Format(time.RFC3339Nano), ev.Action, string(capJSON), ev.RequestID)
	return err
}

func (s *SQLiteStore) ListPermissionEvents(ctx context.Context, limit int) ([]*PermissionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, capability, request_id
		FROM permission_audit ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermissionEvent
	for rows.Next() {
		ev := &PermissionEvent{}
		var tsStr, capStr string
		var requestID sql.NullString
		if err := rows.Scan(&ev.ID, &tsStr, &ev.Action, &capStr, &requestID); err != nil {
			return nil, err
		}
		ev.Timestamp = parseTime(tsStr)
		if requestID.Valid {
			ev.RequestID = requestID.String
		}
		var c capability.Capability
		if err := json.Unmarshal([]byte(capStr), &c); err == nil {
			ev.Capability = c
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var (
	_ Store             = (*SQLiteStore)(nil)
	_ MigrationExecutor = (*SQLiteStore)(nil)
)
