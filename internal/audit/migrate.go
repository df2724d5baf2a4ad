package audit

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

const migrationsDir = "migrations/sqlite"

// MigrationStatus describes a migration's applied state.
type MigrationStatus struct {
	Name    string
	Applied bool
}

// Migrator runs audit-database migrations.
type Migrator struct {
	db Store
}

// NewMigrator creates a new Migrator.
func NewMigrator(db Store) *Migrator {
	return &Migrator{db: db}
}

func (m *Migrator) executor() (MigrationExecutor, error) {
	executor, ok := m.db.(MigrationExecutor)
	if !ok {
		return nil, fmt.Errorf("store does not support migrations")
	}
	return executor, nil
}

func upFiles() ([]string, error) {
	entries, err := fs.ReadDir(sqliteMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// PendingMigrations returns the migrations not yet applied.
func (m *Migrator) PendingMigrations(ctx context.Context) ([]string, error) {
	executor, err := m.executor()
	if err != nil {
		return nil, err
	}

	files, err := upFiles()
	if err != nil {
		return nil, err
	}

	applied, err := executor.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	var pending []string
	for _, f := range files {
		name := strings.TrimSuffix(f, ".up.sql")
		if !appliedSet[name] {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// Migrate runs all pending migrations in order.
func (m *Migrator) Migrate(ctx context.Context) error {
	executor, err := m.executor()
	if err != nil {
		return err
	}

	if err := executor.EnsureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring migrations table: %w", err)
	}

	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return err
	}

	for _, name := range pending {
		filename := name + ".up.sql"
		data, err := fs.ReadFile(sqliteMigrations, migrationsDir+"/"+filename)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", filename, err)
		}
		if err := executor.RunMigration(ctx, name, string(data)); err != nil {
			return fmt.Errorf("running migration %s: %w", name, err)
		}
	}
	return nil
}

// Status reports the applied state of every known migration.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	executor, err := m.executor()
	if err != nil {
		return nil, err
	}

	if err := executor.EnsureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensuring migrations table: %w", err)
	}

	files, err := upFiles()
	if err != nil {
		return nil, err
	}

	applied, err := executor.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	var statuses []MigrationStatus
	for _, f := range files {
		name := strings.TrimSuffix(f, ".up.sql")
		statuses = append(statuses, MigrationStatus{Name: name, Applied: appliedSet[name]})
	}
	return statuses, nil
}
