// Package control implements the thin request dispatcher exposing
// execute/grant/list/revoke and snippet operations to the outside world.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodtune/ghbroker/internal/audit"
	"github.com/goodtune/ghbroker/internal/capability"
	"github.com/goodtune/ghbroker/internal/executor"
	"github.com/goodtune/ghbroker/internal/langserver"
	"github.com/goodtune/ghbroker/internal/permission"
	"github.com/goodtune/ghbroker/internal/snippet"
)

// TypeCheckerCapable is implemented by backends that carry a bound
// language-service driver, currently only the container backend.
type TypeCheckerCapable interface {
	Driver() *langserver.Driver
}

// Dispatcher exposes every control-surface operation as a Go method with
// validation-without-mutation on bad input.
type Dispatcher struct {
	Store    *permission.Store
	Audit    *audit.Log
	Snippets *snippet.Store
	Inliner  *snippet.Inliner
	Backend  executor.Backend
	Logger   *slog.Logger
}

// New creates a Dispatcher wired to its collaborators.
func New(store *permission.Store, auditLog *audit.Log, snippets *snippet.Store, inliner *snippet.Inliner, backend executor.Backend, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Store:    store,
		Audit:    auditLog,
		Snippets: snippets,
		Inliner:  inliner,
		Backend:  backend,
		Logger:   logger,
	}
}

// ExecuteCode inlines snippets into source, then executes the composed
// program on the configured backend.
func (d *Dispatcher) ExecuteCode(ctx context.Context, source string, timeoutMS int64) (*executor.Result, error) {
	composed, err := d.Inliner.Inline(source)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := d.Backend.Execute(ctx, composed, timeoutMS)
	if err != nil {
		return nil, err
	}

	if d.Audit != nil {
		rec := audit.ExecutionRecord{
			StartedAt:  started,
			FinishedAt: time.Now(),
			Backend:    backendName(d.Backend),
			Success:    result.Success,
			ExitCode:   result.ExitCode,
			Error:      result.Error,
			DurationMS: time.Since(started).Milliseconds(),
		}
		d.Audit.RecordExecution(ctx, rec)
	}

	return result, nil
}

func backendName(b executor.Backend) string {
	switch b.(type) {
	case *executor.PreambleBackend:
		return "preamble"
	case *executor.ContainerBackend:
		return "container"
	default:
		return "unknown"
	}
}

// GrantPermission adds a capability to the permission store.
func (d *Dispatcher) GrantPermission(ctx context.Context, c capability.Capability) error {
	d.Store.Grant(c)
	if d.Audit != nil {
		d.Audit.RecordPermissionEvent(ctx, audit.PermissionEvent{Action: "grant", Capability: c})
	}
	return nil
}

// ListPermissions returns a snapshot of every granted capability.
func (d *Dispatcher) ListPermissions(ctx context.Context) []capability.Capability {
	return d.Store.List()
}

// RevokePermission removes every structurally-equal capability.
func (d *Dispatcher) RevokePermission(ctx context.Context, c capability.Capability) bool {
	removed := d.Store.Revoke(c)
	if d.Audit != nil {
		d.Audit.RecordPermissionEvent(ctx, audit.PermissionEvent{Action: "revoke", Capability: c})
	}
	return removed
}

// SaveSnippet validates and persists a snippet.
func (d *Dispatcher) SaveSnippet(ctx context.Context, name, code string) (*snippet.Snippet, error) {
	return d.Snippets.Save(name, code)
}

// ListSnippets returns every persisted snippet.
func (d *Dispatcher) ListSnippets(ctx context.Context) ([]*snippet.Snippet, error) {
	return d.Snippets.List()
}

// GetSnippet loads a snippet by name.
func (d *Dispatcher) GetSnippet(ctx context.Context, name string) (*snippet.Snippet, error) {
	return d.Snippets.Get(name)
}

// GetSnippetTypes returns the exported function signatures of a snippet,
// which requires an active container backend with a bound language-service
// driver.
func (d *Dispatcher) GetSnippetTypes(ctx context.Context, name string) ([]langserver.ExportedFunctionType, error) {
	tc, ok := d.Backend.(TypeCheckerCapable)
	if !ok {
		return nil, fmt.Errorf("getSnippetTypes requires the container backend with an active type-checker")
	}
	driver := tc.Driver()
	if driver == nil {
		return nil, fmt.Errorf("getSnippetTypes requires an active container instance")
	}

	snip, err := d.Snippets.Get(name)
	if err != nil {
		return nil, err
	}
	return driver.GetExportedFunctionTypes(ctx, snip.Name+".ts")
}

// DeleteSnippet removes a persisted snippet.
func (d *Dispatcher) DeleteSnippet(ctx context.Context, name string) error {
	return d.Snippets.Delete(name)
}

// ListExecutionAudit returns the most recent execution records.
func (d *Dispatcher) ListExecutionAudit(ctx context.Context, limit int) ([]*audit.ExecutionRecord, error) {
	return d.Audit.ListExecutions(ctx, limit)
}

// ListPermissionAudit returns the most recent permission grant/revoke/denial
// events.
func (d *Dispatcher) ListPermissionAudit(ctx context.Context, limit int) ([]*audit.PermissionEvent, error) {
	return d.Audit.ListPermissionEvents(ctx, limit)
}
