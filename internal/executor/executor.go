// Package executor implements the two execution backends, sharing one
// uniform result contract.
package executor

import (
	"context"

	"github.com/goodtune/ghbroker/internal/capability"
)

// Result is the uniform execution result both backends return.
type Result struct {
	Success            bool                    `json:"success"`
	Output             string                  `json:"output,omitempty"`
	Error              string                  `json:"error,omitempty"`
	PermissionRequired *capability.Capability  `json:"permissionRequired,omitempty"`
	ExitCode           *int                    `json:"exitCode,omitempty"`
}

// Backend runs processed source and returns a uniform result.
type Backend interface {
	Execute(ctx context.Context, source string, timeout int64) (*Result, error)
	// Close releases any resources held by the backend (temp directories,
	// container instances, language-service subprocesses).
	Close() error
}

func intPtr(v int) *int { return &v }
