package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/goodtune/ghbroker/internal/container"
	"github.com/goodtune/ghbroker/internal/langserver"
)

// ContainerConfig configures the isolated-instance execution backend.
type ContainerConfig struct {
	Container container.Config
	// RuntimeCommand executes source inside the instance, e.g. "node".
	RuntimeCommand string
	// TypeCheckerCommand launches the type-checker server inside the
	// instance, exec'd by the CLI the same way user code is.
	TypeCheckerCommand []string
}

// ContainerBackend manages exactly one long-running isolation instance and
// its bound language-service driver
type ContainerBackend struct {
	cfg     ContainerConfig
	mgr     *container.Manager
	driver  *langserver.Driver
	// driverContainerID is the instance the bound driver's exec session
	// belongs to; it stops matching mgr.Ensure's result once Ensure has
	// recreated the instance underneath it.
	driverContainerID string
	cliPath           string
}

// NewContainerBackend creates a ContainerBackend. The instance and the
// language-service driver are started lazily on first Execute.
func NewContainerBackend(cfg ContainerConfig) *ContainerBackend {
	return &ContainerBackend{
		cfg:     cfg,
		mgr:     container.NewManager(cfg.Container),
		cliPath: cfg.Container.CLI,
	}
}

func (b *ContainerBackend) ensureDriver(ctx context.Context, containerID string) error {
	if b.driver != nil && b.driverContainerID == containerID {
		return nil
	}
	if b.driver != nil {
		b.driver.Stop()
		b.driver = nil
	}
	args := append([]string{"exec", "-i", containerID}, b.cfg.TypeCheckerCommand...)
	cmd := exec.CommandContext(context.Background(), b.cliPath, args...)
	driver, err := langserver.Start(cmd)
	if err != nil {
		return fmt.Errorf("starting language-service driver: %w", err)
	}
	b.driver = driver
	b.driverContainerID = containerID
	return nil
}

// Execute implements Backend: generate a random filename, write source into
// the work directory, request diagnostics, then exec the runtime inside the
// instance.
func (b *ContainerBackend) Execute(ctx context.Context, source string, timeoutMS int64) (*Result, error) {
	containerID, workDir, err := b.mgr.Ensure(ctx)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("starting isolated instance: %v", err)}, nil
	}
	if err := b.ensureDriver(ctx, containerID); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	id, err := randomID(16)
	if err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("ghbroker-exec-%s.ts", id)
	hostPath := filepath.Join(workDir, filename)
	if err := os.WriteFile(hostPath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("writing source into work directory: %w", err)
	}
	defer os.Remove(hostPath)

	codePath := b.cfg.Container.CodeMount + "/" + filename

	diagnostics, diagErr := b.driver.GetDiagnostics(ctx, codePath)
	if diagErr != nil {
		return &Result{Success: false, Error: fmt.Sprintf("type-checker: %v", diagErr)}, nil
	}
	if len(diagnostics) > 0 {
		msg := diagnostics[0]
		for _, d := range diagnostics[1:] {
			msg += "\n" + d
		}
		return &Result{Success: false, Error: msg}, nil
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	stdout, stderr, code, err := b.mgr.Exec(ctx, b.cfg.Container.CodeMount, timeout, b.cfg.RuntimeCommand, codePath)
	if denial := findDenial(stderr); denial != nil {
		return &Result{Success: false, Error: deniedCode, PermissionRequired: denial}, nil
	}
	if err != nil {
		return &Result{Success: false, Error: err.Error(), ExitCode: intPtr(code), Output: stdout}, nil
	}
	if code != 0 {
		errMsg := stderr
		if errMsg == "" {
			errMsg = fmt.Sprintf("exec exited with code %d", code)
		}
		return &Result{Success: false, Error: errMsg, ExitCode: intPtr(code), Output: stdout}, nil
	}

	return &Result{Success: true, Output: stdout, ExitCode: intPtr(0)}, nil
}

// Driver returns the bound language-service driver, or nil if the instance
// has not started yet.
func (b *ContainerBackend) Driver() *langserver.Driver {
	return b.driver
}

// Close tears down the language-service driver and the isolation instance.
func (b *ContainerBackend) Close() error {
	if b.driver != nil {
		b.driver.Stop()
		b.driver = nil
		b.driverContainerID = ""
	}
	b.mgr.Teardown(context.Background())
	return nil
}

var _ Backend = (*ContainerBackend)(nil)
