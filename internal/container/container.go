// Package container manages the single long-running isolation instance used
// by the container execution backend. It shells out to an external
// container CLI (docker/podman-compatible) rather than linking an SDK,
// mirroring the way the language-service driver is itself an exec'd child.
package container

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// MinAvailableMemoryBytes is the minimum free host memory required before
// starting a new instance. Below this, Ensure fails fast rather than
// launching an instance the host cannot sustain.
const MinAvailableMemoryBytes = 256 * 1024 * 1024

// Config controls image, mounts, and resource limits for the managed
// instance.
type Config struct {
	// CLI is the container CLI binary, e.g. "docker" or "podman".
	CLI string
	// Image is the base image reference to run.
	Image string
	// CacheVolume is a named volume persisting the package-manager cache
	// across instance restarts.
	CacheVolume string
	// CacheMount is the in-container mount point for CacheVolume.
	CacheMount string
	// CodeMount is the in-container mount point for the host work directory.
	CodeMount string
	// CPULimit and MemoryLimit are passed straight through to the CLI's
	// resource flags (e.g. "1" and "512m").
	CPULimit    string
	MemoryLimit string
	// Env is additional ambient variables required inside the instance.
	Env map[string]string
	// BaseWorkDir is the parent directory under which a fresh per-instance
	// work directory is created.
	BaseWorkDir string
}

// Manager owns exactly one container instance for the lifetime of the
// process, starting it lazily on first use.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	containerID string
	name        string
	workDir     string
	shutdown    sync.Once
}

// NewManager creates a Manager. The instance is not started until Ensure is
// first called.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// WorkDir returns the host-side work directory, valid once Ensure has
// returned successfully at least once.
func (m *Manager) WorkDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workDir
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.cfg.CLI, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", m.cfg.CLI, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// imagePresent parses "image list" output as whitespace-separated
// NAME TAG DIGEST rows and looks for a line carrying both the repository
// name and tag of the configured image.
func (m *Manager) imagePresent(ctx context.Context) bool {
	out, err := m.run(ctx, "image", "list")
	if err != nil {
		return false
	}
	repo, tag := splitImageRef(m.cfg.Image)
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, repo) && (tag == "" || strings.Contains(line, tag)) {
			return true
		}
	}
	return false
}

func splitImageRef(ref string) (repo, tag string) {
	if idx := strings.LastIndex(ref, ":"); idx >= 0 && !strings.Contains(ref[idx:], "/") {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}

func (m *Manager) pullImage(ctx context.Context) error {
	_, err := m.run(ctx, "image", "pull", m.cfg.Image)
	return err
}

// running reports whether the given instance name is currently running, by
// substring-matching "Running" in the inspect output.
func (m *Manager) running(ctx context.Context, name string) bool {
	out, err := m.run(ctx, "inspect", name)
	if err != nil {
		return false
	}
	return strings.Contains(out, "Running")
}

// Ensure verifies the managed instance is running, lazily starting one if
// necessary and recovering if the previous instance has vanished.
func (m *Manager) Ensure(ctx context.Context) (containerID string, workDir string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containerID != "" {
		if m.running(ctx, m.name) {
			return m.containerID, m.workDir, nil
		}
		// Instance vanished underneath us; drop the handle and restart.
		m.containerID = ""
		m.name = ""
	}

	if err := checkAvailableMemory(); err != nil {
		return "", "", err
	}

	if !m.imagePresent(ctx) {
		if err := m.pullImage(ctx); err != nil {
			return "", "", fmt.Errorf("pulling base image: %w", err)
		}
	}

	workDir, err := os.MkdirTemp(m.cfg.BaseWorkDir, "ghbroker-instance-")
	if err != nil {
		return "", "", fmt.Errorf("creating work directory: %w", err)
	}
	if err := writeStaticConfig(workDir); err != nil {
		return "", "", err
	}

	name, err := randomName()
	if err != nil {
		return "", "", err
	}

	args := []string{
		"run", "--detach", "--name", name,
		"--volume", fmt.Sprintf("%s:%s", m.cfg.CacheVolume, m.cfg.CacheMount),
		"--volume", fmt.Sprintf("%s:%s", workDir, m.cfg.CodeMount),
	}
	if m.cfg.CPULimit != "" {
		args = append(args, "--cpus", m.cfg.CPULimit)
	}
	if m.cfg.MemoryLimit != "" {
		args = append(args, "--memory", m.cfg.MemoryLimit)
	}
	for k, v := range m.cfg.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, m.cfg.Image, "sleep", "infinity")

	if _, err := m.run(ctx, args...); err != nil {
		os.RemoveAll(workDir)
		return "", "", fmt.Errorf("starting instance: %w", err)
	}

	if err := m.installTypeChecker(ctx, name); err != nil {
		// Best-effort: log but continue.
		fmt.Fprintf(os.Stderr, "ghbroker: installing type checker in %s: %v\n", name, err)
	}

	m.containerID = name
	m.name = name
	m.workDir = workDir
	return m.containerID, m.workDir, nil
}

// checkAvailableMemory refuses to start a new instance when the host is
// under memory pressure.
func checkAvailableMemory() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		// Host memory stats are unavailable on this platform; don't block
		// startup on a check we can't perform.
		return nil
	}
	if vm.Available < MinAvailableMemoryBytes {
		return fmt.Errorf("insufficient host memory to start instance: %d bytes available, want at least %d", vm.Available, MinAvailableMemoryBytes)
	}
	return nil
}

func (m *Manager) installTypeChecker(ctx context.Context, name string) error {
	_, err := m.run(ctx, "exec", name, "npm", "install", "--prefix", m.cfg.CacheMount, "typescript", "@types/node")
	return err
}

// Exec runs cmd inside the managed instance with the given working
// directory, under timeout.
func (m *Manager) Exec(ctx context.Context, workingDir string, timeout time.Duration, cmd ...string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	name := m.name
	m.mu.Unlock()

	if name == "" {
		return "", "", -1, fmt.Errorf("container instance is not running")
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec", "--workdir", workingDir, name}
	args = append(args, cmd...)

	execCmd := exec.CommandContext(execCtx, m.cfg.CLI, args...)
	var outBuf, errBuf bytes.Buffer
	execCmd.Stdout = &outBuf
	execCmd.Stderr = &errBuf
	runErr := execCmd.Run()

	code := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		runErr = nil
	} else if runErr != nil {
		code = -1
	}
	return outBuf.String(), errBuf.String(), code, runErr
}

// Teardown stops and removes the managed instance and its work directory.
// Safe to call more than once; only the first call has effect.
func (m *Manager) Teardown(ctx context.Context) {
	m.shutdown.Do(func() {
		m.mu.Lock()
		name := m.name
		workDir := m.workDir
		m.containerID = ""
		m.name = ""
		m.mu.Unlock()

		if name != "" {
			_, _ = m.run(ctx, "stop", name)
			_, _ = m.run(ctx, "rm", "-f", name)
		}
		if workDir != "" {
			os.RemoveAll(workDir)
		}
	})
}

func writeStaticConfig(workDir string) error {
	npmrc := "cache=/cache\n"
	if err := os.WriteFile(filepath.Join(workDir, ".npmrc"), []byte(npmrc), 0o644); err != nil {
		return fmt.Errorf("writing package-manager config: %w", err)
	}
	tsconfig := `{
  "compilerOptions": {
    "target": "ES2022",
    "module": "commonjs",
    "strict": true,
    "skipLibCheck": true
  }
}
`
	if err := os.WriteFile(filepath.Join(workDir, "tsconfig.json"), []byte(tsconfig), 0o644); err != nil {
		return fmt.Errorf("writing type-checker config: %w", err)
	}
	return nil
}

func randomName() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return "ghbroker-" + string(out), nil
}
