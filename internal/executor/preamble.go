package executor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/goodtune/ghbroker/internal/envstore"
	"github.com/goodtune/ghbroker/internal/sandbox"
)

// PreambleConfig configures the in-process preamble backend.
type PreambleConfig struct {
	// RuntimeCommand is the executable that runs JavaScript/TypeScript
	// source (e.g. "node" or "bun").
	RuntimeCommand string
	// RuntimeArgs are extra arguments inserted before the preload and
	// source file arguments (e.g. "--experimental-strip-types").
	RuntimeArgs []string
	// WorkDir holds generated temp files; defaults to os.TempDir().
	WorkDir string
	// ProxyURL is the base URL of the local permission proxy.
	ProxyURL string
	// EnvStore supplies the allowlisted environment variable names baked
	// into the rendered preamble and the name=value pairs injected into
	// the spawned runtime's environment. Nil means no variables are
	// allowlisted.
	EnvStore *envstore.Store
	// HealthClient is used to probe the proxy's /health endpoint.
	HealthClient *http.Client
}

// PreambleBackend executes source in-process via a spawned runtime with the
// sandbox preamble preloaded. It implements Backend.
type PreambleBackend struct {
	cfg PreambleConfig

	mu           sync.RWMutex
	preambleText string
	preamblePath string
}

// NewPreambleBackend renders the preamble once and writes it to a fixed
// location in cfg.WorkDir for reuse across executions.
func NewPreambleBackend(cfg PreambleConfig) (*PreambleBackend, error) {
	if cfg.RuntimeCommand == "" {
		return nil, fmt.Errorf("executor: RuntimeCommand is required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.HealthClient == nil {
		cfg.HealthClient = &http.Client{Timeout: 5 * time.Second}
	}

	b := &PreambleBackend{cfg: cfg}
	if err := b.Refresh(); err != nil {
		return nil, err
	}
	return b, nil
}

// Refresh re-renders the preamble from the env store's current allowlisted
// names. Called once at construction and again whenever the env store
// reloads its backing file, so an added or removed variable takes effect on
// the next Execute without restarting the backend.
func (b *PreambleBackend) Refresh() error {
	var names []string
	if b.cfg.EnvStore != nil {
		names = b.cfg.EnvStore.Names()
	}

	text, err := sandbox.Render(sandbox.Config{
		ProxyURL:       b.cfg.ProxyURL,
		AllowedEnvVars: names,
	})
	if err != nil {
		return fmt.Errorf("rendering sandbox preamble: %w", err)
	}

	path := filepath.Join(b.cfg.WorkDir, "ghbroker-preamble.js")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("writing preamble file: %w", err)
	}

	b.mu.Lock()
	b.preambleText = text
	b.preamblePath = path
	b.mu.Unlock()
	return nil
}

// childEnv returns the ambient process environment extended with the
// allowlisted name=value pairs sourced from cfg.EnvStore, so the spawned
// runtime's process.env.NAME (captured once by the preamble) reflects the
// env store's actual dotenv-backed values rather than just their names.
func (b *PreambleBackend) childEnv() []string {
	env := os.Environ()
	if b.cfg.EnvStore == nil {
		return env
	}
	for _, name := range b.cfg.EnvStore.Names() {
		if value, ok := b.cfg.EnvStore.Get(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}

func (b *PreambleBackend) proxyHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.ProxyURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.cfg.HealthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Execute writes source to a fresh temp file and runs it under the
// configured runtime with the preamble preloaded
func (b *PreambleBackend) Execute(ctx context.Context, source string, timeoutMS int64) (*Result, error) {
	if !b.proxyHealthy(ctx) {
		return &Result{Success: false, Error: "permission proxy is not healthy"}, nil
	}

	id, err := randomID(16)
	if err != nil {
		return nil, err
	}
	srcPath := filepath.Join(b.cfg.WorkDir, fmt.Sprintf("ghbroker-exec-%s.ts", id))
	if err := os.WriteFile(srcPath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("writing source temp file: %w", err)
	}
	defer os.Remove(srcPath)

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.mu.RLock()
	preamblePath := b.preamblePath
	b.mu.RUnlock()

	args := append([]string{}, b.cfg.RuntimeArgs...)
	args = append(args, "--require", preamblePath, srcPath)
	cmd := exec.CommandContext(runCtx, b.cfg.RuntimeCommand, args...)
	cmd.Env = b.childEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if denial := findDenial(stderr.String()); denial != nil {
		return &Result{
			Success:            false,
			Error:              deniedCode,
			PermissionRequired: denial,
		}, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		return &Result{
			Success:  false,
			Error:    "execution timed out",
			ExitCode: intPtr(code),
			Output:   stdout.String(),
		}, nil
	}

	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		code := -1
		if ok {
			code = exitErr.ExitCode()
		}
		errMsg := runErr.Error()
		if stderr.Len() > 0 {
			errMsg = stderr.String()
		}
		return &Result{
			Success:  false,
			Error:    errMsg,
			ExitCode: intPtr(code),
			Output:   stdout.String(),
		}, nil
	}

	return &Result{
		Success:  true,
		Output:   stdout.String(),
		ExitCode: intPtr(0),
	}, nil
}

// Close removes the shared preamble file.
func (b *PreambleBackend) Close() error {
	b.mu.RLock()
	path := b.preamblePath
	b.mu.RUnlock()
	return os.Remove(path)
}

var _ Backend = (*PreambleBackend)(nil)
