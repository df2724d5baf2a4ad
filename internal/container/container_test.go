package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeCLI produces a tiny shell script that stands in for the
// container CLI: it records invocations and answers the handful of
// subcommands Manager relies on.
func writeFakeCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakecli")
	script := `#!/bin/sh
case "$1" in
  image)
    case "$2" in
      list) echo "example/runtime latest sha256:deadbeef" ;;
      pull) echo "pulled" ;;
    esac
    ;;
  run) echo "started" ;;
  inspect) echo "Status: Running" ;;
  exec) shift; shift; shift; shift; "$@" ;;
  stop) echo "stopped" ;;
  rm) echo "removed" ;;
  *) echo "unknown command: $1" >&2; exit 1 ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake CLI: %v", err)
	}
	return path
}

func testConfig(t *testing.T) Config {
	return Config{
		CLI:         writeFakeCLI(t),
		Image:       "example/runtime:latest",
		CacheVolume: "ghbroker-cache",
		CacheMount:  "/cache",
		CodeMount:   "/workspace",
		BaseWorkDir: t.TempDir(),
	}
}

func TestEnsureStartsInstanceOnce(t *testing.T) {
	mgr := NewManager(testConfig(t))
	ctx := context.Background()

	id1, workDir1, err := mgr.Ensure(ctx)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if id1 == "" || workDir1 == "" {
		t.Fatal("expected non-empty container id and work dir")
	}

	id2, workDir2, err := mgr.Ensure(ctx)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if id2 != id1 || workDir2 != workDir1 {
		t.Error("expected Ensure to reuse the running instance")
	}
}

func TestEnsureWritesStaticConfig(t *testing.T) {
	mgr := NewManager(testConfig(t))
	_, workDir, err := mgr.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, name := range []string{".npmrc", "tsconfig.json"} {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	mgr := NewManager(testConfig(t))
	ctx := context.Background()
	if _, _, err := mgr.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	mgr.Teardown(ctx)
	mgr.Teardown(ctx) // must not panic or re-run teardown commands
}

func TestExecRequiresRunningInstance(t *testing.T) {
	mgr := NewManager(testConfig(t))
	_, _, _, err := mgr.Exec(context.Background(), "/workspace", time.Second, "echo", "hi")
	if err == nil {
		t.Fatal("expected error when no instance has been started")
	}
}
