package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goodtune/ghbroker/internal/container"
)

func TestContainerExecuteReturnsErrorResultWhenInstanceFailsToStart(t *testing.T) {
	dir := t.TempDir()
	failingCLI := filepath.Join(dir, "failcli")
	if err := os.WriteFile(failingCLI, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("writing failing CLI: %v", err)
	}

	b := NewContainerBackend(ContainerConfig{
		Container: container.Config{
			CLI:         failingCLI,
			Image:       "example/runtime:latest",
			CacheVolume: "ghbroker-cache",
			CacheMount:  "/cache",
			CodeMount:   "/workspace",
			BaseWorkDir: dir,
		},
		RuntimeCommand: "node",
	})
	defer b.Close()

	result, err := b.Execute(context.Background(), "console.log(1)", 1000)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when the instance cannot be started")
	}
}

func TestEnsureDriverRebindsOnContainerRecreation(t *testing.T) {
	dir := t.TempDir()
	cliPath := filepath.Join(dir, "fakecli")
	if err := os.WriteFile(cliPath, []byte("#!/bin/sh\nexec cat\n"), 0o755); err != nil {
		t.Fatalf("writing fake CLI: %v", err)
	}

	b := NewContainerBackend(ContainerConfig{
		Container:          container.Config{CLI: cliPath, BaseWorkDir: dir},
		TypeCheckerCommand: []string{"typechecker"},
	})
	defer b.Close()

	if err := b.ensureDriver(context.Background(), "container-a"); err != nil {
		t.Fatalf("ensureDriver: %v", err)
	}
	first := b.driver
	if first == nil {
		t.Fatal("expected a driver to be bound")
	}

	if err := b.ensureDriver(context.Background(), "container-a"); err != nil {
		t.Fatalf("ensureDriver (same id): %v", err)
	}
	if b.driver != first {
		t.Error("expected the driver to be reused for an unchanged container id")
	}

	if err := b.ensureDriver(context.Background(), "container-b"); err != nil {
		t.Fatalf("ensureDriver (new id): %v", err)
	}
	if b.driver == first {
		t.Error("expected a new driver after the container was recreated")
	}
}
