package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goodtune/ghbroker/internal/envstore"
)

func TestNewPreambleBackendRequiresRuntimeCommand(t *testing.T) {
	_, err := NewPreambleBackend(PreambleConfig{})
	if err == nil {
		t.Fatal("expected error for missing RuntimeCommand")
	}
}

func TestExecuteReturnsErrorResultWhenProxyUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	b, err := NewPreambleBackend(PreambleConfig{
		RuntimeCommand: "node",
		WorkDir:        dir,
		ProxyURL:       srv.URL,
	})
	if err != nil {
		t.Fatalf("NewPreambleBackend: %v", err)
	}
	defer b.Close()

	result, err := b.Execute(context.Background(), "console.log(1)", 1000)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure when proxy is unhealthy")
	}
	if result.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestChildEnvIncludesAllowlistedValues(t *testing.T) {
	t.Setenv("GHBROKER_TEST_API_KEY", "abc")
	env, err := envstore.New("GHBROKER_TEST_", "", nil)
	if err != nil {
		t.Fatalf("envstore.New: %v", err)
	}

	dir := t.TempDir()
	b, err := NewPreambleBackend(PreambleConfig{
		RuntimeCommand: "node",
		WorkDir:        dir,
		ProxyURL:       "http://127.0.0.1:0",
		EnvStore:       env,
	})
	if err != nil {
		t.Fatalf("NewPreambleBackend: %v", err)
	}
	defer b.Close()

	found := false
	for _, kv := range b.childEnv() {
		if kv == "API_KEY=abc" {
			found = true
		}
	}
	if !found {
		t.Errorf("childEnv() = %v, want it to include API_KEY=abc", b.childEnv())
	}
}

func TestFindDenialParsesMarkerLine(t *testing.T) {
	stderr := "some runtime warning\n" +
		`{"code":"PERMISSION_DENIED","requiredPermission":{"type":"http","host":"httpbin.org","pathPattern":"/get","methods":["GET"]}}` +
		"\nmore noise\n"
	denial := findDenial(stderr)
	if denial == nil {
		t.Fatal("expected a parsed denial")
	}
	if denial.Host != "httpbin.org" {
		t.Errorf("Host = %q, want httpbin.org", denial.Host)
	}
}

func TestFindDenialReturnsNilWithoutMarker(t *testing.T) {
	if findDenial("nothing interesting here") != nil {
		t.Error("expected nil when no denial marker is present")
	}
}
