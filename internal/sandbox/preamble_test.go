package sandbox

import (
	"strings"
	"testing"
)

func TestRenderRequiresProxyURL(t *testing.T) {
	_, err := Render(Config{})
	if err == nil {
		t.Fatal("expected error for missing ProxyURL")
	}
}

func TestRenderEmbedsProxyURLAndAllowlist(t *testing.T) {
	out, err := Render(Config{
		ProxyURL:       "http://127.0.0.1:4555",
		AllowedEnvVars: []string{"API_KEY", "REGION"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, `"http://127.0.0.1:4555"`) {
		t.Error("rendered preamble missing proxy URL")
	}
	if !strings.Contains(out, `"API_KEY"`) || !strings.Contains(out, `"REGION"`) {
		t.Error("rendered preamble missing allowlisted env var names")
	}
	if !strings.Contains(out, "PERMISSION_DENIED") {
		t.Error("rendered preamble missing denial handling")
	}
}

func TestRenderEmptyAllowlist(t *testing.T) {
	out, err := Render(Config{ProxyURL: "http://127.0.0.1:4555"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "ALLOWED_ENV_VARS = new Set") {
		t.Error("expected allowlist set to still be emitted when empty")
	}
}
