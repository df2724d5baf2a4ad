package envstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAmbientValuesStripsPrefix(t *testing.T) {
	t.Setenv("BROKER_ENV_FOO", "bar")
	t.Setenv("UNRELATED", "x")

	values := ambientValues("BROKER_ENV_")
	if values["FOO"] != "bar" {
		t.Errorf("values[FOO] = %q, want bar", values["FOO"])
	}
	if _, ok := values["UNRELATED"]; ok {
		t.Error("expected UNRELATED to be excluded")
	}
}

func TestFileValuesTakePrecedenceOverAmbient(t *testing.T) {
	t.Setenv("BROKER_ENV_FOO", "ambient")
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("FOO=file\n"), 0o600)

	s, err := New("BROKER_ENV_", path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, ok := s.Get("FOO")
	if !ok || v != "file" {
		t.Errorf("Get(FOO) = %q, %v, want file, true", v, ok)
	}
}

func TestEnvFileParsingSkipsCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("# a comment\n\nFOO=bar\n  \nBAZ=\"quoted value\"\n"), 0o600)

	values, err := readEnvFile(path)
	if err != nil {
		t.Fatalf("readEnvFile: %v", err)
	}
	if values["FOO"] != "bar" {
		t.Errorf("FOO = %q, want bar", values["FOO"])
	}
	if values["BAZ"] != "quoted value" {
		t.Errorf("BAZ = %q, want %q", values["BAZ"], "quoted value")
	}
}

func TestSetAndUnsetPersistToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	s, err := New("BROKER_ENV_", path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Set("FOO", "bar"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := s.Get("FOO")
	if !ok || v != "bar" {
		t.Errorf("Get(FOO) = %q, %v", v, ok)
	}

	if err := s.Unset("FOO"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if _, ok := s.Get("FOO"); ok {
		t.Error("expected FOO to be gone after Unset")
	}
}

func TestSetRejectsInvalidName(t *testing.T) {
	dir := t.TempDir()
	s, err := New("BROKER_ENV_", filepath.Join(dir, ".env"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Set("1BAD", "x"); err == nil {
		t.Fatal("expected an error for an invalid variable name")
	}
}

func TestReadWriteEnvFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	want := map[string]string{
		"PLAIN":   "value",
		"SPACED":  "has space",
		"QUOTED":  `has "quotes"`,
		"NEWLINE": "line1\nline2",
	}
	if err := writeEnvFile(path, want); err != nil {
		t.Fatalf("writeEnvFile: %v", err)
	}
	got, err := readEnvFile(path)
	if err != nil {
		t.Fatalf("readEnvFile: %v", err)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("got[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestNamesAreSorted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("ZEBRA=1\nALPHA=2\n"), 0o600)

	s, err := New("BROKER_ENV_", path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := s.Names()
	if len(names) != 2 || names[0] != "ALPHA" || names[1] != "ZEBRA" {
		t.Errorf("Names() = %v, want sorted [ALPHA ZEBRA]", names)
	}
}
