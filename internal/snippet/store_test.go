package snippet

import (
	"strings"
	"testing"
)

func TestSaveRejectsInvalidName(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	_, err := store.Save("bad name!", "/** @description x */ export const X=1")
	if err == nil {
		t.Fatal("expected error for invalid name")
	}
}

func TestSaveRequiresDescription(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	_, err := store.Save("nodoc", "export const X = 1")
	if err == nil {
		t.Fatal("expected error for missing @description")
	}
}

func TestSaveThenGet(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	code := "/** @description adds numbers */\nexport function add(a, b) { return a + b; }\n"
	saved, err := store.Save("util", code)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Description != "adds numbers" {
		t.Errorf("Description = %q, want %q", saved.Description, "adds numbers")
	}

	got, err := store.Get("util")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != code {
		t.Errorf("Code = %q, want %q", got.Code, code)
	}
}

func TestExistsAndDelete(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if store.Exists("util") {
		t.Fatal("expected Exists() to be false before save")
	}
	if _, err := store.Save("util", "/** @description d */ export const X=1"); err != nil {
		t.Fatal(err)
	}
	if !store.Exists("util") {
		t.Fatal("expected Exists() to be true after save")
	}
	if err := store.Delete("util"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists("util") {
		t.Fatal("expected Exists() to be false after delete")
	}
}

func TestListReturnsAllSnippets(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	store.Save("a", "/** @description a */ export const A=1")
	store.Save("b", "/** @description b */ export const B=2")

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d snippets, want 2", len(list))
	}
}

func TestExtractDescriptionStripsTrailingAsterisks(t *testing.T) {
	desc, ok := extractDescription("/**\n * @description   trims whitespace and stars  ***\n */\nexport const X=1;")
	if !ok {
		t.Fatal("expected a description to be extracted")
	}
	if strings.Contains(desc, "*") {
		t.Errorf("description retained asterisks: %q", desc)
	}
}
