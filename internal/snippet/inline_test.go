package snippet

import (
	"strings"
	"testing"
)

func TestInlineDetectsCycle(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if _, err := store.Save("a", "/** @description a */\n// @use-snippet: b\nexport const A=1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("b", "/** @description b */\n// @use-snippet: a\nexport const B=2"); err != nil {
		t.Fatal(err)
	}

	in := NewInliner(store)
	_, err := in.Inline("// @use-snippet: a")
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if !strings.Contains(err.Error(), "a → b → a") {
		t.Errorf("error = %q, want it to mention a → b → a", err.Error())
	}
}

func TestInlineComposesSnippetAndUserCode(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	if _, err := store.Save("util", "/** @description util */\nexport const X = 42;"); err != nil {
		t.Fatal(err)
	}

	in := NewInliner(store)
	out, err := in.Inline("// @use-snippet: util\nconsole.log(X)")
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}
	if !strings.Contains(out, "const X = 42;") {
		t.Error("expected exports to be stripped but content retained")
	}
	if strings.Contains(out, "export const X") {
		t.Error("expected export keyword to be stripped")
	}
	if !strings.Contains(out, "--- snippet: util ---") {
		t.Error("expected a snippet marker")
	}
	if !strings.Contains(out, "=== USER CODE ===") {
		t.Error("expected a user-code marker")
	}
	if !strings.Contains(out, "console.log(X)") {
		t.Error("expected verbatim user code to be appended")
	}
}

func TestInlineWithNoDirectivesReturnsSourceUnchanged(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	in := NewInliner(store)

	source := "console.log('no snippets here')\n"
	out, err := in.Inline(source)
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}
	if out != source {
		t.Errorf("Inline(%q) = %q, want the source unchanged", source, out)
	}
}

func TestInlineMissingSnippetFails(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	in := NewInliner(store)
	_, err := in.Inline("// @use-snippet: missing")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected a not-found error mentioning missing, got %v", err)
	}
}

func TestDirectivesDedupPreservingOrder(t *testing.T) {
	names := directives("// @use-snippet: b\n// @use-snippet: a\n// @use-snippet:b")
	want := []string{"b", "a"}
	if len(names) != len(want) {
		t.Fatalf("directives = %v, want %v", names, want)
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("directives[%d] = %q, want %q", i, n, want[i])
		}
	}
}

func TestStripExportsTransforms(t *testing.T) {
	in := strings.Join([]string{
		"export async function f() {}",
		"export function g() {}",
		"export const x = 1;",
		"export let y = 2;",
		"export abstract class A {}",
		"export class B {}",
		"export default foo;",
		"export type T = string;",
		"export interface I {}",
	}, "\n")
	out := stripExports(in)
	for _, bad := range []string{"export async function", "export function", "export const", "export let", "export abstract class", "export class", "export default", "export type", "export interface"} {
		if strings.Contains(out, bad) {
			t.Errorf("expected %q to be stripped, got: %s", bad, out)
		}
	}
}
