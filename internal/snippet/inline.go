package snippet

import (
	"fmt"
	"regexp"
	"strings"
)

var directiveRegexp = regexp.MustCompile(`//\s*@use-snippet\s*:\s*([A-Za-z0-9_-]+)`)

// exportStrip is applied in order: each pattern is matched line-anchored and
// replaced so an inlined snippet reads as ordinary local code.
var exportStrip = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`(?m)^export async function`), "async function"},
	{regexp.MustCompile(`(?m)^export function`), "function"},
	{regexp.MustCompile(`(?m)^export (const|let|var)\b`), "$1"},
	{regexp.MustCompile(`(?m)^export abstract class`), "abstract class"},
	{regexp.MustCompile(`(?m)^export class`), "class"},
	{regexp.MustCompile(`(?m)^export default\s*`), ""},
	{regexp.MustCompile(`(?m)^export (type|interface)\b`), "$1"},
}

func stripExports(code string) string {
	for _, t := range exportStrip {
		code = t.pattern.ReplaceAllString(code, t.replace)
	}
	return code
}

// directives returns the names referenced by "// @use-snippet: <name>" in
// source order, deduplicated on first occurrence.
func directives(source string) []string {
	matches := directiveRegexp.FindAllStringSubmatch(source, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Inliner resolves directives against a Store and composes final program
// text.
type Inliner struct {
	store *Store
}

// NewInliner creates an Inliner backed by store.
func NewInliner(store *Store) *Inliner {
	return &Inliner{store: store}
}

// Inline resolves every snippet reachable from userCode's directives,
// detects cycles, and composes the final text.
func (in *Inliner) Inline(userCode string) (string, error) {
	order, err := in.resolveOrder(userCode)
	if err != nil {
		return "", err
	}
	if len(order) == 0 {
		return userCode, nil
	}

	var b strings.Builder
	b.WriteString("// composed by ghbroker -- snippets inlined below user-directive order\n")
	for _, name := range order {
		snip, err := in.store.Get(name)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "// --- snippet: %s ---\n", name)
		b.WriteString(stripExports(snip.Code))
		if !strings.HasSuffix(snip.Code, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("// === USER CODE ===\n")
	b.WriteString(userCode)
	return b.String(), nil
}

// resolveOrder builds the dependency graph reachable from userCode's
// directives via BFS, detects cycles via DFS with an on-stack set, and
// returns a topological order (dependencies first).
func (in *Inliner) resolveOrder(userCode string) ([]string, error) {
	roots := directives(userCode)

	deps := make(map[string][]string)
	visited := make(map[string]bool)
	queue := append([]string{}, roots...)
	for _, name := range roots {
		visited[name] = true
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if !in.store.Exists(name) {
			return nil, fmt.Errorf("snippet '%s' not found", name)
		}
		snip, err := in.store.Get(name)
		if err != nil {
			return nil, err
		}
		children := directives(snip.Code)
		deps[name] = children
		for _, child := range children {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		path = append(path, name)
		for _, child := range deps[name] {
			switch color[child] {
			case white:
				if err := visit(child); err != nil {
					return err
				}
			case gray:
				start := 0
				for i, n := range path {
					if n == child {
						start = i
						break
					}
				}
				chain := append(append([]string{}, path[start:]...), child)
				return fmt.Errorf("snippet dependency cycle: %s", strings.Join(chain, " → "))
			case black:
				// already resolved
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range roots {
		if color[name] == white {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	return order, nil
}
