package langserver

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExportedFunctionType describes one exported function discovered by
// getExportedFunctionTypes.
type ExportedFunctionType struct {
	Name          string `json:"name"`
	Signature     string `json:"signature"`
	Documentation string `json:"documentation"`
}

type openArgs struct {
	File string `json:"file"`
}

type closeArgs struct {
	File string `json:"file"`
}

type semanticDiagArgs struct {
	File string `json:"file"`
}

type diagnostic struct {
	Start    position `json:"start"`
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Code     int      `json:"code"`
}

type position struct {
	Line   int `json:"line"`
	Offset int `json:"offset"`
}

func (d *Driver) openFile(ctx context.Context, path string) error {
	_, err := d.call(ctx, "open", openArgs{File: path})
	return err
}

func (d *Driver) closeFile(ctx context.Context, path string) error {
	_, err := d.call(ctx, "close", closeArgs{File: path})
	return err
}

// GetDiagnostics opens path, requests semantic diagnostics, closes path, and
// formats each as "path(line,col): category TScode: message". Succeeds iff
// there are no diagnostics.
func (d *Driver) GetDiagnostics(ctx context.Context, path string) ([]string, error) {
	if err := d.openFile(ctx, path); err != nil {
		return nil, err
	}
	defer d.closeFile(ctx, path)

	resp, err := d.call(ctx, "semanticDiagnosticsSync", semanticDiagArgs{File: path})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("semanticDiagnosticsSync: %s", resp.Message)
	}

	var diags []diagnostic
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &diags); err != nil {
			return nil, fmt.Errorf("decoding diagnostics: %w", err)
		}
	}

	formatted := make([]string, 0, len(diags))
	for _, diag := range diags {
		formatted = append(formatted, fmt.Sprintf("%s(%d,%d): %s TS%d: %s",
			path, diag.Start.Line, diag.Start.Offset, diag.Category, diag.Code, diag.Text))
	}
	return formatted, nil
}

type navTreeArgs struct {
	File string `json:"file"`
}

type navTreeItem struct {
	Text        string        `json:"text"`
	Kind        string        `json:"kind"`
	KindModifiers string      `json:"kindModifiers"`
	Spans       []span        `json:"spans"`
	ChildItems  []navTreeItem `json:"childItems"`
}

type span struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type quickInfoArgs struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Offset int    `json:"offset"`
}

type quickInfoBody struct {
	DisplayString     string `json:"displayString"`
	Documentation     string `json:"documentation"`
}

// GetExportedFunctionTypes opens path, fetches the navigation tree, and
// recursively walks it collecting every exported function's signature and
// documentation via a quick-info request at its declaration.
func (d *Driver) GetExportedFunctionTypes(ctx context.Context, path string) ([]ExportedFunctionType, error) {
	if err := d.openFile(ctx, path); err != nil {
		return nil, err
	}
	defer d.closeFile(ctx, path)

	resp, err := d.call(ctx, "navtree", navTreeArgs{File: path})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("navtree: %s", resp.Message)
	}

	var root navTreeItem
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &root); err != nil {
			return nil, fmt.Errorf("decoding nav tree: %w", err)
		}
	}

	var results []ExportedFunctionType
	var walk func(item navTreeItem) error
	walk = func(item navTreeItem) error {
		if item.Kind == "function" && containsModifier(item.KindModifiers, "export") && len(item.Spans) > 0 {
			start := item.Spans[0].Start
			info, err := d.GetQuickInfo(ctx, path, start.Line, start.Offset)
			if err != nil {
				return err
			}
			results = append(results, ExportedFunctionType{
				Name:          item.Text,
				Signature:     info.DisplayString,
				Documentation: info.Documentation,
			})
		}
		for _, child := range item.ChildItems {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return results, nil
}

func containsModifier(modifiers, want string) bool {
	for _, m := range splitComma(modifiers) {
		if m == want {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// GetQuickInfo opens path, requests quick info at line/offset, and closes
// path.
func (d *Driver) GetQuickInfo(ctx context.Context, path string, line, offset int) (quickInfoBody, error) {
	if err := d.openFile(ctx, path); err != nil {
		return quickInfoBody{}, err
	}
	defer d.closeFile(ctx, path)

	resp, err := d.call(ctx, "quickinfo", quickInfoArgs{File: path, Line: line, Offset: offset})
	if err != nil {
		return quickInfoBody{}, err
	}
	if !resp.Success {
		return quickInfoBody{}, fmt.Errorf("quickinfo: %s", resp.Message)
	}

	var body quickInfoBody
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return quickInfoBody{}, fmt.Errorf("decoding quick info: %w", err)
		}
	}
	return body, nil
}
