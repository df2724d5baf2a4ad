// Package snippet implements the named reusable code fragment store and the
// directive-driven inliner that composes them into a user program.
package snippet

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// descriptionRegexp captures the first JSDoc block containing an
// @description tag and the text that follows it up to the next line that
// starts a JSDoc tag, or the block close; the text may span several lines.
var descriptionRegexp = regexp.MustCompile(`(?s)/\*\*.*?@description\s+(.*?)\s*(?:\*+/|\n\s*\*\s*@|\n\s*\*/)`)

// Snippet is one persisted reusable code fragment.
type Snippet struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Store persists one snippet per file under Dir, filename "<name>.ts".
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snippet directory: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name+".ts")
}

// validateName enforces the name regex shared by save and the directive
// parser.
func validateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid snippet name %q: must match %s", name, nameRegexp.String())
	}
	return nil
}

// extractDescription returns the text of the first JSDoc block's
// @description tag, stripped of trailing asterisks and whitespace.
func extractDescription(code string) (string, bool) {
	m := descriptionRegexp.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	desc := strings.TrimRight(m[1], "* \t\r\n")
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", false
	}
	return desc, true
}

// Save validates name, requires an extractable @description, and writes the
// file. Writes go to a temp file in the same directory and are renamed into
// place so a concurrent reader never observes a partial write.
func (s *Store) Save(name, code string) (*Snippet, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	description, ok := extractDescription(code)
	if !ok {
		return nil, fmt.Errorf("snippet %q: code must contain a JSDoc block with an @description tag", name)
	}

	tmp, err := os.CreateTemp(s.Dir, ".tmp-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("renaming into place: %w", err)
	}

	return &Snippet{Name: name, Description: description, Code: code}, nil
}

// Get loads a snippet by name.
func (s *Store) Get(name string) (*Snippet, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snippet %q not found", name)
		}
		return nil, err
	}
	description, _ := extractDescription(string(data))
	return &Snippet{Name: name, Description: description, Code: string(data)}, nil
}

// Exists reports whether a snippet by this name is persisted.
func (s *Store) Exists(name string) bool {
	if err := validateName(name); err != nil {
		return false
	}
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Delete removes a snippet by name.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snippet %q not found", name)
		}
		return err
	}
	return nil
}

// List returns every persisted snippet, in directory order.
func (s *Store) List() ([]*Snippet, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading snippet directory: %w", err)
	}
	var out []*Snippet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".ts")
		snip, err := s.Get(name)
		if err != nil {
			continue
		}
		out = append(out, snip)
	}
	return out, nil
}
