// Package envstore maintains the set of environment variables exposed to
// sandboxed code: ambient process variables carrying a configured prefix,
// overlaid with a dotenv-style file that takes precedence. A file watch
// triggers reload and, when a container backend is active, its teardown so
// the next execution picks up the change.
package envstore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var nameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReloadFunc is invoked after the in-memory snapshot changes, e.g. to tear
// down a running container so the next execution is handed the new
// environment.
type ReloadFunc func()

// Store holds the current allowlisted environment and keeps it in sync with
// ambient process variables and an on-disk overlay file.
type Store struct {
	prefix string
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	onReload ReloadFunc
	watcher  *fsnotify.Watcher
	closeCh  chan struct{}
}

// New creates a Store and loads its initial snapshot. path may be empty, in
// which case only ambient prefixed variables are used and no file is
// watched.
func New(prefix, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		prefix:  prefix,
		path:    path,
		logger:  logger,
		closeCh: make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnReload registers the callback invoked after every successful reload.
func (s *Store) OnReload(fn ReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

func (s *Store) reload() error {
	merged := ambientValues(s.prefix)

	if s.path != "" {
		fileValues, err := readEnvFile(s.path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading env file %s: %w", s.path, err)
		}
		for k, v := range fileValues {
			merged[k] = v
		}
	}

	s.mu.Lock()
	s.values = merged
	onReload := s.onReload
	s.mu.Unlock()

	if onReload != nil {
		onReload()
	}
	return nil
}

// ambientValues returns process environment variables carrying prefix, with
// the prefix stripped from each name.
func ambientValues(prefix string) map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		out[strings.TrimPrefix(k, prefix)] = v
	}
	return out
}

// Names returns the sorted allowlist of variable names currently exposed to
// sandboxed code.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get returns the current value of name and whether it is set.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set validates name, writes it into the overlay file, and reloads the
// in-memory snapshot. It requires a configured file path.
func (s *Store) Set(name, value string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid variable name %q", name)
	}
	if s.path == "" {
		return fmt.Errorf("no env file configured, cannot persist %q", name)
	}

	fileValues, err := readEnvFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading env file: %w", err)
	}
	if fileValues == nil {
		fileValues = make(map[string]string)
	}
	fileValues[name] = value

	if err := writeEnvFile(s.path, fileValues); err != nil {
		return err
	}
	return s.reload()
}

// Unset removes name from the overlay file and reloads the snapshot.
func (s *Store) Unset(name string) error {
	if s.path == "" {
		return fmt.Errorf("no env file configured, cannot remove %q", name)
	}

	fileValues, err := readEnvFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}
	delete(fileValues, name)

	if err := writeEnvFile(s.path, fileValues); err != nil {
		return err
	}
	return s.reload()
}

// Watch starts an fsnotify watch on the overlay file's directory, reloading
// on every write/create/rename event naming the file. It is a no-op if no
// file path is configured.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.Warn("env file reload failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("env file watch error", "error", err)
			case <-s.closeCh:
				return
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	close(s.closeCh)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// readEnvFile parses a dotenv-style file: blank lines and lines starting
// with '#' are skipped, each remaining line splits at the first '=', and
// one matching pair of surrounding quotes is stripped from the value.
func readEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = unquote(strings.TrimSpace(v))
		if nameRegexp.MatchString(k) {
			values[k] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		inner := v[1 : len(v)-1]
		inner = strings.ReplaceAll(inner, `\n`, "\n")
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}

// writeEnvFile serializes values in sorted key order, quoting any value
// containing whitespace, a quote, or a newline.
func writeEnvFile(path string, values map[string]string) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		v := values[k]
		if needsQuoting(v) {
			escaped := strings.ReplaceAll(v, `\`, `\\`)
			escaped = strings.ReplaceAll(escaped, `"`, `\"`)
			escaped = strings.ReplaceAll(escaped, "\n", `\n`)
			v = `"` + escaped + `"`
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing env file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming env file into place: %w", err)
	}
	return nil
}

func needsQuoting(v string) bool {
	return strings.ContainsAny(v, " \t\"'\n")
}
