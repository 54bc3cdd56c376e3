// Package file stores keyword tables and plugin state as JSON files laid
// out for compatibility with existing bot data directories:
//
//	<dir>/exactKeywords/config.json
//	<dir>/containsKeywords/config.json
//	<dir>/config.json      {enableGroups, cooldownTime}
//	<dir>/plugins.json
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/mikann-OMO/bot/internal/keyword"
)

const (
	exactFile    = "exactKeywords/config.json"
	containsFile = "containsKeywords/config.json"
	configFile   = "config.json"
	pluginsFile  = "plugins.json"
)

// Store is a directory-backed store.
type Store struct {
	dir string

	mu      sync.Mutex
	written map[string][]byte // last bytes written per path, for the watcher
}

// New creates a store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir, written: make(map[string][]byte)}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) Close() error { return nil }

// scopeConfig is the on-disk scope object.
type scopeConfig struct {
	EnableGroups groupIDs `json:"enableGroups"`
	CooldownTime int64    `json:"cooldownTime"`
}

// groupIDs reads IDs written as numbers or strings and writes numeric IDs
// back as numbers.
type groupIDs []string

func (g *groupIDs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return fmt.Errorf("group id %s: %w", r, err)
		}
		out = append(out, n.String())
	}
	*g = out
	return nil
}

func (g groupIDs) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(g))
	for i, id := range g {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			raw[i] = json.RawMessage(id)
			continue
		}
		b, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(raw)
}

// LoadKeywords reads both tables and the scope config. Missing files load
// as empty tables and the wildcard scope.
func (s *Store) LoadKeywords(_ context.Context) (keyword.State, error) {
	var st keyword.State
	if _, err := s.readJSON(exactFile, &st.Exact); err != nil {
		return st, err
	}
	if _, err := s.readJSON(containsFile, &st.Contains); err != nil {
		return st, err
	}
	var cfg scopeConfig
	found, err := s.readJSON(configFile, &cfg)
	if err != nil {
		return st, err
	}
	if found && cfg.EnableGroups != nil {
		st.EnableGroups = []string(cfg.EnableGroups)
	}
	st.CooldownTime = cfg.CooldownTime
	return st, nil
}

// SaveKeywords writes both tables and the scope config.
func (s *Store) SaveKeywords(_ context.Context, st keyword.State) error {
	exact, contains := st.Exact, st.Contains
	if exact == nil {
		exact = []keyword.Entry{}
	}
	if contains == nil {
		contains = []keyword.Entry{}
	}
	groups := groupIDs(st.EnableGroups)
	if groups == nil {
		groups = groupIDs{}
	}
	if err := s.writeJSON(exactFile, exact); err != nil {
		return err
	}
	if err := s.writeJSON(containsFile, contains); err != nil {
		return err
	}
	return s.writeJSON(configFile, scopeConfig{EnableGroups: groups, CooldownTime: st.CooldownTime})
}

// LoadPlugins reads plugins.json; a missing file yields nil.
func (s *Store) LoadPlugins(_ context.Context) (map[string]bool, error) {
	var m map[string]bool
	if _, err := s.readJSON(pluginsFile, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SavePlugins writes plugins.json.
func (s *Store) SavePlugins(_ context.Context, states map[string]bool) error {
	return s.writeJSON(pluginsFile, states)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

func (s *Store) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// writeJSON writes v atomically: temp file in the same directory, then rename.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = append(data, '\n')

	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	s.mu.Lock()
	s.written[path] = data
	s.mu.Unlock()

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// ownWrite reports whether path currently holds exactly what this store
// last wrote there.
func (s *Store) ownWrite(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.written[path]
	return ok && bytes.Equal(last, data)
}
