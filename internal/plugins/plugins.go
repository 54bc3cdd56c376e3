// Package plugins tracks which bot plugins are enabled.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Known plugin names.
const (
	Keyword = "keyword"
	Orange  = "orange"
)

// Descriptions are shown in plugin listings.
var Descriptions = map[string]string{
	Keyword: "关键词回复",
	Orange:  "AI聊天",
}

// ErrUnknownPlugin is returned when toggling a plugin that was never registered.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Persister saves plugin enablement after each change.
type Persister interface {
	SavePlugins(ctx context.Context, states map[string]bool) error
}

// Loader reads persisted plugin enablement.
type Loader interface {
	LoadPlugins(ctx context.Context) (map[string]bool, error)
}

// Status is one plugin and its enablement.
type Status struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// State holds plugin enablement. Unknown plugins are disabled.
type State struct {
	mu      sync.RWMutex
	enabled map[string]bool
	persist Persister
}

// NewState creates a state seeded from defaults. persist may be nil.
func NewState(defaults map[string]bool, persist Persister) *State {
	s := &State{enabled: make(map[string]bool, len(defaults)), persist: persist}
	for k, v := range defaults {
		s.enabled[k] = v
	}
	return s
}

// IsEnabled reports whether name is enabled.
func (s *State) IsEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[name]
}

// Load overlays persisted values on top of the current ones.
func (s *State) Load(ctx context.Context, l Loader) error {
	loaded, err := l.LoadPlugins(ctx)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range loaded {
		s.enabled[k] = v
	}
	return nil
}

// SetEnabled changes a known plugin's enablement and persists it. The
// change is reverted if persisting fails.
func (s *State) SetEnabled(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.enabled[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	s.enabled[name] = enabled
	if s.persist == nil {
		return nil
	}
	if err := s.persist.SavePlugins(ctx, s.snapshotLocked()); err != nil {
		s.enabled[name] = prev
		return fmt.Errorf("save plugins: %w", err)
	}
	return nil
}

// List returns every known plugin sorted by name.
func (s *State) List() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.enabled))
	for k, v := range s.enabled {
		out = append(out, Status{Name: k, Enabled: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot returns a copy of the enablement map.
func (s *State) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() map[string]bool {
	out := make(map[string]bool, len(s.enabled))
	for k, v := range s.enabled {
		out[k] = v
	}
	return out
}
