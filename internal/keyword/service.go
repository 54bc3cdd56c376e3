package keyword

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikann-OMO/bot/internal/metrics"
)

// Persister saves keyword state. Implementations live in internal/store.
type Persister interface {
	SaveKeywords(ctx context.Context, st State) error
}

// Loader loads keyword state.
type Loader interface {
	LoadKeywords(ctx context.Context) (State, error)
}

// Service is the administrative face of the keyword engine: every mutation
// goes through the store and is then persisted. Writers are serialized so
// saves land in mutation order. A failed save rolls the mutation back.
type Service struct {
	mu      sync.Mutex
	store   *Store
	gate    Gate
	persist Persister
}

// NewService wires a store and gate to a persister. A nil persister keeps state in memory only.
func NewService(store *Store, gate Gate, persist Persister) *Service {
	return &Service{store: store, gate: gate, persist: persist}
}

// Store returns the underlying keyword store.
func (s *Service) Store() *Store { return s.store }

// Gate returns the cooldown gate.
func (s *Service) Gate() Gate { return s.gate }

// Load replaces the store contents from l and applies a persisted cooldown window.
func (s *Service) Load(ctx context.Context, l Loader) error {
	st, err := l.LoadKeywords(ctx)
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	s.Apply(st)
	return nil
}

// Apply swaps in st without persisting it, e.g. after an external edit was reloaded.
func (s *Service) Apply(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Replace(st)
	if st.CooldownTime > 0 {
		s.gate.SetWindow(time.Duration(st.CooldownTime) * time.Millisecond)
	}
	s.updateGauges()
	exact, contains := s.store.Counts()
	slog.Info("keyword tables loaded", "exact", exact, "contains", contains, "cooldown", s.gate.Window())
}

// AddKeyword adds e to table and persists the result.
func (s *Service) AddKeyword(ctx context.Context, table Table, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Add(table, e); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		if _, rmErr := s.store.Remove(e.Pattern); rmErr != nil {
			slog.Error("keyword rollback failed", "pattern", e.Pattern, "error", rmErr)
		}
		return err
	}
	s.updateGauges()
	slog.Info("keyword added", "table", table, "pattern", e.Pattern)
	return nil
}

// RemoveKeyword removes pattern (exact table first) and persists the result.
func (s *Service) RemoveKeyword(ctx context.Context, pattern string) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.store.State()
	table, err := s.store.Remove(pattern)
	if err != nil {
		return 0, err
	}
	if err := s.save(ctx); err != nil {
		s.store.Replace(prev)
		return 0, err
	}
	s.updateGauges()
	slog.Info("keyword removed", "table", table, "pattern", pattern)
	return table, nil
}

// SetGroupEnabled toggles keyword replies for groupID and persists a change.
// It reports whether the scope changed.
func (s *Service) SetGroupEnabled(ctx context.Context, groupID string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.SetGroupEnabled(groupID, enabled) {
		return false, nil
	}
	if err := s.save(ctx); err != nil {
		s.store.SetGroupEnabled(groupID, !enabled)
		return false, err
	}
	slog.Info("keyword group scope changed", "group", groupID, "enabled", enabled)
	return true, nil
}

// Counts returns the entry count of each table.
func (s *Service) Counts() (exact, contains int) { return s.store.Counts() }

// State returns the persisted form of the current tables, including the cooldown window.
func (s *Service) State() State {
	st := s.store.State()
	st.CooldownTime = s.gate.Window().Milliseconds()
	return st
}

func (s *Service) save(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.SaveKeywords(ctx, s.State()); err != nil {
		return fmt.Errorf("save keywords: %w", err)
	}
	return nil
}

func (s *Service) updateGauges() {
	exact, contains := s.store.Counts()
	metrics.KeywordEntries.WithLabelValues(Exact.String()).Set(float64(exact))
	metrics.KeywordEntries.WithLabelValues(Contains.String()).Set(float64(contains))
}
