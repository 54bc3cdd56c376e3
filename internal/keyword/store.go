package keyword

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// WildcardGroup in the group scope enables keyword replies in every group.
const WildcardGroup = "-1"

// Table selects one of the two keyword tables.
type Table int

const (
	Exact Table = iota
	Contains
)

func (t Table) String() string {
	switch t {
	case Exact:
		return "exact"
	case Contains:
		return "contains"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// ParseTable accepts "exact"/"确切" and "contains"/"包含".
func ParseTable(s string) (Table, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact", "确切":
		return Exact, nil
	case "contains", "包含":
		return Contains, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTable, s)
}

// Entry is a stored keyword and its raw reply.
type Entry struct {
	Pattern string `json:"keyword"`
	Reply   string `json:"reply"`
}

// Rule is an entry prepared for matching. Rules are immutable once built.
type Rule struct {
	Entry
	regex   *Pattern // nil for literal keywords
	literal string   // NFC form of Pattern
}

func newRule(e Entry) Rule {
	r := Rule{Entry: e}
	if p, ok := ParseDelimitedPattern(e.Pattern); ok {
		r.regex = p
	} else {
		r.literal = norm.NFC.String(e.Pattern)
	}
	return r
}

// IsRegex reports whether the rule matches as a delimited regex.
func (r Rule) IsRegex() bool { return r.regex != nil }

// matchExact: anchored regex, or equality with the normalized text.
func (r Rule) matchExact(text string) bool {
	if r.regex != nil {
		return r.regex.FullMatch(text)
	}
	return text == r.literal
}

// matchContains: unanchored regex search, or substring containment.
func (r Rule) matchContains(text string) bool {
	if r.regex != nil {
		return r.regex.Search(text)
	}
	return strings.Contains(text, r.literal)
}

// Snapshot is a consistent, read-only view of both tables.
type Snapshot struct {
	Exact    []Rule
	Contains []Rule
}

// State is the persisted form of a Store.
type State struct {
	Exact        []Entry  `json:"exact"`
	Contains     []Entry  `json:"contains"`
	EnableGroups []string `json:"enableGroups"`
	CooldownTime int64    `json:"cooldownTime,omitempty"` // milliseconds; 0 keeps the configured window
}

// Store owns the exact and contains tables and the group scope.
//
// Table slices are copy-on-write: writers build a new slice and swap it in
// under the lock, so a Snapshot taken by a matching pass is never modified.
type Store struct {
	mu       sync.RWMutex
	exact    []Rule
	contains []Rule
	groups   []string
}

// NewStore creates an empty store whose group scope is the wildcard.
func NewStore() *Store {
	return &Store{groups: []string{WildcardGroup}}
}

// Add appends e to table. Patterns are unique across both tables.
func (s *Store) Add(table Table, e Entry) error {
	if e.Pattern == "" || e.Reply == "" {
		return ErrEmptyKeyword
	}
	if table != Exact && table != Contains {
		return fmt.Errorf("%w: %s", ErrInvalidTable, table)
	}
	rule := newRule(e)

	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.exact, e.Pattern) >= 0 || indexOf(s.contains, e.Pattern) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateKeyword, e.Pattern)
	}
	if table == Exact {
		s.exact = appendRule(s.exact, rule)
	} else {
		s.contains = appendRule(s.contains, rule)
	}
	return nil
}

// Remove deletes pattern, searching the exact table first, and reports
// which table held it.
func (s *Store) Remove(pattern string) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := indexOf(s.exact, pattern); i >= 0 {
		s.exact = removeAt(s.exact, i)
		return Exact, nil
	}
	if i := indexOf(s.contains, pattern); i >= 0 {
		s.contains = removeAt(s.contains, i)
		return Contains, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrKeywordNotFound, pattern)
}

// Snapshot returns the current tables for one matching pass.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Exact: s.exact, Contains: s.contains}
}

// Counts returns the number of entries in each table.
func (s *Store) Counts() (exact, contains int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact), len(s.contains)
}

// IsGroupEnabled reports whether keyword replies are active in groupID.
func (s *Store) IsGroupEnabled(groupID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g == groupID || g == WildcardGroup {
			return true
		}
	}
	return false
}

// SetGroupEnabled adds or removes groupID from the scope and reports whether
// the scope changed. Removing a group does not remove the wildcard.
func (s *Store) SetGroupEnabled(groupID string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, g := range s.groups {
		if g == groupID {
			idx = i
			break
		}
	}
	switch {
	case enabled && idx < 0:
		s.groups = append(append([]string(nil), s.groups...), groupID)
		return true
	case !enabled && idx >= 0:
		next := make([]string, 0, len(s.groups)-1)
		next = append(next, s.groups[:idx]...)
		s.groups = append(next, s.groups[idx+1:]...)
		return true
	}
	return false
}

// State returns a copy of the store contents for persistence.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Exact:        entries(s.exact),
		Contains:     entries(s.contains),
		EnableGroups: append([]string{}, s.groups...),
	}
}

// Replace swaps in st wholesale, e.g. after loading from disk.
// Duplicate patterns keep their first occurrence, exact table first.
// A nil group list means the wildcard; an empty one disables every group.
func (s *Store) Replace(st State) {
	seen := make(map[string]bool, len(st.Exact)+len(st.Contains))
	build := func(list []Entry) []Rule {
		out := make([]Rule, 0, len(list))
		for _, e := range list {
			if e.Pattern == "" || seen[e.Pattern] {
				continue
			}
			seen[e.Pattern] = true
			out = append(out, newRule(e))
		}
		return out
	}
	exact := build(st.Exact)
	contains := build(st.Contains)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exact = exact
	s.contains = contains
	if st.EnableGroups == nil {
		s.groups = []string{WildcardGroup}
	} else {
		s.groups = append([]string{}, st.EnableGroups...)
	}
}

func indexOf(rules []Rule, pattern string) int {
	for i, r := range rules {
		if r.Pattern == pattern {
			return i
		}
	}
	return -1
}

func appendRule(rules []Rule, r Rule) []Rule {
	next := make([]Rule, len(rules), len(rules)+1)
	copy(next, rules)
	return append(next, r)
}

func removeAt(rules []Rule, i int) []Rule {
	next := make([]Rule, 0, len(rules)-1)
	next = append(next, rules[:i]...)
	return append(next, rules[i+1:]...)
}

func entries(rules []Rule) []Entry {
	out := make([]Entry, len(rules))
	for i, r := range rules {
		out[i] = r.Entry
	}
	return out
}
