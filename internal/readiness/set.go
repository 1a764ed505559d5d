// Package readiness aggregates per-participant boolean signals into quorum
// decisions: everyone ready to start, anyone asking for a pause.
package readiness

import "sort"

// Set maps participants to their last reported flag. Participants that never
// reported are absent, which All treats as not ready.
type Set struct {
	entries map[string]bool
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{entries: make(map[string]bool)}
}

// Mark records value for id, creating the entry on first use.
func (s *Set) Mark(id string, value bool) {
	s.entries[id] = value
}

// Value returns the recorded flag and whether id ever reported.
func (s *Set) Value(id string) (bool, bool) {
	value, ok := s.entries[id]
	return value, ok
}

// Forget drops id's entry.
func (s *Set) Forget(id string) {
	delete(s.entries, id)
}

// All reports whether every participant in universe has recorded true. An
// empty universe is vacuously all ready.
func (s *Set) All(universe []string) bool {
	for _, id := range universe {
		if !s.entries[id] {
			return false
		}
	}
	return true
}

// Any reports whether at least one participant in universe has recorded true.
// Entries for participants outside universe are ignored.
func (s *Set) Any(universe []string) bool {
	for _, id := range universe {
		if s.entries[id] {
			return true
		}
	}
	return false
}

// Entries returns a copy of every recorded flag.
func (s *Set) Entries() map[string]bool {
	out := make(map[string]bool, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// IDs lists every participant with an entry in lexical order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops every entry.
func (s *Set) Reset() {
	clear(s.entries)
}

// Restore replaces every entry with entries.
func (s *Set) Restore(entries map[string]bool) {
	s.Reset()
	for k, v := range entries {
		s.entries[k] = v
	}
}
