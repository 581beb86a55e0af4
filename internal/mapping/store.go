// Package mapping holds the entity mapping store that makes anonymization
// reversible, the placeholder allocator that populates it, and the
// backends that persist it.
//
// A Store is a two-level mapping: entity type → original value →
// placeholder. Entity types are kept in first-seen order and values in
// insertion order, so a store serialises back to exactly the document it
// was built from.
//
// Invariants maintained by Allocate:
//   - a value has at most one placeholder within its entity type;
//   - placeholders are unique across the store because they embed the type;
//   - the index inside a placeholder equals the 0-based insertion position
//     of its value within the type, and is never reused or renumbered.
//
// There is no removal API.
package mapping

import (
	"errors"

	"placeholder-anonymizer/internal/placeholder"
)

var (
	// ErrNilStore is returned when an allocation is attempted without a store.
	ErrNilStore = errors.New("mapping: entity mapping store is required")
	// ErrEmptyEntityType is returned when an allocation has no entity type.
	ErrEmptyEntityType = errors.New("mapping: entity type is required")
)

// Entry is one original value and the placeholder standing in for it.
type Entry struct {
	Value       string
	Placeholder string
}

type typeMapping struct {
	values       []string
	placeholders map[string]string
}

// Store is the entity mapping accumulated over one anonymization run.
// It is not safe for concurrent use.
type Store struct {
	types  []string
	byType map[string]*typeMapping
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byType: make(map[string]*typeMapping)}
}

// Allocate returns the placeholder for value under entityType, allocating
// the next sequential index for the type if the value is new. Repeated
// calls with the same pair return the same placeholder. The value's
// content is never inspected.
func (s *Store) Allocate(entityType, value string) (string, error) {
	if s == nil {
		return "", ErrNilStore
	}
	if entityType == "" {
		return "", ErrEmptyEntityType
	}
	tm := s.ensureType(entityType)
	if p, ok := tm.placeholders[value]; ok {
		return p, nil
	}
	p := placeholder.Placeholder{EntityType: entityType, Index: len(tm.values)}.String()
	tm.values = append(tm.values, value)
	tm.placeholders[value] = p
	return p, nil
}

// Lookup returns the placeholder already allocated for value, if any.
func (s *Store) Lookup(entityType, value string) (string, bool) {
	if s == nil {
		return "", false
	}
	tm, ok := s.byType[entityType]
	if !ok {
		return "", false
	}
	p, ok := tm.placeholders[value]
	return p, ok
}

// Types returns the entity types in first-seen order.
func (s *Store) Types() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.types...)
}

// Entries returns the values of entityType in insertion order.
func (s *Store) Entries(entityType string) []Entry {
	if s == nil {
		return nil
	}
	tm, ok := s.byType[entityType]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(tm.values))
	for _, v := range tm.values {
		out = append(out, Entry{Value: v, Placeholder: tm.placeholders[v]})
	}
	return out
}

// Len returns the total number of mapped values across all types.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, tm := range s.byType {
		n += len(tm.values)
	}
	return n
}

// Reverse builds the flat placeholder → original value table. Duplicate
// placeholders can only come from a hand-edited document; the later entry
// wins and the collisions are returned.
func (s *Store) Reverse() (table map[string]string, collisions []string) {
	table = make(map[string]string, s.Len())
	for _, t := range s.Types() {
		for _, e := range s.Entries(t) {
			if _, dup := table[e.Placeholder]; dup {
				collisions = append(collisions, e.Placeholder)
			}
			table[e.Placeholder] = e.Value
		}
	}
	return table, collisions
}

// put records value → token verbatim, as read from persisted state. An
// existing value keeps its position and takes the new token.
func (s *Store) put(entityType, value, token string) {
	tm := s.ensureType(entityType)
	if _, ok := tm.placeholders[value]; !ok {
		tm.values = append(tm.values, value)
	}
	tm.placeholders[value] = token
}

// resetType drops every entry of entityType, keeping its position.
func (s *Store) resetType(entityType string) {
	tm := s.ensureType(entityType)
	tm.values = nil
	tm.placeholders = make(map[string]string)
}

func (s *Store) ensureType(entityType string) *typeMapping {
	tm, ok := s.byType[entityType]
	if !ok {
		tm = &typeMapping{placeholders: make(map[string]string)}
		s.byType[entityType] = tm
		s.types = append(s.types, entityType)
	}
	return tm
}
