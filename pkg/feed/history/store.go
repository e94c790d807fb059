// Package history provides a bounded per-symbol price time series used for
// consistency and volatility analysis.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCapacity is the per-symbol entry bound.
const DefaultCapacity = 100

// Entry is one accepted price observation.
type Entry struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store keeps a fixed-capacity ring of entries per symbol. Oldest entries are
// evicted first; len(entries) never exceeds the capacity.
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string][]Entry
}

// NewStore creates a store with the given per-symbol capacity.
// A non-positive capacity falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[string][]Entry),
	}
}

// Append records an entry for a symbol, evicting the oldest when full.
func (s *Store) Append(symbol string, entry Entry) {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.entries[symbol], entry)
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}
	s.entries[symbol] = entries
}

// Entries returns a copy of the stored entries for a symbol, oldest first.
func (s *Store) Entries(symbol string) []Entry {
	symbol = strings.ToUpper(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[symbol]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out
}

// Len returns the number of entries stored for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[strings.ToUpper(symbol)])
}

// Symbols returns the symbols with at least one stored entry.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for symbol := range s.entries {
		out = append(out, symbol)
	}
	return out
}

// Clear drops the history for one symbol.
func (s *Store) Clear(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.ToUpper(symbol))
}

// ClearAll drops all stored history.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]Entry)
}
