package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the current catalog.
// The catalog itself is immutable; a reload swaps the whole pointer.
type Store struct {
	catalog atomic.Pointer[Catalog]
	mu      sync.Mutex // serializes reloads
}

// NewStore creates a Store holding c (which may be nil).
func NewStore(c *Catalog) *Store {
	s := &Store{}
	if c != nil {
		s.catalog.Store(c)
	}
	return s
}

// Get returns the current catalog, or nil if none has been loaded.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Swap replaces the current catalog and returns the ids whose records
// became stale (removed or changed elements).
func (s *Store) Swap(next *Catalog) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.catalog.Swap(next)
	return Removed(old, next)
}

// AgeSeconds returns how long ago the current catalog was loaded.
// Returns -1 if no catalog is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.LoadedAt).Seconds()
}
