// Package dedup decides whether a tool call may be emitted to the client.
//
// A single logical tool call can reach the client through several paths: the
// streamed preview, the confirmed event, the long-running path and the client
// proxy that executes frontend tools. [Registry] consults three independent
// sets before any emission:
//
//   - ids this translator has already emitted
//   - ids an external client proxy has already emitted
//   - tool names that are always client-resolved, for runtimes that assign a
//     different id to the preview and the confirmed sighting of a call
//
// The sets are [Set] values shared by pointer. A proxy running in another
// goroutine can add ids after the registry was built and the registry sees
// them on the next check.
package dedup

import (
	"slices"
	"sync"
)

// Set is a concurrency-safe set of strings.
// Share it by pointer; copies do not observe each other's writes.
type Set struct {
	mu sync.RWMutex
	m  map[string]struct{}
}

// NewSet creates a set holding the given values.
func NewSet(values ...string) *Set {
	s := &Set{m: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.m[v] = struct{}{}
	}
	return s
}

// Add inserts values. Empty strings are ignored.
func (s *Set) Add(values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		if v != "" {
			s.m[v] = struct{}{}
		}
	}
}

// Claim adds v and reports whether it was absent. Exactly one of several
// concurrent claims of the same value succeeds. Claiming "" or claiming on a
// nil set always succeeds.
func (s *Set) Claim(v string) bool {
	if s == nil || v == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[v]; ok {
		return false
	}
	s.m[v] = struct{}{}
	return true
}

// Has reports whether v is in the set. A nil set is empty.
func (s *Set) Has(v string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[v]
	return ok
}

// Remove deletes values from the set.
func (s *Set) Remove(values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		delete(s.m, v)
	}
}

// Len returns the number of values.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Values returns a sorted copy of the set's contents.
func (s *Set) Values() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for v := range s.m {
		out = append(out, v)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Clear empties the set in place, keeping every holder of the pointer in sync.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}
