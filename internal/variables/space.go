// Package variables implements nested variable contexts (spaces) and the
// scope-level propagation used by scripts to publish values to enclosing
// pipeline contexts or to the process-wide property store.
package variables

import (
	"maps"
	"sync"
)

// Space is a named variable context. A space may have a parent; the chain of
// parents forms the ancestor chain walked by Root propagation.
type Space struct {
	name string

	mu     sync.RWMutex
	vars   map[string]string
	parent *Space
}

// NewSpace creates a space with an optional parent.
func NewSpace(name string, parent *Space) *Space {
	return &Space{name: name, vars: map[string]string{}, parent: parent}
}

// Name returns the space name (used in logs).
func (s *Space) Name() string { return s.name }

// Parent returns the enclosing space, or nil.
func (s *Space) Parent() *Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

// SetParent re-links the space. A space may be linked to itself; walkers
// must guard against it.
func (s *Space) SetParent(p *Space) {
	s.mu.Lock()
	s.parent = p
	s.mu.Unlock()
}

// Get returns the value of name in this space only.
func (s *Space) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Lookup resolves name in this space, then up the ancestor chain.
func (s *Space) Lookup(name string) (string, bool) {
	seen := map[*Space]struct{}{}
	for cur := s; cur != nil; cur = cur.Parent() {
		if _, dup := seen[cur]; dup {
			break
		}
		seen[cur] = struct{}{}
		if v, ok := cur.Get(name); ok {
			return v, true
		}
	}
	return "", false
}

// Set assigns name in this space.
func (s *Space) Set(name, value string) {
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
}

// SetAll copies every entry of vars into the space.
func (s *Space) SetAll(vars map[string]string) {
	s.mu.Lock()
	maps.Copy(s.vars, vars)
	s.mu.Unlock()
}

// Snapshot returns a copy of the space's own variables.
func (s *Space) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}
