package filter

import (
	"maps"
	"slices"
	"sync"
)

// Registry holds one Manager per content type.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// Add registers m under its content type, replacing any previous manager.
func (r *Registry) Add(m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[m.PostType()] = m
}

func (r *Registry) Get(postType string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[postType]
	return m, ok
}

func (r *Registry) PostTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.managers))
}
