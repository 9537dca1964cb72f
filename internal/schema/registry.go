package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry serves schemas by entity name. Safe for concurrent use; schemas
// are swapped whole, never mutated in place.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns a registry holding the given schemas.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema. Returns an error if the entity is already registered.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Entity()]; exists {
		return fmt.Errorf("entity already registered: %s", s.Entity())
	}
	r.schemas[s.Entity()] = s
	return nil
}

// Get returns a schema by entity name.
// Returns false if not found.
func (r *Registry) Get(entity string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[entity]
	return s, ok
}

// All returns all registered schemas sorted by entity.
func (r *Registry) All() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Entity() < result[j].Entity()
	})
	return result
}

// Entities returns the registered entity names, sorted.
func (r *Registry) Entities() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Entity()
	}
	return names
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}

// Replace swaps the whole registry content. Duplicate entities in schemas
// are rejected and leave the registry untouched.
func (r *Registry) Replace(schemas []*Schema) error {
	next := make(map[string]*Schema, len(schemas))
	for _, s := range schemas {
		if _, dup := next[s.Entity()]; dup {
			return fmt.Errorf("entity defined twice: %s", s.Entity())
		}
		next[s.Entity()] = s
	}

	r.mu.Lock()
	r.schemas = next
	r.mu.Unlock()
	return nil
}
