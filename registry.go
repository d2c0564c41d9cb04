package novagrid

import (
	"sync"
	"sync/atomic"
)

// schemaRegistry is a per-table cache of schema versions. Versions are
// inserted once and never mutated; latest only moves forward, even when a
// stale load completes after a newer version was learned.
type schemaRegistry struct {
	mu      sync.Mutex
	schemas map[int32]*Schema
	latest  atomic.Int32 // -1 until the first schema is known
}

func newSchemaRegistry() *schemaRegistry {
	r := &schemaRegistry{schemas: make(map[int32]*Schema)}
	r.latest.Store(-1)
	return r
}

func (r *schemaRegistry) add(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Version]; !ok {
		r.schemas[s.Version] = s
	}
	if s.Version > r.latest.Load() {
		r.latest.Store(s.Version)
	}
}

func (r *schemaRegistry) get(version int32) *Schema {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schemas[version]
}

// latestVersion returns -1 while the cache is empty.
func (r *schemaRegistry) latestVersion() int32 {
	return r.latest.Load()
}
