package component

import (
	"sync"

	"github.com/vk/compobuild/internal/buildid"
)

// MapRegistry is a concurrency-safe in-memory Registry keyed by project path.
type MapRegistry struct {
	mu         sync.RWMutex
	components map[string]Metadata
}

// NewMapRegistry creates an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{components: make(map[string]Metadata)}
}

// Register records the published metadata for a project, replacing any
// previous registration for the same path.
func (r *MapRegistry) Register(projectPath buildid.Path, meta Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[projectPath.String()] = meta
}

// ComponentFor implements Registry.
func (r *MapRegistry) ComponentFor(projectPath buildid.Path) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.components[projectPath.String()]
	return meta, ok
}
