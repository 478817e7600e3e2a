package dedup

import (
	"context"
	"sync"

	"github.com/trafficai/violation-reporter/internal/fingerprint"
)

// Compile-time check that MemoryRegistry implements Registry.
var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu  sync.RWMutex
	set map[fingerprint.Fingerprint]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{set: make(map[fingerprint.Fingerprint]struct{})}
}

func (r *MemoryRegistry) Contains(_ context.Context, fp fingerprint.Fingerprint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[fp]
	return ok, nil
}

func (r *MemoryRegistry) Add(_ context.Context, fp fingerprint.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set[fp] = struct{}{}
	return nil
}

// Len returns the number of recorded fingerprints.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}
