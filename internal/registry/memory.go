package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRegistry is an in-memory Registry used by tests across the pool,
// locator, gate, and dispatch packages so they don't need a live Postgres
// connection to exercise the request-execution core.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]Instance
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[uuid.UUID]Instance)}
}

var _ Registry = (*MemoryRegistry)(nil)

// Put inserts or replaces an instance descriptor.
func (m *MemoryRegistry) Put(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID] = inst
}

// Delete marks an instance as deleted, matching the "excluded from all
// lookups" invariant in SPEC_FULL.md §3 without removing history.
func (m *MemoryRegistry) Delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		inst.Status = StatusDeleted
		m.instances[id] = inst
	}
}

func (m *MemoryRegistry) GetInstance(_ context.Context, instanceID uuid.UUID) (Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[instanceID]
	if !ok || !inst.Live() {
		return Instance{}, ErrNotFound
	}
	return inst, nil
}

func (m *MemoryRegistry) ListInstancesByTenant(_ context.Context, organizationID uuid.UUID) ([]Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Instance
	for _, inst := range m.instances {
		if inst.Live() && inst.OrganizationID == organizationID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *MemoryRegistry) ListAllLiveInstances(_ context.Context) ([]Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Instance
	for _, inst := range m.instances {
		if inst.Live() {
			out = append(out, inst)
		}
	}
	return out, nil
}
