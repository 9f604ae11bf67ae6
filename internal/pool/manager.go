// Package pool implements the connection pool manager (C3): a keyed
// registry of per-instance Redis connection pools with lazy creation,
// liveness probing, and eviction, per SPEC_FULL.md §4.3.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/redisgate/redisgate/internal/locator"
	"github.com/redisgate/redisgate/internal/registry"
	"github.com/redisgate/redisgate/internal/telemetry"
)

var (
	// ErrInstanceNotFound is surfaced from locator.ErrInstanceNotFound.
	ErrInstanceNotFound = locator.ErrInstanceNotFound
	// ErrServiceDiscoveryFailed is surfaced from locator.ErrServiceDiscoveryFailed.
	ErrServiceDiscoveryFailed = locator.ErrServiceDiscoveryFailed
	// ErrPoolExhausted is returned when checking out a connection times out.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrRedisUnavailable is returned when the initial connect or PING probe fails.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// entry is one instance's live connection pool, realized as a
// *redis.Client whose own internal pool bounds connection-level
// concurrency. sem is a counting semaphore bounding the number of
// outstanding Acquire checkouts at max_size, so the pool_max_size
// invariant is enforced and observable at the Manager's boundary
// rather than buried inside go-redis's own (unexported) pool internals.
type entry struct {
	client      *redis.Client
	endpoint    locator.Endpoint
	createdAt   time.Time
	lastSuccess time.Time
	sem         chan struct{}
}

// Manager holds the instance_id → entry mapping guarded by a read-write
// lock, per SPEC_FULL.md §4.3/§5: shared lock for lookup, exclusive lock
// only around map mutation, construction always outside the critical
// section.
type Manager struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	loc locator.Locator
	reg registry.Registry

	maxSize     int
	waitTimeout time.Duration
}

// NewManager constructs a Manager. maxSize and waitTimeout bound every
// constructed pool (redis.Options.PoolSize / PoolTimeout).
func NewManager(loc locator.Locator, reg registry.Registry, maxSize int, waitTimeout time.Duration) *Manager {
	return &Manager{
		entries:     make(map[uuid.UUID]*entry),
		loc:         loc,
		reg:         reg,
		maxSize:     maxSize,
		waitTimeout: waitTimeout,
	}
}

// Release is returned by Acquire; callers must invoke it on every exit
// path. A non-nil err wrapping ErrRedisUnavailable or
// context.DeadlineExceeded triggers eviction of the backing pool so the
// next acquire reconstructs it fresh, per SPEC_FULL.md's stale-pool
// recovery (P5); any other error (e.g. a Redis error reply) leaves the
// pool registered.
type Release func(err error)

// Acquire implements the four-step algorithm of SPEC_FULL.md §4.3: look
// up under a shared lock, probe a checkout with the configured wait
// timeout, and on miss or stale failure fall through to construction
// outside the lock, followed by an insert under the exclusive lock with a
// second check to collapse races. Every
// successful lookup or construction still has to win a checkout slot
// from the entry's semaphore before it's handed to the caller; failing
// to win one within waitTimeout returns ErrPoolExhausted.
func (m *Manager) Acquire(ctx context.Context, instanceID uuid.UUID) (*redis.Client, Release, error) {
	if e, ok := m.lookup(instanceID); ok {
		if err := e.client.Ping(ctx).Err(); err == nil {
			if !m.checkout(ctx, e) {
				return nil, nil, ErrPoolExhausted
			}
			e.lastSuccess = time.Now()
			return e.client, m.release(instanceID, e), nil
		}
		m.evict(instanceID, "stale")
	}

	e, err := m.acquireOrConstruct(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if !m.checkout(ctx, e) {
		return nil, nil, ErrPoolExhausted
	}
	return e.client, m.release(instanceID, e), nil
}

// checkout claims one of e's maxSize concurrent-use slots, waiting up
// to waitTimeout for one to free up. It reports false on timeout.
func (m *Manager) checkout(ctx context.Context, e *entry) bool {
	waitCtx, cancel := context.WithTimeout(ctx, m.waitTimeout)
	defer cancel()

	select {
	case e.sem <- struct{}{}:
		return true
	case <-waitCtx.Done():
		return false
	}
}

func (m *Manager) lookup(instanceID uuid.UUID) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[instanceID]
	return e, ok
}

// release frees e's checkout slot and, on an error indicating the
// connection itself is bad, evicts the whole pool so the next acquire
// rebuilds it fresh.
func (m *Manager) release(instanceID uuid.UUID, e *entry) Release {
	return func(err error) {
		<-e.sem
		if err == nil {
			return
		}
		if errors.Is(err, ErrRedisUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			m.evict(instanceID, "release_error")
		}
	}
}

func (m *Manager) acquireOrConstruct(ctx context.Context, instanceID uuid.UUID) (*entry, error) {
	if e, ok := m.lookup(instanceID); ok {
		return e, nil
	}

	ep, err := m.loc.Locate(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	e, err := m.construct(ctx, ep)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.entries[instanceID]; ok {
		m.mu.Unlock()
		_ = e.client.Close()
		return existing, nil
	}
	m.entries[instanceID] = e
	telemetry.PoolsActive.Set(float64(len(m.entries)))
	m.mu.Unlock()
	return e, nil
}

// construct builds a new *redis.Client for ep, retrying the initial
// connect-and-PING probe with exponential backoff bounded by the
// configured wait timeout.
func (m *Manager) construct(ctx context.Context, ep locator.Endpoint) (*entry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", ep.Host, ep.Port),
		Password:    ep.Password,
		PoolSize:    m.maxSize,
		PoolTimeout: m.waitTimeout,
	})

	probeCtx, cancel := context.WithTimeout(ctx, m.waitTimeout)
	defer cancel()

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), probeCtx)
	err := backoff.Retry(func() error {
		return client.Ping(probeCtx).Err()
	}, bo)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()
	return &entry{
		client:      client,
		endpoint:    ep,
		createdAt:   now,
		lastSuccess: now,
		sem:         make(chan struct{}, m.maxSize),
	}, nil
}

// evict removes instanceID's pool, closing its client to deterministically
// drain idle connections, per SPEC_FULL.md §4.3 Eviction.
func (m *Manager) evict(instanceID uuid.UUID, reason string) {
	m.mu.Lock()
	e, ok := m.entries[instanceID]
	if ok {
		delete(m.entries, instanceID)
	}
	telemetry.PoolsActive.Set(float64(len(m.entries)))
	m.mu.Unlock()

	if ok {
		telemetry.PoolEvictionsTotal.WithLabelValues(reason).Inc()
		_ = e.client.Close()
	}
}

// Refresh is the background sweep of SPEC_FULL.md §4.3/§5: evicts pools
// for instances no longer present in the registry's live set. Pool
// construction for new instances stays lazy — the sweep only trims,
// acquire always re-checks.
func (m *Manager) Refresh(ctx context.Context) error {
	live, err := m.reg.ListAllLiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("listing live instances: %w", err)
	}

	liveIDs := make(map[uuid.UUID]struct{}, len(live))
	for _, inst := range live {
		liveIDs[inst.ID] = struct{}{}
	}

	m.mu.RLock()
	var stale []uuid.UUID
	for id := range m.entries {
		if _, ok := liveIDs[id]; !ok {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.evict(id, "refresh_gone")
	}
	return nil
}

// HealthSnapshot PINGs every registered pool without mutating membership.
func (m *Manager) HealthSnapshot(ctx context.Context) map[uuid.UUID]bool {
	m.mu.RLock()
	snapshot := make(map[uuid.UUID]*entry, len(m.entries))
	for id, e := range m.entries {
		snapshot[id] = e
	}
	m.mu.RUnlock()

	result := make(map[uuid.UUID]bool, len(snapshot))
	for id, e := range snapshot {
		result[id] = e.client.Ping(ctx).Err() == nil
	}
	return result
}

// Close shuts down every registered pool, for graceful process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, e := range m.entries {
		if err := e.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.entries, id)
	}
	telemetry.PoolsActive.Set(0)
	return firstErr
}

// Len reports the number of registered pools, used by tests asserting P1.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
