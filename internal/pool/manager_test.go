package pool

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/locator"
	"github.com/redisgate/redisgate/internal/registry"
)

// fakeLocator resolves every instance id to a fixed miniredis address.
type fakeLocator struct {
	endpoints map[uuid.UUID]locator.Endpoint
}

func (f *fakeLocator) Locate(ctx context.Context, instanceID uuid.UUID) (locator.Endpoint, error) {
	ep, ok := f.endpoints[instanceID]
	if !ok {
		return locator.Endpoint{}, locator.ErrInstanceNotFound
	}
	return ep, nil
}

func newTestManager(t *testing.T, srv *miniredis.Miniredis) (*Manager, uuid.UUID) {
	t.Helper()
	instID := uuid.New()
	host := srv.Host()
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parsing miniredis port %q: %v", srv.Port(), err)
	}
	loc := &fakeLocator{endpoints: map[uuid.UUID]locator.Endpoint{
		instID: {Host: host, Port: port},
	}}
	reg := registry.NewMemoryRegistry()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "t", Status: registry.StatusRunning})
	return NewManager(loc, reg, 4, time.Second), instID
}

func TestAcquire_ConstructsPoolOnFirstUse(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	client, release, err := mgr.Acquire(context.Background(), instID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release(nil)

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if mgr.Len() != 1 {
		t.Errorf("expected 1 registered pool, got %d", mgr.Len())
	}
}

// TestAcquire_ReusesExistingPool covers P1: at most one pool per instance.
func TestAcquire_ReusesExistingPool(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	_, release1, err := mgr.Acquire(context.Background(), instID)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	release1(nil)

	_, release2, err := mgr.Acquire(context.Background(), instID)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	release2(nil)

	if mgr.Len() != 1 {
		t.Errorf("expected 1 registered pool after repeated acquire, got %d", mgr.Len())
	}
}

func TestAcquire_UnknownInstance(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, _ := newTestManager(t, srv)

	if _, _, err := mgr.Acquire(context.Background(), uuid.New()); err != ErrInstanceNotFound {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

// TestStalePoolRecovery covers P5: after a failed acquire evicts a stale
// pool, the next acquire for the same instance constructs a fresh one.
func TestStalePoolRecovery(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	_, release, err := mgr.Acquire(context.Background(), instID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release(nil)

	srv.Close()

	if _, _, err := mgr.Acquire(context.Background(), instID); err == nil {
		t.Fatal("expected acquire against closed server to fail")
	}
	if mgr.Len() != 0 {
		t.Errorf("expected stale pool evicted, got %d entries", mgr.Len())
	}

	restarted := miniredis.NewMiniRedis()
	if err := restarted.StartAddr(srv.Addr()); err != nil {
		t.Skipf("could not rebind to original address %s: %v", srv.Addr(), err)
	}
	defer restarted.Close()

	if _, release2, err := mgr.Acquire(context.Background(), instID); err != nil {
		t.Fatalf("expected acquire to succeed against restarted server, got %v", err)
	} else {
		release2(nil)
	}
	if mgr.Len() != 1 {
		t.Errorf("expected fresh pool constructed, got %d entries", mgr.Len())
	}
}

func TestRefresh_EvictsPoolsForVanishedInstances(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	if _, release, err := mgr.Acquire(context.Background(), instID); err != nil {
		t.Fatalf("Acquire: %v", err)
	} else {
		release(nil)
	}

	reg := registry.NewMemoryRegistry()
	mgr.reg = reg // instance no longer present in the live set

	if err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if mgr.Len() != 0 {
		t.Errorf("expected pool evicted by refresh, got %d entries", mgr.Len())
	}
}

func TestHealthSnapshot(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	if _, release, err := mgr.Acquire(context.Background(), instID); err != nil {
		t.Fatalf("Acquire: %v", err)
	} else {
		release(nil)
	}

	snap := mgr.HealthSnapshot(context.Background())
	if !snap[instID] {
		t.Errorf("expected instance %s healthy, snapshot: %+v", instID, snap)
	}
}

// TestAcquire_PoolExhausted covers the pool_max_size invariant: once
// max_size checkouts are outstanding, a further Acquire blocks until
// wait_timeout elapses and then fails with ErrPoolExhausted.
func TestAcquire_PoolExhausted(t *testing.T) {
	srv := miniredis.RunT(t)
	instID := uuid.New()
	host := srv.Host()
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parsing miniredis port %q: %v", srv.Port(), err)
	}
	loc := &fakeLocator{endpoints: map[uuid.UUID]locator.Endpoint{
		instID: {Host: host, Port: port},
	}}
	reg := registry.NewMemoryRegistry()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "t", Status: registry.StatusRunning})
	mgr := NewManager(loc, reg, 1, 50*time.Millisecond)

	_, release, err := mgr.Acquire(context.Background(), instID)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	defer release(nil)

	if _, _, err := mgr.Acquire(context.Background(), instID); err != ErrPoolExhausted {
		t.Errorf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestClose_DrainsAllPools(t *testing.T) {
	srv := miniredis.RunT(t)
	mgr, instID := newTestManager(t, srv)

	if _, release, err := mgr.Acquire(context.Background(), instID); err != nil {
		t.Fatalf("Acquire: %v", err)
	} else {
		release(nil)
	}

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mgr.Len() != 0 {
		t.Errorf("expected 0 pools after Close, got %d", mgr.Len())
	}
}
