package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryRegistry_GetInstance(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	orgID := uuid.New()
	instID := uuid.New()

	if _, err := reg.GetInstance(ctx, instID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reg.Put(Instance{ID: instID, OrganizationID: orgID, Slug: "cache-1", Status: StatusRunning})

	got, err := reg.GetInstance(ctx, instID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrganizationID != orgID {
		t.Errorf("organization id = %v, want %v", got.OrganizationID, orgID)
	}
}

func TestMemoryRegistry_DeletedExcludedFromLookups(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	orgID := uuid.New()
	instID := uuid.New()

	reg.Put(Instance{ID: instID, OrganizationID: orgID, Slug: "cache-1", Status: StatusRunning})
	reg.Delete(instID)

	if _, err := reg.GetInstance(ctx, instID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted instance, got %v", err)
	}

	all, err := reg.ListAllLiveInstances(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, inst := range all {
		if inst.ID == instID {
			t.Fatal("deleted instance must be excluded from ListAllLiveInstances")
		}
	}

	byTenant, err := reg.ListInstancesByTenant(ctx, orgID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, inst := range byTenant {
		if inst.ID == instID {
			t.Fatal("deleted instance must be excluded from ListInstancesByTenant")
		}
	}
}

func TestMemoryRegistry_ListByTenantScopesToOrg(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	orgA := uuid.New()
	orgB := uuid.New()

	reg.Put(Instance{ID: uuid.New(), OrganizationID: orgA, Slug: "a1", Status: StatusRunning})
	reg.Put(Instance{ID: uuid.New(), OrganizationID: orgB, Slug: "b1", Status: StatusRunning})

	got, err := reg.ListInstancesByTenant(ctx, orgA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].OrganizationID != orgA {
		t.Fatalf("expected exactly one instance for org A, got %+v", got)
	}
}
