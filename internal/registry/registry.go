// Package registry provides the instance registry interface (C6): the
// persistent lookup of instance metadata consumed read-only by the
// service locator (C2) and the authorization gate (C4). Writes
// (create/update/delete) belong to the out-of-scope provisioning
// subsystem named in SPEC_FULL.md §4.6.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is an instance's lifecycle state.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusDeleted  Status = "deleted"
)

// Instance is the immutable-on-the-hot-path instance descriptor defined in
// SPEC_FULL.md §3.
type Instance struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Slug           string
	EndpointHint   string
	AuthSecretRef  string
	Status         Status
	CreatedAt      time.Time
}

// Live reports whether the instance should be considered for discovery and
// lookup — deleted instances are excluded from every operation.
func (i Instance) Live() bool {
	return i.Status != StatusDeleted
}

// ErrNotFound is returned by GetInstance when no non-deleted instance with
// the given id exists.
var ErrNotFound = errors.New("instance not found")

// Registry is the read-only surface the request-execution core consumes.
type Registry interface {
	// GetInstance returns the descriptor for instanceID, or ErrNotFound if
	// it doesn't exist or is marked deleted.
	GetInstance(ctx context.Context, instanceID uuid.UUID) (Instance, error)

	// ListInstancesByTenant returns all non-deleted instances owned by
	// organizationID. Not on the hot path — used by management surfaces
	// outside this core.
	ListInstancesByTenant(ctx context.Context, organizationID uuid.UUID) ([]Instance, error)

	// ListAllLiveInstances returns every non-deleted instance across all
	// tenants. Consumed by the pool manager's background refresh sweep
	// (C3.refresh) to evict pools for instances that have disappeared.
	ListAllLiveInstances(ctx context.Context) ([]Instance, error)
}
