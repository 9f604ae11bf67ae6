// Package locator implements the service locator (C2): mapping an
// instance id to a live Redis endpoint, per SPEC_FULL.md §4.2.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/registry"
)

// ErrInstanceNotFound is returned when the instance descriptor is missing
// or marked deleted.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrServiceDiscoveryFailed is returned on a k8s API error or when the
// resolved Service has no ports.
var ErrServiceDiscoveryFailed = errors.New("service discovery failed")

// Endpoint is a resolved Redis connection target.
type Endpoint struct {
	Host     string
	Port     int
	Password string
}

// Locator maps an instance id to a live Redis endpoint.
type Locator interface {
	Locate(ctx context.Context, instanceID uuid.UUID) (Endpoint, error)
}

// New returns the locator appropriate for the deployment environment:
// in-cluster Kubernetes discovery when inCluster is true, otherwise the
// static development mapping. This mirrors SPEC_FULL.md §4.2's resolution
// policy step 2.
func New(inCluster bool, reg registry.Registry, k8s *K8sLocator, static *StaticLocator) Locator {
	if inCluster {
		return k8s
	}
	return static
}

// locateDescriptor is the shared first step of SPEC_FULL.md §4.2's
// resolution policy: read the instance descriptor, failing with
// ErrInstanceNotFound if absent or deleted.
func locateDescriptor(ctx context.Context, reg registry.Registry, instanceID uuid.UUID) (registry.Instance, error) {
	inst, err := reg.GetInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return registry.Instance{}, ErrInstanceNotFound
		}
		return registry.Instance{}, fmt.Errorf("reading instance descriptor: %w", err)
	}
	return inst, nil
}
