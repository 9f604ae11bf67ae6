package locator

import (
	"context"

	"github.com/google/uuid"

	"github.com/redisgate/redisgate/internal/registry"
)

// StaticLocator resolves endpoints from a fixed slug-to-localhost-port
// mapping, used outside Kubernetes for local development, per
// SPEC_FULL.md §4.2's fallback step.
type StaticLocator struct {
	reg             registry.Registry
	slugPorts       map[string]int
	defaultPassword string
}

// NewStaticLocator creates a StaticLocator. slugPorts maps an instance's
// slug to the localhost port its dev-mode Redis listens on.
func NewStaticLocator(reg registry.Registry, slugPorts map[string]int, defaultPassword string) *StaticLocator {
	return &StaticLocator{reg: reg, slugPorts: slugPorts, defaultPassword: defaultPassword}
}

var _ Locator = (*StaticLocator)(nil)

// Locate implements Locator.
func (l *StaticLocator) Locate(ctx context.Context, instanceID uuid.UUID) (Endpoint, error) {
	inst, err := locateDescriptor(ctx, l.reg, instanceID)
	if err != nil {
		return Endpoint{}, err
	}

	port, ok := l.slugPorts[inst.Slug]
	if !ok {
		return Endpoint{}, ErrServiceDiscoveryFailed
	}

	password := l.defaultPassword
	if inst.AuthSecretRef != "" {
		// No local-secret-store lookup in dev mode: the secret reference
		// itself is treated as the literal password, a convenience for
		// docker-compose-style local setups.
		password = inst.AuthSecretRef
	}

	return Endpoint{Host: "localhost", Port: port, Password: password}, nil
}
