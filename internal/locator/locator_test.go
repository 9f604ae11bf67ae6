package locator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/redisgate/redisgate/internal/registry"
)

func TestStaticLocator_Locate(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "cache-1", Status: registry.StatusRunning})

	loc := NewStaticLocator(reg, map[string]int{"cache-1": 16379}, "devpass")

	ep, err := loc.Locate(context.Background(), instID)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if ep.Host != "localhost" || ep.Port != 16379 || ep.Password != "devpass" {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
}

func TestStaticLocator_UnknownInstance(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	loc := NewStaticLocator(reg, nil, "")

	_, err := loc.Locate(context.Background(), uuid.New())
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestStaticLocator_DeletedInstanceNotFound(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "cache-1", Status: registry.StatusRunning})
	reg.Delete(instID)

	loc := NewStaticLocator(reg, map[string]int{"cache-1": 16379}, "")
	if _, err := loc.Locate(context.Background(), instID); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound for deleted instance, got %v", err)
	}
}

func TestStaticLocator_NoMapping(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "unmapped", Status: registry.StatusRunning})

	loc := NewStaticLocator(reg, map[string]int{}, "")
	if _, err := loc.Locate(context.Background(), instID); !errors.Is(err, ErrServiceDiscoveryFailed) {
		t.Errorf("expected ErrServiceDiscoveryFailed, got %v", err)
	}
}

func TestK8sLocator_Locate(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{
		ID:             instID,
		OrganizationID: uuid.New(),
		Slug:           "cache-1",
		EndpointHint:   "redis-cache-1",
		AuthSecretRef:  "redis-cache-1-auth",
		Status:         registry.StatusRunning,
	})

	client := fake.NewSimpleClientset(
		&corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "redis-cache-1", Namespace: "redisgate"},
			Spec: corev1.ServiceSpec{
				Ports: []corev1.ServicePort{{Port: 6379}},
			},
		},
		&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "redis-cache-1-auth", Namespace: "redisgate"},
			Data:       map[string][]byte{"password": []byte("s3cret")},
		},
	)

	loc := NewK8sLocatorWithClient(reg, client, "redisgate", 2*time.Second, "")

	ep, err := loc.Locate(context.Background(), instID)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if ep.Host != "redis-cache-1.redisgate.svc.cluster.local" {
		t.Errorf("host = %q", ep.Host)
	}
	if ep.Port != 6379 {
		t.Errorf("port = %d", ep.Port)
	}
	if ep.Password != "s3cret" {
		t.Errorf("password = %q", ep.Password)
	}
}

func TestK8sLocator_ServiceWithNoPorts(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "cache-1", EndpointHint: "redis-cache-1", Status: registry.StatusRunning})

	client := fake.NewSimpleClientset(&corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "redis-cache-1", Namespace: "redisgate"},
	})

	loc := NewK8sLocatorWithClient(reg, client, "redisgate", 2*time.Second, "")
	if _, err := loc.Locate(context.Background(), instID); !errors.Is(err, ErrServiceDiscoveryFailed) {
		t.Errorf("expected ErrServiceDiscoveryFailed, got %v", err)
	}
}

func TestK8sLocator_ServiceMissing(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "cache-1", EndpointHint: "nonexistent", Status: registry.StatusRunning})

	client := fake.NewSimpleClientset()
	loc := NewK8sLocatorWithClient(reg, client, "redisgate", 2*time.Second, "")
	if _, err := loc.Locate(context.Background(), instID); !errors.Is(err, ErrServiceDiscoveryFailed) {
		t.Errorf("expected ErrServiceDiscoveryFailed, got %v", err)
	}
}

func TestK8sLocator_NoAuthSecretUsesDefaultPassword(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	instID := uuid.New()
	reg.Put(registry.Instance{ID: instID, OrganizationID: uuid.New(), Slug: "cache-1", EndpointHint: "redis-cache-1", Status: registry.StatusRunning})

	client := fake.NewSimpleClientset(&corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "redis-cache-1", Namespace: "redisgate"},
		Spec:       corev1.ServiceSpec{Ports: []corev1.ServicePort{{Port: 6379}}},
	})

	loc := NewK8sLocatorWithClient(reg, client, "redisgate", 2*time.Second, "fallback-pass")
	ep, err := loc.Locate(context.Background(), instID)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if ep.Password != "fallback-pass" {
		t.Errorf("password = %q, want fallback-pass", ep.Password)
	}
}
