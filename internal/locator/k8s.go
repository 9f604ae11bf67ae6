package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/redisgate/redisgate/internal/registry"
)

// K8sLocator resolves endpoints by reading Kubernetes Service and Secret
// objects, per SPEC_FULL.md §4.2's in-cluster resolution path. Grounded
// on the in-cluster client-config pattern used for discovery clients
// elsewhere in the retrieved example pack.
type K8sLocator struct {
	reg             registry.Registry
	client          kubernetes.Interface
	namespace       string
	timeout         time.Duration
	defaultPassword string
}

// NewK8sLocator creates a K8sLocator using the in-cluster service account
// credentials. namespace is the default namespace searched when an
// instance's endpoint_hint doesn't specify one.
func NewK8sLocator(reg registry.Registry, namespace string, timeout time.Duration, defaultPassword string) (*K8sLocator, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("loading in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return &K8sLocator{
		reg:             reg,
		client:          client,
		namespace:       namespace,
		timeout:         timeout,
		defaultPassword: defaultPassword,
	}, nil
}

// NewK8sLocatorWithClient injects a fake clientset for tests.
func NewK8sLocatorWithClient(reg registry.Registry, client kubernetes.Interface, namespace string, timeout time.Duration, defaultPassword string) *K8sLocator {
	return &K8sLocator{reg: reg, client: client, namespace: namespace, timeout: timeout, defaultPassword: defaultPassword}
}

var _ Locator = (*K8sLocator)(nil)

// splitHint parses an endpoint_hint of the form "namespace/service" or
// plain "service", returning (namespace, service).
func (l *K8sLocator) splitHint(hint string) (string, string) {
	if ns, svc, ok := strings.Cut(hint, "/"); ok {
		return ns, svc
	}
	return l.namespace, hint
}

// Locate implements Locator, following SPEC_FULL.md §4.2 step 2: resolve
// the endpoint as {service_name}.{namespace}.svc.cluster.local on the
// first port declared by the Service, and step 3: apply the instance's
// password secret if referenced.
func (l *K8sLocator) Locate(ctx context.Context, instanceID uuid.UUID) (Endpoint, error) {
	inst, err := locateDescriptor(ctx, l.reg, instanceID)
	if err != nil {
		return Endpoint{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	namespace, serviceName := l.splitHint(inst.EndpointHint)

	svc, err := l.client.CoreV1().Services(namespace).Get(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: getting service %s/%s: %v", ErrServiceDiscoveryFailed, namespace, serviceName, err)
	}
	if len(svc.Spec.Ports) == 0 {
		return Endpoint{}, fmt.Errorf("%w: service %s/%s has no ports", ErrServiceDiscoveryFailed, namespace, serviceName)
	}

	host := fmt.Sprintf("%s.%s.svc.cluster.local", serviceName, namespace)
	port := int(svc.Spec.Ports[0].Port)

	password := l.defaultPassword
	if inst.AuthSecretRef != "" {
		secretNamespace, secretName := l.splitHint(inst.AuthSecretRef)
		secret, err := l.client.CoreV1().Secrets(secretNamespace).Get(ctx, secretName, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return Endpoint{}, fmt.Errorf("%w: secret %s/%s not found", ErrServiceDiscoveryFailed, secretNamespace, secretName)
			}
			return Endpoint{}, fmt.Errorf("%w: getting secret %s/%s: %v", ErrServiceDiscoveryFailed, secretNamespace, secretName, err)
		}
		if pw, ok := secret.Data["password"]; ok {
			password = string(pw)
		}
	}

	return Endpoint{Host: host, Port: port, Password: password}, nil
}
