package cluster

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	apps "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	config "github.com/2170chm/spread-workload/internal/controller/config"
)

// ObservedState is what the cluster reports for a workload identity. It is
// fetched fresh for every reconcile cycle.
type ObservedState struct {
	Exists          bool
	Replicas        int32
	ResourceVersion string
	// Deployment is the fetched object, nil when Exists is false.
	Deployment *apps.Deployment
}

// EventType is the kind of a ChangeEvent.
type EventType string

const (
	EventAdded    EventType = "Added"
	EventModified EventType = "Modified"
	EventDeleted  EventType = "Deleted"
	// EventResync is emitted after a watch reconnect since events may have
	// been missed while disconnected.
	EventResync EventType = "Resync"
)

// ChangeEvent signals that the observed state of a workload may have changed.
type ChangeEvent struct {
	Type     EventType
	Identity types.NamespacedName
}

// Interface is the only path from the controller to the cluster. Errors are
// returned unwrapped so they can be classified by the caller.
type Interface interface {
	// Fetch returns the observed state of id. A missing Deployment is
	// reported as Exists=false, not as an error.
	Fetch(ctx context.Context, id types.NamespacedName) (*ObservedState, error)
	// Create creates the Deployment described by spec. It fails with
	// AlreadyExists if the identity is taken.
	Create(ctx context.Context, spec *workloadv1alpha1.WorkloadSpec) error
	// Update replaces the controller-owned fields of the observed Deployment
	// with those of spec, guarded by the observed resourceVersion. It fails
	// with Conflict if that resourceVersion is stale.
	Update(ctx context.Context, observed *ObservedState, spec *workloadv1alpha1.WorkloadSpec) error
	// Delete removes the Deployment. A missing Deployment is not an error.
	Delete(ctx context.Context, id types.NamespacedName) error
	// Watch streams change events for id until ctx is done. The stream
	// reconnects on failure and emits EventResync after every reconnect.
	Watch(ctx context.Context, id types.NamespacedName) <-chan ChangeEvent
}

type realClusterClient struct {
	client client.WithWatch

	reconnectInterval time.Duration
	reconnectBurst    int
}

// Option configures the cluster client.
type Option func(*realClusterClient)

// WithReconnectLimit paces watch reconnects to one per interval after an
// initial burst.
func WithReconnectLimit(interval time.Duration, burst int) Option {
	return func(r *realClusterClient) {
		r.reconnectInterval = interval
		r.reconnectBurst = burst
	}
}

func NewClusterClient(c client.WithWatch, opts ...Option) Interface {
	r := &realClusterClient{
		client:            c,
		reconnectInterval: config.DefaultWatchReconnectInterval,
		reconnectBurst:    config.DefaultWatchReconnectBurst,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *realClusterClient) newReconnectLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(r.reconnectInterval), r.reconnectBurst)
}
