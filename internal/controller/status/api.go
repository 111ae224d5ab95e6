package status

import (
	"sync"

	apps "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
)

// Rollout summarises the rollout of a managed Deployment.
type Rollout struct {
	Desired   int32
	Replicas  int32
	Updated   int32
	Ready     int32
	Available int32
	// Complete is true once every desired replica runs the latest template
	// and is available.
	Complete bool
	// Stalled is true once the rollout exceeded its progress deadline.
	Stalled bool
	// FailureReason is set while pods of the Deployment cannot be created.
	FailureReason string
}

type Interface interface {
	// Observe summarises d, exports the summary and returns it.
	Observe(id types.NamespacedName, d *apps.Deployment) Rollout
	// Forget drops what is known about id.
	Forget(id types.NamespacedName)
}

type realStatusTracker struct {
	mu   sync.Mutex
	last map[types.NamespacedName]Rollout
}

func NewStatusTracker() Interface {
	return &realStatusTracker{
		last: make(map[types.NamespacedName]Rollout),
	}
}
