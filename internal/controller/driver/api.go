package driver

import (
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/workqueue"

	config "github.com/2170chm/spread-workload/internal/controller/config"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
	"github.com/2170chm/spread-workload/internal/reconcile"
)

// Interface decides when each workload identity is reconciled next. An
// identity is never handed to two workers at the same time.
type Interface interface {
	// Enqueue asks for id to be reconciled. It is dropped if id is halted.
	Enqueue(id types.NamespacedName) bool
	// Schedule consumes the result of a reconcile cycle of id.
	Schedule(id types.NamespacedName, result reconcile.Result)
	// Halted reports whether id is halted and the class that halted it.
	Halted(id types.NamespacedName) (workloaderrors.Class, bool)
	// NumRequeues returns the number of consecutive failures of id.
	NumRequeues(id types.NamespacedName) int

	// Get blocks until an identity is ready. The flag is true once the
	// driver is shut down.
	Get() (types.NamespacedName, bool)
	// Done must be called once the cycle of an identity returned by Get ends.
	Done(id types.NamespacedName)
	Len() int
	// ShutDown stops handing out identities once in-flight ones are done.
	ShutDown()
}

// Options configures the backoff of failed reconciles.
type Options struct {
	// Name identifies the queue in workqueue metrics.
	Name          string
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = config.ControllerName
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = config.DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = config.DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.BackoffJitter < 0 {
		o.BackoffJitter = 0
	}
}

type realDriver struct {
	queue   workqueue.TypedRateLimitingInterface[types.NamespacedName]
	limiter workqueue.TypedRateLimiter[types.NamespacedName]

	haltedLock sync.RWMutex
	halted     map[types.NamespacedName]workloaderrors.Class
}

func NewDriver(opts Options) Interface {
	opts.setDefaults()
	limiter := newJitteredExponentialRateLimiter[types.NamespacedName](opts.BackoffBase, opts.BackoffMax, opts.BackoffJitter)
	return &realDriver{
		queue: workqueue.NewTypedRateLimitingQueueWithConfig[types.NamespacedName](limiter,
			workqueue.TypedRateLimitingQueueConfig[types.NamespacedName]{Name: opts.Name}),
		limiter: limiter,
		halted:  make(map[types.NamespacedName]workloaderrors.Class),
	}
}
