package controller

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"k8s.io/apimachinery/pkg/types"
	klog "k8s.io/klog/v2"

	"github.com/2170chm/spread-workload/internal/controller/cluster"
	"github.com/2170chm/spread-workload/internal/controller/metrics"
	status "github.com/2170chm/spread-workload/internal/controller/status"
	"github.com/2170chm/spread-workload/internal/controller/store"
	sync "github.com/2170chm/spread-workload/internal/controller/sync"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
	"github.com/2170chm/spread-workload/internal/reconcile"
)

type phase string

const (
	phaseIdle     phase = "Idle"
	phaseFetching phase = "Fetching"
	phaseDiffing  phase = "Diffing"
	phaseApplying phase = "Applying"
)

// WorkloadReconciler runs reconcile cycles: it fetches the observed
// Deployment of a workload, diffs it against the desired state and creates
// or updates it.
type WorkloadReconciler struct {
	Store         store.Interface
	Cluster       cluster.Interface
	StatusTracker status.Interface

	// locks serialises cycles of the same identity. It holds one lock per
	// workload in Store and is not modified after construction.
	locks map[types.NamespacedName]*gosync.Mutex
}

func NewWorkloadReconciler(s store.Interface, c cluster.Interface) *WorkloadReconciler {
	locks := make(map[types.NamespacedName]*gosync.Mutex)
	for _, id := range s.List() {
		locks[id] = &gosync.Mutex{}
	}
	return &WorkloadReconciler{
		Store:         s,
		Cluster:       c,
		StatusTracker: status.NewStatusTracker(),
		locks:         locks,
	}
}

// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;update;delete
// +kubebuilder:rbac:groups=coordination.k8s.io,resources=leases,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch

// Reconcile runs one cycle for id and reports its result. A Conflict on
// update or an AlreadyExists on create is followed by one re-fetch and
// re-diff within the same cycle.
func (r *WorkloadReconciler) Reconcile(ctx context.Context, id types.NamespacedName) reconcile.Result {
	// Identities outside the store fail before touching the cluster.
	if lock, ok := r.locks[id]; ok {
		lock.Lock()
		defer lock.Unlock()
	}

	startTime := time.Now()
	result := r.reconcile(ctx, id)
	result.Duration = time.Since(startTime)

	metrics.RecordReconcile(id, string(result.Outcome), string(result.Class), result.Duration.Seconds())
	if result.Succeeded() {
		klog.InfoS("Finished syncing workload", "workload", klog.KRef(id.Namespace, id.Name),
			"outcome", result.Outcome, "duration", result.Duration)
	} else {
		klog.ErrorS(result.Err, "Failed to sync workload", "workload", klog.KRef(id.Namespace, id.Name),
			"outcome", result.Outcome, "class", result.Class, "unrecognised", result.Unrecognised,
			"duration", result.Duration)
	}
	return result
}

func (r *WorkloadReconciler) reconcile(ctx context.Context, id types.NamespacedName) reconcile.Result {
	spec, err := r.Store.Get(id)
	if err != nil {
		return reconcile.Failed(workloaderrors.WrapConfigInvalid(fmt.Errorf("no desired state: %w", err)))
	}
	desired := sync.NewDeployment(spec)

	retried := false
	for {
		logPhase(id, phaseIdle, phaseFetching)
		observed, err := r.Cluster.Fetch(ctx, id)
		if err != nil {
			return reconcile.Failed(err)
		}

		if !observed.Exists {
			r.StatusTracker.Forget(id)
			logPhase(id, phaseFetching, phaseApplying)
			err = r.Cluster.Create(ctx, spec)
			if err == nil {
				return reconcile.Result{Outcome: reconcile.OutcomeCreated}
			}
			if workloaderrors.Classify(err) == workloaderrors.ClassAlreadyExists && !retried {
				klog.V(2).InfoS("Deployment created concurrently, re-fetching", "workload", klog.KRef(id.Namespace, id.Name))
				retried = true
				continue
			}
			return reconcile.Failed(err)
		}

		r.StatusTracker.Observe(id, observed.Deployment)

		logPhase(id, phaseFetching, phaseDiffing)
		fields := sync.Diff(desired, observed.Deployment)
		if len(fields) == 0 {
			logPhase(id, phaseDiffing, phaseIdle)
			return reconcile.Result{Outcome: reconcile.OutcomeNoOp}
		}

		logPhase(id, phaseDiffing, phaseApplying)
		klog.V(2).InfoS("Deployment drifted from desired state", "workload", klog.KRef(id.Namespace, id.Name),
			"fields", fields, "resourceVersion", observed.ResourceVersion)
		err = r.Cluster.Update(ctx, observed, spec)
		if err == nil {
			return reconcile.Result{Outcome: reconcile.OutcomeUpdated}
		}
		if workloaderrors.Classify(err) == workloaderrors.ClassConflict && !retried {
			klog.V(2).InfoS("Stale resourceVersion, re-fetching", "workload", klog.KRef(id.Namespace, id.Name),
				"resourceVersion", observed.ResourceVersion)
			retried = true
			continue
		}
		return reconcile.Failed(err)
	}
}

func logPhase(id types.NamespacedName, from, to phase) {
	klog.V(4).InfoS("Reconcile phase", "workload", klog.KRef(id.Namespace, id.Name), "from", from, "to", to)
}
