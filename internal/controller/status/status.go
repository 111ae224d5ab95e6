package status

import (
	apps "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	deploymentutil "k8s.io/kubernetes/pkg/controller/deployment/util"
	"k8s.io/utils/ptr"

	"github.com/2170chm/spread-workload/internal/controller/condition"
	"github.com/2170chm/spread-workload/internal/controller/metrics"
)

func (r *realStatusTracker) Observe(id types.NamespacedName, d *apps.Deployment) Rollout {
	newStatus := calculateRollout(d)

	r.mu.Lock()
	oldStatus, seen := r.last[id]
	r.last[id] = newStatus
	r.mu.Unlock()

	metrics.RecordRollout(id, newStatus.Desired, newStatus.Updated, newStatus.Ready, newStatus.Available, newStatus.Complete)
	if seen && !inconsistentRollout(oldStatus, newStatus) {
		return newStatus
	}
	if newStatus.Stalled || newStatus.FailureReason != "" {
		klog.InfoS("Rollout is not progressing", "deployment", klog.KRef(id.Namespace, id.Name),
			"stalled", newStatus.Stalled, "failureReason", newStatus.FailureReason)
	}
	klog.V(2).InfoS("Rollout status changed", "deployment", klog.KRef(id.Namespace, id.Name),
		"desired", newStatus.Desired, "replicas", newStatus.Replicas, "updated", newStatus.Updated,
		"ready", newStatus.Ready, "available", newStatus.Available, "complete", newStatus.Complete)
	return newStatus
}

func (r *realStatusTracker) Forget(id types.NamespacedName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, id)
}

func calculateRollout(d *apps.Deployment) Rollout {
	return Rollout{
		Desired:   ptr.Deref(d.Spec.Replicas, 1),
		Replicas:  d.Status.Replicas,
		Updated:   d.Status.UpdatedReplicas,
		Ready:     d.Status.ReadyReplicas,
		Available: d.Status.AvailableReplicas,
		Complete:  d.Spec.Replicas != nil && deploymentutil.DeploymentComplete(d, &d.Status),

		Stalled:       condition.Stalled(d.Status),
		FailureReason: condition.FailureReason(d.Status),
	}
}

func inconsistentRollout(oldStatus, newStatus Rollout) bool {
	return oldStatus != newStatus
}
