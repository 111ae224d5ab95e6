package status

import (
	"testing"

	apps "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"
)

func getDeployment(replicas int32, status apps.DeploymentStatus) *apps.Deployment {
	return &apps.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "my-app", Namespace: "default", Generation: 2},
		Spec:       apps.DeploymentSpec{Replicas: ptr.To(replicas)},
		Status:     status,
	}
}

func TestCalculateRollout(t *testing.T) {
	tests := []struct {
		name     string
		d        *apps.Deployment
		expected Rollout
	}{
		{
			name: "All replicas updated and available",
			d: getDeployment(6, apps.DeploymentStatus{
				ObservedGeneration: 2, Replicas: 6, UpdatedReplicas: 6, ReadyReplicas: 6, AvailableReplicas: 6,
			}),
			expected: Rollout{Desired: 6, Replicas: 6, Updated: 6, Ready: 6, Available: 6, Complete: true},
		},
		{
			name: "Rollout in progress",
			d: getDeployment(6, apps.DeploymentStatus{
				ObservedGeneration: 2, Replicas: 7, UpdatedReplicas: 3, ReadyReplicas: 6, AvailableReplicas: 6,
			}),
			expected: Rollout{Desired: 6, Replicas: 7, Updated: 3, Ready: 6, Available: 6},
		},
		{
			name: "Generation not observed yet",
			d: getDeployment(4, apps.DeploymentStatus{
				ObservedGeneration: 1, Replicas: 4, UpdatedReplicas: 4, ReadyReplicas: 4, AvailableReplicas: 4,
			}),
			expected: Rollout{Desired: 4, Replicas: 4, Updated: 4, Ready: 4, Available: 4},
		},
		{
			name: "Progress deadline exceeded",
			d: getDeployment(6, apps.DeploymentStatus{
				ObservedGeneration: 2, Replicas: 6, UpdatedReplicas: 2, ReadyReplicas: 4, AvailableReplicas: 4,
				Conditions: []apps.DeploymentCondition{
					{Type: apps.DeploymentProgressing, Status: v1.ConditionFalse, Reason: "ProgressDeadlineExceeded"},
					{Type: apps.DeploymentReplicaFailure, Status: v1.ConditionTrue, Reason: "FailedCreate"},
				},
			}),
			expected: Rollout{Desired: 6, Replicas: 6, Updated: 2, Ready: 4, Available: 4, Stalled: true, FailureReason: "FailedCreate"},
		},
		{
			name:     "Freshly created",
			d:        getDeployment(6, apps.DeploymentStatus{}),
			expected: Rollout{Desired: 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRollout(tt.d); got != tt.expected {
				t.Errorf("calculateRollout() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestObserve(t *testing.T) {
	tracker := NewStatusTracker().(*realStatusTracker)
	id := types.NamespacedName{Namespace: "default", Name: "my-app"}

	first := tracker.Observe(id, getDeployment(6, apps.DeploymentStatus{}))
	if first.Complete {
		t.Errorf("expected incomplete rollout")
	}

	done := tracker.Observe(id, getDeployment(6, apps.DeploymentStatus{
		ObservedGeneration: 2, Replicas: 6, UpdatedReplicas: 6, ReadyReplicas: 6, AvailableReplicas: 6,
	}))
	if !done.Complete {
		t.Errorf("expected complete rollout")
	}
	if tracker.last[id] != done {
		t.Errorf("last status not recorded")
	}

	tracker.Forget(id)
	if _, ok := tracker.last[id]; ok {
		t.Errorf("expected status to be forgotten")
	}
}
