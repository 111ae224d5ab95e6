package condition

import (
	apps "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	deploymentutil "k8s.io/kubernetes/pkg/controller/deployment/util"
)

func GetCondition(status apps.DeploymentStatus, condType apps.DeploymentConditionType) *apps.DeploymentCondition {
	for i := range status.Conditions {
		c := status.Conditions[i]
		if c.Type == condType {
			return &c
		}
	}
	return nil
}

// Stalled reports whether the Deployment controller gave up waiting for the
// rollout to progress.
func Stalled(status apps.DeploymentStatus) bool {
	c := GetCondition(status, apps.DeploymentProgressing)
	return c != nil && c.Status == v1.ConditionFalse && c.Reason == deploymentutil.TimedOutReason
}

// FailureReason returns the reason of the ReplicaFailure condition, or "" if
// pods are being created.
func FailureReason(status apps.DeploymentStatus) string {
	c := GetCondition(status, apps.DeploymentReplicaFailure)
	if c == nil || c.Status != v1.ConditionTrue {
		return ""
	}
	return c.Reason
}
