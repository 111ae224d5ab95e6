package sync

import (
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// deploymentView is the part of a Deployment owned by the controller.
// Desired and observed Deployments are projected into it by the same
// function so that server-side defaulting never shows up as drift.
type deploymentView struct {
	Replicas          int32
	TemplateLabels    map[string]string
	Containers        []containerView
	SpreadConstraints []spreadConstraintView
}

type containerView struct {
	Name  string
	Image string
	Ports []portView
}

type portView struct {
	ContainerPort int32
	Name          string
	Protocol      v1.Protocol
}

type spreadConstraintView struct {
	MaxSkew           int32
	TopologyKey       string
	WhenUnsatisfiable v1.UnsatisfiableConstraintAction
	LabelSelector     *metav1.LabelSelector
}

// Field names reported by Diff.
const (
	FieldReplicas          = "replicas"
	FieldTemplateLabels    = "template.labels"
	FieldContainers        = "template.containers"
	FieldSpreadConstraints = "template.topologySpreadConstraints"
	// FieldManagedBy is reported for a Deployment without the managed-by
	// label or with a stale template hash annotation.
	FieldManagedBy = "metadata.managedBy"
)
