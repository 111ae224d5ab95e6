/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// WorkloadSpec defines the desired state of one Deployment managed by the
// controller. It is immutable once handed out by the desired-state store.
type WorkloadSpec struct {
	// Name of the Deployment.
	// +required
	Name string `json:"name"`

	// Namespace of the Deployment. Defaults to "default".
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// Replicas is the desired number of pods.
	// +kubebuilder:validation:Minimum=1
	Replicas int32 `json:"replicas"`

	// Template describes the pods that will be created.
	// +required
	Template PodTemplate `json:"template"`

	// SpreadConstraint limits how unevenly the pods may be distributed
	// across the topology domains named by TopologyKey.
	// +required
	SpreadConstraint SpreadConstraint `json:"spreadConstraint"`
}

// PodTemplate is the subset of a pod template owned by the controller.
type PodTemplate struct {
	// Labels are applied to the pods and used as the Deployment selector and
	// as the label selector of the spread constraint.
	// Defaults to {"app": <name>}.
	// +optional
	Labels map[string]string `json:"labels,omitempty"`

	// ContainerName defaults to "<name>-container".
	// +optional
	ContainerName string `json:"containerName,omitempty"`

	// Image is the container image reference.
	// +required
	Image string `json:"image"`

	// Ports exposed by the container.
	// +optional
	Ports []ContainerPort `json:"ports,omitempty"`
}

// ContainerPort is a port exposed by the workload container.
type ContainerPort struct {
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	ContainerPort int32 `json:"containerPort"`

	// +optional
	Name string `json:"name,omitempty"`

	// Protocol defaults to TCP.
	// +optional
	Protocol v1.Protocol `json:"protocol,omitempty"`
}

// SpreadConstraint is a single pod topology spread constraint.
type SpreadConstraint struct {
	// MaxSkew is the maximum permitted difference between the number of
	// matching pods in any two topology domains. Defaults to 1 when unset;
	// an explicit value must be at least 1.
	// +kubebuilder:validation:Minimum=1
	// +optional
	MaxSkew *int32 `json:"maxSkew,omitempty"`

	// TopologyKey is the node label key that defines a topology domain,
	// e.g. topology.kubernetes.io/zone.
	// +required
	TopologyKey string `json:"topologyKey"`

	// WhenUnsatisfiable is DoNotSchedule (default) or ScheduleAnyway.
	// +kubebuilder:validation:Enum=DoNotSchedule;ScheduleAnyway
	WhenUnsatisfiable v1.UnsatisfiableConstraintAction `json:"whenUnsatisfiable,omitempty"`
}

// Identity returns the namespace/name pair that identifies the workload on
// the cluster.
func (w *WorkloadSpec) Identity() types.NamespacedName {
	return types.NamespacedName{Namespace: w.Namespace, Name: w.Name}
}

// WorkloadDocument is the desired-state document read at startup.
type WorkloadDocument struct {
	metav1.TypeMeta `json:",inline"`

	// Workloads lists the desired workloads. Identities must be unique.
	Workloads []WorkloadSpec `json:"workloads"`
}
