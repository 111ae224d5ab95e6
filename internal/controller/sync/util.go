package sync

import (
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubecontroller "k8s.io/kubernetes/pkg/controller"

	config "github.com/2170chm/spread-workload/internal/controller/config"
)

// TemplateHash returns the hash of a pod template as recorded in the
// template-hash annotation.
func TemplateHash(template *v1.PodTemplateSpec) string {
	return kubecontroller.ComputeHash(template, nil)
}

func writeTemplateHash(obj metav1.Object, hash string) {
	if obj.GetAnnotations() == nil {
		obj.SetAnnotations(make(map[string]string, 1))
	}
	obj.GetAnnotations()[config.TemplateHashAnnotation] = hash
}

func writeManagedBy(obj metav1.Object) {
	if obj.GetLabels() == nil {
		obj.SetLabels(make(map[string]string, 1))
	}
	obj.GetLabels()[config.ManagedByLabel] = config.ControllerName
}

// IsManaged reports whether obj carries the managed-by label of this
// controller.
func IsManaged(obj metav1.Object) bool {
	return obj.GetLabels()[config.ManagedByLabel] == config.ControllerName
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func protocolOrDefault(p v1.Protocol) v1.Protocol {
	if p == "" {
		return v1.ProtocolTCP
	}
	return p
}
