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
	"strings"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/validation"
)

const containerNameSuffix = "-container"

// SetDefaults_WorkloadSpec fills in the optional fields of a WorkloadSpec.
// Replicas and TopologyKey are never defaulted.
func SetDefaults_WorkloadSpec(obj *WorkloadSpec) {
	if obj.Namespace == "" {
		obj.Namespace = v1.NamespaceDefault
	}
	if len(obj.Template.Labels) == 0 && obj.Name != "" {
		obj.Template.Labels = map[string]string{"app": obj.Name}
	}
	if obj.Template.ContainerName == "" && obj.Name != "" {
		obj.Template.ContainerName = defaultContainerName(obj.Name)
	}
	for i := range obj.Template.Ports {
		if obj.Template.Ports[i].Protocol == "" {
			obj.Template.Ports[i].Protocol = v1.ProtocolTCP
		}
	}
	if obj.SpreadConstraint.MaxSkew == nil {
		maxSkew := int32(1)
		obj.SpreadConstraint.MaxSkew = &maxSkew
	}
	if obj.SpreadConstraint.WhenUnsatisfiable == "" {
		obj.SpreadConstraint.WhenUnsatisfiable = v1.DoNotSchedule
	}
}

// defaultContainerName derives a DNS-1123 label from a workload name, which
// may be a longer, dotted DNS-1123 subdomain.
func defaultContainerName(name string) string {
	base := strings.ReplaceAll(name, ".", "-")
	if maxLen := validation.DNS1123LabelMaxLength - len(containerNameSuffix); len(base) > maxLen {
		base = strings.TrimRight(base[:maxLen], "-")
	}
	return base + containerNameSuffix
}
