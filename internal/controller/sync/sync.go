package sync

import (
	apps "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	config "github.com/2170chm/spread-workload/internal/controller/config"
)

// NewDeployment renders the Deployment described by spec. The pod labels
// double as the Deployment selector and as the selector of the spread
// constraint.
func NewDeployment(spec *workloadv1alpha1.WorkloadSpec) *apps.Deployment {
	ports := make([]v1.ContainerPort, 0, len(spec.Template.Ports))
	for _, p := range spec.Template.Ports {
		ports = append(ports, v1.ContainerPort{
			Name:          p.Name,
			ContainerPort: p.ContainerPort,
			Protocol:      protocolOrDefault(p.Protocol),
		})
	}

	template := v1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels: copyLabels(spec.Template.Labels),
		},
		Spec: v1.PodSpec{
			Containers: []v1.Container{{
				Name:  spec.Template.ContainerName,
				Image: spec.Template.Image,
				Ports: ports,
			}},
			TopologySpreadConstraints: []v1.TopologySpreadConstraint{{
				MaxSkew:           ptr.Deref(spec.SpreadConstraint.MaxSkew, 1),
				TopologyKey:       spec.SpreadConstraint.TopologyKey,
				WhenUnsatisfiable: spec.SpreadConstraint.WhenUnsatisfiable,
				LabelSelector: &metav1.LabelSelector{
					MatchLabels: copyLabels(spec.Template.Labels),
				},
			}},
		},
	}

	d := &apps.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
		},
		Spec: apps.DeploymentSpec{
			Replicas: ptr.To(spec.Replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: copyLabels(spec.Template.Labels),
			},
			Template: template,
		},
	}
	writeManagedBy(d)
	writeTemplateHash(d, TemplateHash(&template))
	return d
}

// Diff compares the controller-owned fields of desired and observed and
// returns the names of the fields that differ. An empty result means the
// observed Deployment already matches and is managed by this controller.
func Diff(desired, observed *apps.Deployment) []string {
	want, got := project(desired), project(observed)

	var fields []string
	if want.Replicas != got.Replicas {
		fields = append(fields, FieldReplicas)
	}
	if !equality.Semantic.DeepEqual(want.TemplateLabels, got.TemplateLabels) {
		fields = append(fields, FieldTemplateLabels)
	}
	if !equality.Semantic.DeepEqual(want.Containers, got.Containers) {
		fields = append(fields, FieldContainers)
	}
	if !equality.Semantic.DeepEqual(want.SpreadConstraints, got.SpreadConstraints) {
		fields = append(fields, FieldSpreadConstraints)
	}
	if !IsManaged(observed) ||
		observed.GetAnnotations()[config.TemplateHashAnnotation] != desired.GetAnnotations()[config.TemplateHashAnnotation] {
		fields = append(fields, FieldManagedBy)
	}
	return fields
}

// Merge returns a copy of observed with every controller-owned field taken
// from desired. Identity, selector and resourceVersion are kept from
// observed, so the result can be sent as a full update.
func Merge(observed, desired *apps.Deployment) *apps.Deployment {
	merged := observed.DeepCopy()

	merged.Spec.Replicas = ptr.To(ptr.Deref(desired.Spec.Replicas, 1))
	merged.Spec.Template.Labels = copyLabels(desired.Spec.Template.Labels)
	merged.Spec.Template.Spec.Containers = mergeContainers(
		merged.Spec.Template.Spec.Containers, desired.Spec.Template.Spec.Containers)
	merged.Spec.Template.Spec.TopologySpreadConstraints = make(
		[]v1.TopologySpreadConstraint, len(desired.Spec.Template.Spec.TopologySpreadConstraints))
	for i := range desired.Spec.Template.Spec.TopologySpreadConstraints {
		desired.Spec.Template.Spec.TopologySpreadConstraints[i].DeepCopyInto(
			&merged.Spec.Template.Spec.TopologySpreadConstraints[i])
	}

	writeManagedBy(merged)
	writeTemplateHash(merged, TemplateHash(&desired.Spec.Template))
	return merged
}

// mergeContainers replaces the owned container fields and keeps everything
// else the server or another actor set on a container of the same name.
func mergeContainers(observed, desired []v1.Container) []v1.Container {
	byName := make(map[string]*v1.Container, len(observed))
	for i := range observed {
		byName[observed[i].Name] = &observed[i]
	}

	out := make([]v1.Container, 0, len(desired))
	for i := range desired {
		c := desired[i].DeepCopy()
		if existing, ok := byName[c.Name]; ok {
			merged := existing.DeepCopy()
			merged.Image = c.Image
			merged.Ports = c.Ports
			c = merged
		}
		out = append(out, *c)
	}
	return out
}

func project(d *apps.Deployment) deploymentView {
	view := deploymentView{
		Replicas:       ptr.Deref(d.Spec.Replicas, 1),
		TemplateLabels: d.Spec.Template.Labels,
	}

	for _, c := range d.Spec.Template.Spec.Containers {
		cv := containerView{Name: c.Name, Image: c.Image}
		for _, p := range c.Ports {
			cv.Ports = append(cv.Ports, portView{
				ContainerPort: p.ContainerPort,
				Name:          p.Name,
				Protocol:      protocolOrDefault(p.Protocol),
			})
		}
		view.Containers = append(view.Containers, cv)
	}

	for _, c := range d.Spec.Template.Spec.TopologySpreadConstraints {
		view.SpreadConstraints = append(view.SpreadConstraints, spreadConstraintView{
			MaxSkew:           c.MaxSkew,
			TopologyKey:       c.TopologyKey,
			WhenUnsatisfiable: c.WhenUnsatisfiable,
			LabelSelector:     c.LabelSelector,
		})
	}
	return view
}
