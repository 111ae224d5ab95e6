package store

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "k8s.io/api/core/v1"
	metav1validation "k8s.io/apimachinery/pkg/apis/meta/v1/validation"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
)

var (
	supportedProtocols = sets.New(v1.ProtocolTCP, v1.ProtocolUDP, v1.ProtocolSCTP)
	supportedActions   = sets.New(v1.DoNotSchedule, v1.ScheduleAnyway)
)

func validateDocument(doc *workloadv1alpha1.WorkloadDocument) error {
	var allErrs field.ErrorList

	if doc.APIVersion != "" && doc.APIVersion != workloadv1alpha1.SchemeGroupVersion.String() {
		allErrs = append(allErrs, field.NotSupported(field.NewPath("apiVersion"), doc.APIVersion,
			[]string{workloadv1alpha1.SchemeGroupVersion.String()}))
	}
	if doc.Kind != "" && doc.Kind != workloadv1alpha1.DocumentKind {
		allErrs = append(allErrs, field.NotSupported(field.NewPath("kind"), doc.Kind,
			[]string{workloadv1alpha1.DocumentKind}))
	}

	workloadsPath := field.NewPath("workloads")
	if len(doc.Workloads) == 0 {
		allErrs = append(allErrs, field.Required(workloadsPath, "at least one workload is required"))
	}

	seen := sets.New[types.NamespacedName]()
	for i := range doc.Workloads {
		spec := &doc.Workloads[i]
		idxPath := workloadsPath.Index(i)
		allErrs = append(allErrs, ValidateWorkloadSpec(spec, idxPath)...)
		if seen.Has(spec.Identity()) {
			allErrs = append(allErrs, field.Duplicate(idxPath.Child("name"), spec.Identity().String()))
		}
		seen.Insert(spec.Identity())
	}

	if len(allErrs) == 0 {
		return nil
	}
	return workloaderrors.WrapConfigInvalid(allErrs.ToAggregate())
}

// ValidateWorkloadSpec validates a defaulted WorkloadSpec.
func ValidateWorkloadSpec(spec *workloadv1alpha1.WorkloadSpec, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList

	for _, msg := range validation.IsDNS1123Subdomain(spec.Name) {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("name"), spec.Name, msg))
	}
	for _, msg := range validation.IsDNS1123Label(spec.Namespace) {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("namespace"), spec.Namespace, msg))
	}
	if spec.Replicas < 1 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("replicas"), spec.Replicas, "must be at least 1"))
	}

	allErrs = append(allErrs, validateTemplate(&spec.Template, fldPath.Child("template"))...)
	allErrs = append(allErrs, validateSpreadConstraint(&spec.SpreadConstraint, fldPath.Child("spreadConstraint"))...)
	return allErrs
}

func validateTemplate(tpl *workloadv1alpha1.PodTemplate, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList

	if len(tpl.Labels) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("labels"), "labels select the pods and cannot be empty"))
	}
	allErrs = append(allErrs, metav1validation.ValidateLabels(tpl.Labels, fldPath.Child("labels"))...)

	for _, msg := range validation.IsDNS1123Label(tpl.ContainerName) {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("containerName"), tpl.ContainerName, msg))
	}

	if tpl.Image == "" {
		allErrs = append(allErrs, field.Required(fldPath.Child("image"), ""))
	} else if _, err := name.ParseReference(tpl.Image); err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("image"), tpl.Image, err.Error()))
	}

	seenPorts := sets.New[string]()
	for i, port := range tpl.Ports {
		idxPath := fldPath.Child("ports").Index(i)
		for _, msg := range validation.IsValidPortNum(int(port.ContainerPort)) {
			allErrs = append(allErrs, field.Invalid(idxPath.Child("containerPort"), port.ContainerPort, msg))
		}
		if port.Name != "" {
			for _, msg := range validation.IsValidPortName(port.Name) {
				allErrs = append(allErrs, field.Invalid(idxPath.Child("name"), port.Name, msg))
			}
		}
		if !supportedProtocols.Has(port.Protocol) {
			allErrs = append(allErrs, field.NotSupported(idxPath.Child("protocol"), port.Protocol,
				sets.List(supportedProtocols)))
		}
		key := fmt.Sprintf("%d/%s", port.ContainerPort, port.Protocol)
		if seenPorts.Has(key) {
			allErrs = append(allErrs, field.Duplicate(idxPath, key))
		}
		seenPorts.Insert(key)
	}
	return allErrs
}

func validateSpreadConstraint(c *workloadv1alpha1.SpreadConstraint, fldPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList

	if c.MaxSkew == nil {
		allErrs = append(allErrs, field.Required(fldPath.Child("maxSkew"), ""))
	} else if *c.MaxSkew < 1 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("maxSkew"), *c.MaxSkew, "must be at least 1"))
	}
	if c.TopologyKey == "" {
		allErrs = append(allErrs, field.Required(fldPath.Child("topologyKey"), "can not be empty"))
	} else {
		for _, msg := range validation.IsQualifiedName(c.TopologyKey) {
			allErrs = append(allErrs, field.Invalid(fldPath.Child("topologyKey"), c.TopologyKey, msg))
		}
	}
	if !supportedActions.Has(c.WhenUnsatisfiable) {
		allErrs = append(allErrs, field.NotSupported(fldPath.Child("whenUnsatisfiable"), c.WhenUnsatisfiable,
			sets.List(supportedActions)))
	}
	return allErrs
}
