package store

import (
	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	"k8s.io/apimachinery/pkg/types"
)

// Interface hands out the desired state of every workload. There is no
// mutation API: the desired state is supplied once at startup.
type Interface interface {
	// Get returns a copy of the desired state of the workload.
	Get(id types.NamespacedName) (*workloadv1alpha1.WorkloadSpec, error)
	// List returns the workload identities in document order.
	List() []types.NamespacedName
}

type realStore struct {
	specs map[types.NamespacedName]*workloadv1alpha1.WorkloadSpec
	order []types.NamespacedName
}

// NewStore defaults and validates doc and returns a store holding it. It
// fails with a ConfigInvalid error if any workload is invalid.
func NewStore(doc *workloadv1alpha1.WorkloadDocument) (Interface, error) {
	if doc == nil {
		doc = &workloadv1alpha1.WorkloadDocument{}
	}
	doc = doc.DeepCopy()
	for i := range doc.Workloads {
		workloadv1alpha1.SetDefaults_WorkloadSpec(&doc.Workloads[i])
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	s := &realStore{
		specs: make(map[types.NamespacedName]*workloadv1alpha1.WorkloadSpec, len(doc.Workloads)),
	}
	for i := range doc.Workloads {
		spec := &doc.Workloads[i]
		s.specs[spec.Identity()] = spec
		s.order = append(s.order, spec.Identity())
	}
	return s, nil
}
