package store

import (
	"fmt"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
	"k8s.io/apimachinery/pkg/types"
)

func (s *realStore) Get(id types.NamespacedName) (*workloadv1alpha1.WorkloadSpec, error) {
	spec, ok := s.specs[id]
	if !ok {
		return nil, fmt.Errorf("workload %s: %w", id, workloaderrors.ErrNotFound)
	}
	// Callers get their own copy so a spec cannot change under a running cycle.
	return spec.DeepCopy(), nil
}

func (s *realStore) List() []types.NamespacedName {
	ids := make([]types.NamespacedName, len(s.order))
	copy(ids, s.order)
	return ids
}
