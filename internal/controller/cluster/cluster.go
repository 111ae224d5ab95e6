package cluster

import (
	"context"
	"fmt"

	apps "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	config "github.com/2170chm/spread-workload/internal/controller/config"
	"github.com/2170chm/spread-workload/internal/controller/sync"
)

func (r *realClusterClient) Fetch(ctx context.Context, id types.NamespacedName) (*ObservedState, error) {
	d := &apps.Deployment{}
	if err := r.client.Get(ctx, id, d); err != nil {
		if apierrors.IsNotFound(err) {
			return &ObservedState{Exists: false}, nil
		}
		return nil, err
	}
	return &ObservedState{
		Exists:          true,
		Replicas:        ptr.Deref(d.Spec.Replicas, 1),
		ResourceVersion: d.ResourceVersion,
		Deployment:      d,
	}, nil
}

func (r *realClusterClient) Create(ctx context.Context, spec *workloadv1alpha1.WorkloadSpec) error {
	d := sync.NewDeployment(spec)
	klog.V(4).InfoS("Creating Deployment", "deployment", klog.KObj(d), "replicas", spec.Replicas)
	return r.client.Create(ctx, d, client.FieldOwner(config.ControllerName))
}

func (r *realClusterClient) Update(ctx context.Context, observed *ObservedState, spec *workloadv1alpha1.WorkloadSpec) error {
	if observed == nil || !observed.Exists || observed.Deployment == nil {
		return fmt.Errorf("update %s: %w", spec.Identity(),
			apierrors.NewNotFound(apps.Resource("deployments"), spec.Name))
	}

	merged := sync.Merge(observed.Deployment, sync.NewDeployment(spec))
	// Guard the full update with the resourceVersion the diff was made against.
	merged.ResourceVersion = observed.ResourceVersion
	klog.V(4).InfoS("Updating Deployment", "deployment", klog.KObj(merged),
		"resourceVersion", observed.ResourceVersion, "replicas", spec.Replicas)
	return r.client.Update(ctx, merged, client.FieldOwner(config.ControllerName))
}

func (r *realClusterClient) Delete(ctx context.Context, id types.NamespacedName) error {
	d := &apps.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: id.Name, Namespace: id.Namespace},
	}
	klog.V(4).InfoS("Deleting Deployment", "deployment", klog.KRef(id.Namespace, id.Name))
	err := r.client.Delete(ctx, d, client.PropagationPolicy(metav1.DeletePropagationForeground))
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}
