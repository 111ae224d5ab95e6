package controller

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apps "k8s.io/api/apps/v1"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/utils/ptr"

	"github.com/2170chm/spread-workload/internal/controller/config"
	"github.com/2170chm/spread-workload/internal/controller/store"
	sync "github.com/2170chm/spread-workload/internal/controller/sync"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
	"github.com/2170chm/spread-workload/internal/reconcile"
)

var deploymentsGR = apps.Resource("deployments")

// renderedDeployment returns the Deployment the controller would create for
// the workload id in s.
func renderedDeployment(s store.Interface, id types.NamespacedName) *apps.Deployment {
	spec, err := s.Get(id)
	Expect(err).NotTo(HaveOccurred())
	return sync.NewDeployment(spec)
}

var _ = Describe("WorkloadReconciler", func() {
	ctx := context.Background()

	var s store.Interface

	BeforeEach(func() {
		s = newTestStore(getSpec(testName, 6, testCurrentImage))
	})

	It("creates a missing Deployment exactly once and is idempotent afterwards", func() {
		f := newFakeCluster()
		r := NewWorkloadReconciler(s, f.clusterClient())

		By("creating the Deployment on the first cycle")
		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeCreated))
		Expect(f.creates.Load()).To(Equal(int32(1)))

		d, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ptr.Deref(d.Spec.Replicas, 0)).To(Equal(int32(6)))
		Expect(d.Spec.Selector.MatchLabels).To(Equal(map[string]string{"app": testName}))
		Expect(d.Spec.Template.Spec.Containers).To(HaveLen(1))
		Expect(d.Spec.Template.Spec.Containers[0].Name).To(Equal("my-app-container"))
		Expect(d.Spec.Template.Spec.Containers[0].Image).To(Equal(testCurrentImage))
		Expect(d.Spec.Template.Spec.TopologySpreadConstraints).To(ConsistOf(v1.TopologySpreadConstraint{
			MaxSkew:           1,
			TopologyKey:       testTopologyKey,
			WhenUnsatisfiable: v1.DoNotSchedule,
			LabelSelector:     &metav1.LabelSelector{MatchLabels: map[string]string{"app": testName}},
		}))

		By("doing nothing on the second cycle")
		result = r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeNoOp))
		Expect(f.creates.Load()).To(Equal(int32(1)))
		Expect(f.updates.Load()).To(Equal(int32(0)))
	})

	It("scales an existing Deployment with a single update", func() {
		existing := renderedDeployment(newTestStore(getSpec(testName, 4, testCurrentImage)), testID)
		f := newFakeCluster(existing)
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeUpdated))
		Expect(f.updates.Load()).To(Equal(int32(1)))
		Expect(f.creates.Load()).To(Equal(int32(0)))

		d, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ptr.Deref(d.Spec.Replicas, 0)).To(Equal(int32(6)))

		result = r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeNoOp))
		Expect(f.updates.Load()).To(Equal(int32(1)))
	})

	It("rolls out a new image without recreating the Deployment", func() {
		existing := renderedDeployment(s, testID)
		f := newFakeCluster(existing)
		before, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())

		updated := newTestStore(getSpec(testName, 6, testUpdatedImage))
		r := NewWorkloadReconciler(updated, f.clusterClient())

		Expect(r.Reconcile(ctx, testID).Outcome).To(Equal(reconcile.OutcomeUpdated))

		after, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.UID).To(Equal(before.UID))
		Expect(after.Spec.Template.Spec.Containers[0].Image).To(Equal(testUpdatedImage))
	})

	It("adopts a matching Deployment that it did not create", func() {
		existing := renderedDeployment(s, testID)
		existing.Labels = nil
		existing.Annotations = nil
		f := newFakeCluster(existing)
		r := NewWorkloadReconciler(s, f.clusterClient())

		Expect(r.Reconcile(ctx, testID).Outcome).To(Equal(reconcile.OutcomeUpdated))
		Expect(f.updates.Load()).To(Equal(int32(1)))

		d, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		Expect(sync.IsManaged(d)).To(BeTrue())
		Expect(d.Annotations).To(HaveKeyWithValue(config.TemplateHashAnnotation,
			renderedDeployment(s, testID).Annotations[config.TemplateHashAnnotation]))

		Expect(r.Reconcile(ctx, testID).Outcome).To(Equal(reconcile.OutcomeNoOp))
		Expect(f.updates.Load()).To(Equal(int32(1)))
	})

	It("does not serialise cycles of different workloads", func() {
		other := types.NamespacedName{Namespace: testNSName, Name: "other-app"}
		s = newTestStore(getSpec(testName, 6, testCurrentImage), getSpec(other.Name, 2, testCurrentImage))
		f := newFakeCluster()
		release := make(chan struct{})
		f.getFaults = func(n int32) error {
			if n == 1 {
				<-release
			}
			return nil
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		first := make(chan reconcile.Result, 1)
		go func() { first <- r.Reconcile(ctx, testID) }()
		Eventually(f.gets.Load, timeout).Should(Equal(int32(1)))

		second := make(chan reconcile.Result, 1)
		go func() { second <- r.Reconcile(ctx, other) }()
		Eventually(second, timeout).Should(Receive(HaveField("Outcome", reconcile.OutcomeCreated)))
		Consistently(first, 100*time.Millisecond).ShouldNot(Receive())

		close(release)
		Eventually(first, timeout).Should(Receive(HaveField("Outcome", reconcile.OutcomeCreated)))
	})

	It("re-fetches once after a stale resourceVersion", func() {
		existing := renderedDeployment(newTestStore(getSpec(testName, 4, testCurrentImage)), testID)
		f := newFakeCluster(existing)
		f.updateFaults = func(n int32) error {
			if n == 1 {
				return apierrors.NewConflict(deploymentsGR, testName, errors.New("the object has been modified"))
			}
			return nil
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeUpdated))
		Expect(f.updates.Load()).To(Equal(int32(2)))
		Expect(f.gets.Load()).To(Equal(int32(2)))
	})

	It("surfaces a Conflict that persists after the in-cycle retry", func() {
		existing := renderedDeployment(newTestStore(getSpec(testName, 4, testCurrentImage)), testID)
		f := newFakeCluster(existing)
		f.updateFaults = func(int32) error {
			return apierrors.NewConflict(deploymentsGR, testName, errors.New("the object has been modified"))
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeFailed))
		Expect(result.Class).To(Equal(workloaderrors.ClassConflict))
		Expect(result.Terminal()).To(BeFalse())
		Expect(f.updates.Load()).To(Equal(int32(2)))
	})

	It("treats a concurrently created matching Deployment as converged", func() {
		f := newFakeCluster(renderedDeployment(s, testID))
		// The first fetch misses the Deployment another actor is creating.
		f.getFaults = func(n int32) error {
			if n == 1 {
				return apierrors.NewNotFound(deploymentsGR, testName)
			}
			return nil
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeNoOp))
		Expect(f.creates.Load()).To(Equal(int32(1)))
		Expect(f.gets.Load()).To(Equal(int32(2)))
	})

	It("updates a concurrently created Deployment that differs", func() {
		other := renderedDeployment(newTestStore(getSpec(testName, 2, testCurrentImage)), testID)
		f := newFakeCluster(other)
		f.getFaults = func(n int32) error {
			if n == 1 {
				return apierrors.NewNotFound(deploymentsGR, testName)
			}
			return nil
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		Expect(r.Reconcile(ctx, testID).Outcome).To(Equal(reconcile.OutcomeUpdated))
		d, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ptr.Deref(d.Spec.Replicas, 0)).To(Equal(int32(6)))
	})

	It("reports transport failures as retryable", func() {
		f := newFakeCluster()
		f.getFaults = func(int32) error {
			return errors.New("dial tcp 10.0.0.1:6443: connect: connection refused")
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeFailed))
		Expect(result.Class).To(Equal(workloaderrors.ClassTransport))
		Expect(result.Terminal()).To(BeFalse())
		Expect(f.creates.Load()).To(Equal(int32(0)))
		Expect(result.Unrecognised).To(BeFalse())
	})

	It("retries unrecognised failures as transport failures and flags them", func() {
		f := newFakeCluster()
		f.createFaults = func(int32) error {
			return errors.New("webhook returned an unexpected payload")
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeFailed))
		Expect(result.Class).To(Equal(workloaderrors.ClassTransport))
		Expect(result.Unrecognised).To(BeTrue())
		Expect(result.Terminal()).To(BeFalse())
	})

	It("reports authorization failures as terminal", func() {
		f := newFakeCluster()
		f.createFaults = func(int32) error {
			return apierrors.NewForbidden(deploymentsGR, testName, errors.New("cannot create deployments"))
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Outcome).To(Equal(reconcile.OutcomeFailed))
		Expect(result.Class).To(Equal(workloaderrors.ClassFatal))
		Expect(result.Terminal()).To(BeTrue())
		Expect(f.creates.Load()).To(Equal(int32(1)))
	})

	It("reports objects rejected by the server as invalid configuration", func() {
		f := newFakeCluster()
		f.createFaults = func(int32) error {
			return apierrors.NewInvalid(config.DeploymentKind.GroupKind(), testName, field.ErrorList{
				field.Invalid(field.NewPath("spec", "template", "spec", "topologySpreadConstraints"), "", "invalid"),
			})
		}
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, testID)
		Expect(result.Class).To(Equal(workloaderrors.ClassConfigInvalid))
		Expect(result.Terminal()).To(BeTrue())
	})

	It("fails workloads that are not in the desired state", func() {
		f := newFakeCluster()
		r := NewWorkloadReconciler(s, f.clusterClient())

		result := r.Reconcile(ctx, types.NamespacedName{Namespace: testNSName, Name: "unknown"})
		Expect(result.Outcome).To(Equal(reconcile.OutcomeFailed))
		Expect(result.Class).To(Equal(workloaderrors.ClassConfigInvalid))
		Expect(f.gets.Load()).To(Equal(int32(0)))
	})
})
