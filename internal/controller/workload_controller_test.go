package controller

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/2170chm/spread-workload/internal/controller/driver"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
)

var _ = Describe("WorkloadController", func() {
	var (
		f          *fakeCluster
		fakeClock  *testingclock.FakeClock
		c          *WorkloadController
		cancel     context.CancelFunc
		stopped    chan error
		driverName string
	)

	start := func() {
		var err error
		c, err = NewWorkloadController(newTestStore(getSpec(testName, 6, testCurrentImage)), f.clusterClient(), Options{
			Workers:        2,
			ResyncSchedule: "@every 5m",
			CycleTimeout:   5 * time.Second,
			Clock:          fakeClock,
			Driver: driver.Options{
				Name:          driverName,
				BackoffBase:   time.Millisecond,
				BackoffMax:    20 * time.Millisecond,
				BackoffJitter: 0.5,
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ReadyCheck(nil)).To(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		stopped = make(chan error, 1)
		go func() { stopped <- c.Start(ctx) }()
		Eventually(func() error { return c.ReadyCheck(nil) }, timeout).Should(Succeed())
	}

	BeforeEach(func() {
		f = newFakeCluster()
		fakeClock = testingclock.NewFakeClock(time.Now())
		driverName = CurrentSpecReport().FullText()
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(stopped, timeout).Should(Receive(BeNil()))
			cancel = nil
		}
	})

	It("creates the Deployment once and survives watch reconnects without duplicate creates", func() {
		start()

		By("creating the Deployment on startup")
		Eventually(func() error { _, err := f.deployment(testID); return err }, timeout).Should(Succeed())
		Eventually(f.watchCount, timeout).Should(Equal(1))

		By("dropping the watch stream")
		gets := f.gets.Load()
		f.watcher(0).Stop()
		Eventually(f.watchCount, timeout).Should(Equal(2))

		By("re-reconciling after the resync event")
		Eventually(f.gets.Load, timeout).Should(BeNumerically(">", gets))
		Consistently(f.creates.Load, 200*time.Millisecond).Should(Equal(int32(1)))
		Expect(f.updates.Load()).To(Equal(int32(0)))
	})

	It("reconciles again when the Deployment is changed by someone else", func() {
		start()
		Eventually(func() error { _, err := f.deployment(testID); return err }, timeout).Should(Succeed())
		Eventually(f.watchCount, timeout).Should(Equal(1))

		d, err := f.deployment(testID)
		Expect(err).NotTo(HaveOccurred())
		d.Spec.Replicas = ptr.To[int32](2)
		Expect(f.raw.Update(context.Background(), d)).To(Succeed())
		f.watcher(0).Modify(d)

		Eventually(func() int32 {
			d, err := f.deployment(testID)
			if err != nil {
				return 0
			}
			return ptr.Deref(d.Spec.Replicas, 0)
		}, timeout).Should(Equal(int32(6)))
		Expect(f.updates.Load()).To(Equal(int32(1)))
	})

	It("reconciles every workload on the resync schedule", func() {
		start()
		Eventually(func() error { _, err := f.deployment(testID); return err }, timeout).Should(Succeed())
		Eventually(fakeClock.HasWaiters, timeout).Should(BeTrue())

		gets := f.gets.Load()
		fakeClock.Step(5 * time.Minute)
		Eventually(f.gets.Load, timeout).Should(BeNumerically(">", gets))
		Expect(f.creates.Load()).To(Equal(int32(1)))
	})

	It("retries transient failures with backoff until the Deployment is created", func() {
		f.getFaults = func(n int32) error {
			if n <= 3 {
				return errors.New("dial tcp 10.0.0.1:6443: i/o timeout")
			}
			return nil
		}
		start()

		Eventually(func() error { _, err := f.deployment(testID); return err }, timeout).Should(Succeed())
		Expect(f.creates.Load()).To(Equal(int32(1)))
		Eventually(func() int { return c.driver.NumRequeues(testID) }, timeout).Should(Equal(0))
	})

	It("halts a workload after an authorization failure", func() {
		f.createFaults = func(int32) error {
			return apierrors.NewForbidden(deploymentsGR, testName, errors.New("cannot create deployments"))
		}
		start()

		Eventually(func() bool { _, halted := c.driver.Halted(testID); return halted }, timeout).Should(BeTrue())
		class, _ := c.driver.Halted(testID)
		Expect(class).To(Equal(workloaderrors.ClassFatal))

		By("dropping resync ticks for the halted workload")
		Eventually(fakeClock.HasWaiters, timeout).Should(BeTrue())
		fakeClock.Step(5 * time.Minute)
		Consistently(f.creates.Load, 200*time.Millisecond).Should(Equal(int32(1)))
	})

	It("stops when the context is cancelled", func() {
		start()
		Eventually(func() error { _, err := f.deployment(testID); return err }, timeout).Should(Succeed())

		cancel()
		Eventually(stopped, timeout).Should(Receive(BeNil()))
		cancel = nil
		Expect(c.NeedLeaderElection()).To(BeTrue())
	})

	It("rejects an invalid resync schedule", func() {
		_, err := NewWorkloadController(newTestStore(getSpec(testName, 6, testCurrentImage)), f.clusterClient(), Options{
			ResyncSchedule: "every now and then",
		})
		Expect(workloaderrors.Classify(err)).To(Equal(workloaderrors.ClassConfigInvalid))
	})
})
