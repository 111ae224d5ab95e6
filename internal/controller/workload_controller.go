package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	klog "k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/2170chm/spread-workload/internal/controller/cluster"
	"github.com/2170chm/spread-workload/internal/controller/config"
	"github.com/2170chm/spread-workload/internal/controller/driver"
	"github.com/2170chm/spread-workload/internal/controller/metrics"
	"github.com/2170chm/spread-workload/internal/controller/store"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
)

// Options configures a WorkloadController.
type Options struct {
	// Workers is the number of identities reconciled concurrently.
	Workers int
	// ResyncSchedule is a cron expression for periodic full resyncs.
	ResyncSchedule string
	// CycleTimeout bounds a single reconcile cycle.
	CycleTimeout time.Duration
	Driver       driver.Options

	// Clock drives the resync schedule. Defaults to the real clock.
	Clock clock.Clock
}

// WorkloadController feeds watch events and resync ticks to the driver and
// runs reconcile cycles for the identities it hands out.
type WorkloadController struct {
	store      store.Interface
	cluster    cluster.Interface
	reconciler *WorkloadReconciler
	driver     driver.Interface

	workers      int
	cycleTimeout time.Duration
	schedule     cron.Schedule
	clock        clock.Clock

	started atomic.Bool
}

func NewWorkloadController(s store.Interface, c cluster.Interface, opts Options) (*WorkloadController, error) {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultWorkers
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = config.DefaultCycleTimeout
	}
	if opts.ResyncSchedule == "" {
		opts.ResyncSchedule = config.DefaultResyncSchedule
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	schedule, err := cron.ParseStandard(opts.ResyncSchedule)
	if err != nil {
		return nil, workloaderrors.WrapConfigInvalid(fmt.Errorf("resync schedule %q: %w", opts.ResyncSchedule, err))
	}

	return &WorkloadController{
		store:        s,
		cluster:      c,
		reconciler:   NewWorkloadReconciler(s, c),
		driver:       driver.NewDriver(opts.Driver),
		workers:      opts.Workers,
		cycleTimeout: opts.CycleTimeout,
		schedule:     schedule,
		clock:        opts.Clock,
	}, nil
}

// Start reconciles every workload, then keeps them converged until ctx is
// done. Cycles in flight at that point are allowed to finish.
func (c *WorkloadController) Start(ctx context.Context) error {
	ids := c.store.List()
	klog.InfoS("Starting workload controller", "workloads", len(ids), "workers", c.workers)

	for _, id := range ids {
		c.driver.Enqueue(id)
	}

	var wg gosync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id types.NamespacedName) {
			defer wg.Done()
			c.watch(ctx, id)
		}(id)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.resyncLoop(ctx)
	}()

	var workers gosync.WaitGroup
	for i := 0; i < c.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			wait.UntilWithContext(ctx, c.runWorker, time.Second)
		}()
	}

	c.started.Store(true)
	<-ctx.Done()

	klog.InfoS("Shutting down workload controller")
	c.driver.ShutDown()
	workers.Wait()
	wg.Wait()
	return nil
}

// NeedLeaderElection makes the manager run the controller only on the
// elected leader.
func (c *WorkloadController) NeedLeaderElection() bool {
	return true
}

// ReadyCheck is a healthz.Checker that passes once the controller runs.
func (c *WorkloadController) ReadyCheck(_ *http.Request) error {
	if !c.started.Load() {
		return errors.New("workload controller not started")
	}
	return nil
}

// Resync enqueues every workload that is not halted.
func (c *WorkloadController) Resync() {
	metrics.RecordResync()
	enqueued := 0
	for _, id := range c.store.List() {
		if c.driver.Enqueue(id) {
			enqueued++
		}
	}
	klog.V(2).InfoS("Periodic resync", "enqueued", enqueued)
}

func (c *WorkloadController) watch(ctx context.Context, id types.NamespacedName) {
	for ev := range c.cluster.Watch(ctx, id) {
		klog.V(4).InfoS("Change event", "workload", klog.KRef(id.Namespace, id.Name), "type", ev.Type)
		c.driver.Enqueue(ev.Identity)
	}
}

func (c *WorkloadController) resyncLoop(ctx context.Context) {
	now := c.clock.Now()
	for {
		timer := c.clock.NewTimer(c.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now = <-timer.C():
			c.Resync()
		}
	}
}

func (c *WorkloadController) runWorker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

func (c *WorkloadController) processNextWorkItem(ctx context.Context) bool {
	id, shutdown := c.driver.Get()
	if shutdown {
		return false
	}
	defer c.driver.Done(id)

	// An event may have been queued before the identity was halted.
	if _, halted := c.driver.Halted(id); halted {
		return true
	}

	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cycleTimeout)
	defer cancel()

	result := c.reconciler.Reconcile(cycleCtx, id)
	c.driver.Schedule(id, result)
	return true
}
