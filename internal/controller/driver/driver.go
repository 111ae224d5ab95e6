package driver

import (
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"github.com/2170chm/spread-workload/internal/controller/metrics"
	workloaderrors "github.com/2170chm/spread-workload/internal/errors"
	"github.com/2170chm/spread-workload/internal/reconcile"
)

func (d *realDriver) Enqueue(id types.NamespacedName) bool {
	if class, ok := d.Halted(id); ok {
		klog.V(4).InfoS("Dropping event for halted workload", "workload", klog.KRef(id.Namespace, id.Name), "class", class)
		return false
	}
	d.queue.Add(id)
	return true
}

func (d *realDriver) Schedule(id types.NamespacedName, result reconcile.Result) {
	switch {
	case result.Succeeded():
		d.queue.Forget(id)

	case result.Terminal():
		d.haltedLock.Lock()
		d.halted[id] = result.Class
		d.haltedLock.Unlock()

		d.queue.Forget(id)
		metrics.RecordHalted(id, string(result.Class))
		klog.ErrorS(result.Err, "Halting reconciliation of workload", "workload", klog.KRef(id.Namespace, id.Name),
			"class", result.Class)

	default:
		delay := d.limiter.When(id)
		d.queue.AddAfter(id, delay)
		metrics.RecordRetry(id, delay.Seconds())
		klog.V(2).InfoS("Retrying workload", "workload", klog.KRef(id.Namespace, id.Name),
			"class", result.Class, "retries", d.limiter.NumRequeues(id), "delay", delay)
	}
}

func (d *realDriver) Halted(id types.NamespacedName) (workloaderrors.Class, bool) {
	d.haltedLock.RLock()
	defer d.haltedLock.RUnlock()

	class, ok := d.halted[id]
	return class, ok
}

func (d *realDriver) NumRequeues(id types.NamespacedName) int {
	return d.queue.NumRequeues(id)
}

func (d *realDriver) Get() (types.NamespacedName, bool) {
	return d.queue.Get()
}

func (d *realDriver) Done(id types.NamespacedName) {
	d.queue.Done(id)
}

func (d *realDriver) Len() int {
	return d.queue.Len()
}

func (d *realDriver) ShutDown() {
	d.queue.ShutDownWithDrain()
}
