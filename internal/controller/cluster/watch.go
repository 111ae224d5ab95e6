package cluster

import (
	"context"

	apps "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/2170chm/spread-workload/internal/controller/metrics"
)

func (r *realClusterClient) Watch(ctx context.Context, id types.NamespacedName) <-chan ChangeEvent {
	out := make(chan ChangeEvent)
	go r.watchLoop(ctx, id, out)
	return out
}

func (r *realClusterClient) watchLoop(ctx context.Context, id types.NamespacedName, out chan<- ChangeEvent) {
	defer close(out)

	limiter := r.newReconnectLimiter()
	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		w, err := r.client.Watch(ctx, &apps.DeploymentList{},
			client.InNamespace(id.Namespace),
			client.MatchingFields{"metadata.name": id.Name},
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			klog.ErrorS(err, "Failed to start watch", "deployment", klog.KRef(id.Namespace, id.Name), "attempt", attempt)
			continue
		}

		if attempt > 0 {
			metrics.RecordWatchRestart(id)
			klog.V(2).InfoS("Watch reconnected", "deployment", klog.KRef(id.Namespace, id.Name), "attempt", attempt)
			if !send(ctx, out, ChangeEvent{Type: EventResync, Identity: id}) {
				w.Stop()
				return
			}
		}

		consumed := r.consume(ctx, id, w, out)
		w.Stop()
		if !consumed {
			return
		}
	}
}

// consume forwards events of w until the stream ends. It returns false if
// ctx is done.
func (r *realClusterClient) consume(ctx context.Context, id types.NamespacedName, w watch.Interface, out chan<- ChangeEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.ResultChan():
			if !ok {
				klog.V(2).InfoS("Watch closed", "deployment", klog.KRef(id.Namespace, id.Name))
				return true
			}

			var eventType EventType
			switch ev.Type {
			case watch.Added:
				eventType = EventAdded
			case watch.Modified:
				eventType = EventModified
			case watch.Deleted:
				eventType = EventDeleted
			case watch.Error:
				klog.ErrorS(apierrors.FromObject(ev.Object), "Watch error", "deployment", klog.KRef(id.Namespace, id.Name))
				return true
			default:
				continue
			}

			d, ok := ev.Object.(*apps.Deployment)
			if !ok || d.Name != id.Name || d.Namespace != id.Namespace {
				continue
			}
			if !send(ctx, out, ChangeEvent{Type: eventType, Identity: id}) {
				return false
			}
		}
	}
}

func send(ctx context.Context, out chan<- ChangeEvent, ev ChangeEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
