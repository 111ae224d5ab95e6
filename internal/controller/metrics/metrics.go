// Package metrics holds the prometheus collectors of the workload
// controller. They are registered with controller-runtime's registry and
// served by the manager's metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	namespace = "spread_workload"
	subsystem = "controller"
)

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_total",
			Help:      "Total number of reconcile cycles by outcome and error class",
		},
		[]string{"workload", "outcome", "class"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconcile cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"workload"},
	)

	retryDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay scheduled after a failed reconcile",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 11), // 500ms to ~8.5min
		},
		[]string{"workload"},
	)

	halted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "halted",
			Help:      "Whether reconciliation of the workload is halted (1) after a fatal failure",
		},
		[]string{"workload", "class"},
	)

	watchRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "restarts_total",
			Help:      "Total number of watch reconnects",
		},
		[]string{"workload"},
	)

	resyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resync_total",
			Help:      "Total number of periodic full resyncs",
		},
	)

	replicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workload",
			Name:      "replicas",
			Help:      "Replica counts of the managed Deployment by state",
		},
		[]string{"workload", "state"},
	)

	rolloutComplete = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workload",
			Name:      "rollout_complete",
			Help:      "Whether the managed Deployment has finished rolling out (1) or not (0)",
		},
		[]string{"workload"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		reconcileTotal,
		reconcileDuration,
		retryDelay,
		halted,
		watchRestartsTotal,
		resyncTotal,
		replicas,
		rolloutComplete,
	)
}

// RecordReconcile records the outcome and duration of a reconcile cycle.
func RecordReconcile(id types.NamespacedName, outcome, class string, seconds float64) {
	reconcileTotal.WithLabelValues(id.String(), outcome, class).Inc()
	reconcileDuration.WithLabelValues(id.String()).Observe(seconds)
}

// RecordRetry records the backoff delay scheduled for a failed workload.
func RecordRetry(id types.NamespacedName, seconds float64) {
	retryDelay.WithLabelValues(id.String()).Observe(seconds)
}

// RecordHalted marks a workload as halted with the class that halted it.
func RecordHalted(id types.NamespacedName, class string) {
	halted.WithLabelValues(id.String(), class).Set(1)
}

// RecordWatchRestart records a watch reconnect.
func RecordWatchRestart(id types.NamespacedName) {
	watchRestartsTotal.WithLabelValues(id.String()).Inc()
}

// RecordResync records a periodic full resync.
func RecordResync() {
	resyncTotal.Inc()
}

// RecordRollout records the replica counts and rollout completeness of a
// managed Deployment.
func RecordRollout(id types.NamespacedName, desired, updated, ready, available int32, complete bool) {
	replicas.WithLabelValues(id.String(), "desired").Set(float64(desired))
	replicas.WithLabelValues(id.String(), "updated").Set(float64(updated))
	replicas.WithLabelValues(id.String(), "ready").Set(float64(ready))
	replicas.WithLabelValues(id.String(), "available").Set(float64(available))
	if complete {
		rolloutComplete.WithLabelValues(id.String()).Set(1)
	} else {
		rolloutComplete.WithLabelValues(id.String()).Set(0)
	}
}
