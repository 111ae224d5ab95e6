package config

import (
	"time"

	workloadv1alpha1 "github.com/2170chm/spread-workload/api/v1alpha1"
	apps "k8s.io/api/apps/v1"
)

const (
	// ControllerName is used as field manager and in log/metric names.
	ControllerName = "spread-workload-controller"

	// DefaultResyncSchedule triggers a full reconcile of every workload as a
	// safety net against missed watch events.
	DefaultResyncSchedule = "@every 5m"

	// Backoff applied to failed reconciles. Delay n is
	// min(DefaultBackoffMax, DefaultBackoffBase*2^n plus up to
	// DefaultBackoffJitter of that value).
	DefaultBackoffBase   = 1 * time.Second
	DefaultBackoffMax    = 5 * time.Minute
	DefaultBackoffJitter = 0.5

	// DefaultCycleTimeout bounds a single reconcile cycle.
	DefaultCycleTimeout = 30 * time.Second

	// DefaultWorkers is the number of identities reconciled concurrently.
	DefaultWorkers = 2

	// Watch reconnects are paced to at most one per DefaultWatchReconnectInterval
	// after an initial burst of DefaultWatchReconnectBurst.
	DefaultWatchReconnectInterval = 2 * time.Second
	DefaultWatchReconnectBurst    = 3
)

const (
	// ManagedByLabel marks Deployments owned by this controller.
	ManagedByLabel = "app.kubernetes.io/managed-by"

	// TemplateHashAnnotation records the hash of the last applied pod template.
	TemplateHashAnnotation = "workload.scott.dev/template-hash"
)

var (
	SchemaGroupVersion = workloadv1alpha1.SchemeGroupVersion
	DeploymentKind     = apps.SchemeGroupVersion.WithKind("Deployment")
)
