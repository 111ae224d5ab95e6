package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/2170chm/spread-workload/internal/controller"
	"github.com/2170chm/spread-workload/internal/controller/cluster"
	"github.com/2170chm/spread-workload/internal/controller/config"
	"github.com/2170chm/spread-workload/internal/controller/driver"
)

type runOptions struct {
	source sourceOptions

	workers        int
	resyncSchedule string
	cycleTimeout   time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration
	backoffJitter  float64

	metricsAddr          string
	probeAddr            string
	enableLeaderElection bool
	leaderElectionID     string
}

func (o *runOptions) controllerOptions() controller.Options {
	return controller.Options{
		Workers:        o.workers,
		ResyncSchedule: o.resyncSchedule,
		CycleTimeout:   o.cycleTimeout,
		Driver: driver.Options{
			Name:          config.ControllerName,
			BackoffBase:   o.backoffBase,
			BackoffMax:    o.backoffMax,
			BackoffJitter: o.backoffJitter,
		},
	}
}

// Run returns the command that runs the controller until it is signalled.
func Run() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller",
		Long: `Run the controller until it receives SIGINT or SIGTERM.

Every workload in the desired-state document is reconciled on startup, after
every change to its Deployment and on the resync schedule. Failed reconciles
are retried with exponential backoff; authorization failures halt the
workload until the controller is restarted.

Examples:
  # Run against the current kubeconfig context
  spread-workload run -c workloads.yaml

  # Read the desired state from S3 and run with leader election
  spread-workload run -c s3://configs/workloads.yaml --leader-elect`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd, o)
		},
	}

	fs := cmd.Flags()
	o.source.addFlags(fs)
	fs.IntVar(&o.workers, "workers", envInt("WORKERS", config.DefaultWorkers),
		"Number of workloads reconciled concurrently")
	fs.StringVar(&o.resyncSchedule, "resync-schedule", envString("RESYNC_SCHEDULE", config.DefaultResyncSchedule),
		"Cron schedule of periodic full resyncs")
	fs.DurationVar(&o.cycleTimeout, "cycle-timeout", envDuration("CYCLE_TIMEOUT", config.DefaultCycleTimeout),
		"Timeout of a single reconcile cycle")
	fs.DurationVar(&o.backoffBase, "backoff-base", envDuration("BACKOFF_BASE", config.DefaultBackoffBase),
		"Delay before the first retry of a failed reconcile")
	fs.DurationVar(&o.backoffMax, "backoff-max", envDuration("BACKOFF_MAX", config.DefaultBackoffMax),
		"Maximum delay between retries")
	fs.Float64Var(&o.backoffJitter, "backoff-jitter", envFloat("BACKOFF_JITTER", config.DefaultBackoffJitter),
		"Random jitter added to retry delays, as a fraction (0 to 1) of the delay")
	fs.StringVar(&o.metricsAddr, "metrics-bind-address", envString("METRICS_BIND_ADDRESS", ":8080"),
		"The address the metric endpoint binds to. Use 0 to disable")
	fs.StringVar(&o.probeAddr, "health-probe-bind-address", envString("HEALTH_PROBE_BIND_ADDRESS", ":8081"),
		"The address the probe endpoint binds to")
	fs.BoolVar(&o.enableLeaderElection, "leader-elect", envBool("LEADER_ELECT", false),
		"Enable leader election so only one replica reconciles")
	fs.StringVar(&o.leaderElectionID, "leader-election-id", envString("LEADER_ELECTION_ID", config.ControllerName),
		"The name of the leader election lease")

	return cmd
}

func runController(cmd *cobra.Command, o *runOptions) error {
	ctx := cmd.Context()

	if o.backoffJitter < 0 || o.backoffJitter > 1 {
		return fmt.Errorf("--backoff-jitter must be between 0 and 1, got %v", o.backoffJitter)
	}

	s, err := o.source.load(ctx)
	if err != nil {
		return err
	}

	cfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("unable to load kubeconfig: %w", err)
	}

	mgr, err := ctrl.NewManager(cfg, ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: o.metricsAddr,
		},
		HealthProbeBindAddress:        o.probeAddr,
		LeaderElection:                o.enableLeaderElection,
		LeaderElectionID:              o.leaderElectionID,
		LeaderElectionReleaseOnCancel: true,
	})
	if err != nil {
		return fmt.Errorf("unable to create manager: %w", err)
	}

	// The manager's client reads from an informer cache; the controller needs
	// live reads and its own watches.
	c, err := client.NewWithWatch(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return fmt.Errorf("unable to create client: %w", err)
	}

	wc, err := controller.NewWorkloadController(s, cluster.NewClusterClient(c), o.controllerOptions())
	if err != nil {
		return err
	}
	if err := mgr.Add(wc); err != nil {
		return fmt.Errorf("unable to add controller: %w", err)
	}
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", wc.ReadyCheck); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	klog.InfoS("Starting manager", "version", version, "workloads", len(s.List()))
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}
