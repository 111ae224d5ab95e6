package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2170chm/spread-workload/internal/controller"
	"github.com/2170chm/spread-workload/internal/controller/cluster"
	"github.com/2170chm/spread-workload/internal/controller/config"
)

// Apply returns the command that reconciles every workload once and exits.
func Apply() *cobra.Command {
	o := &sourceOptions{}
	var cycleTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile every workload once",
		Long: `Reconcile every workload in the desired-state document once and print the
outcome of each. Failed workloads are not retried; the command exits non-zero
if any workload failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := o.load(ctx)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return fmt.Errorf("unable to create client: %w", err)
			}

			r := controller.NewWorkloadReconciler(s, cluster.NewClusterClient(c))
			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range s.List() {
				cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
				result := r.Reconcile(cycleCtx, id)
				cancel()

				if result.Succeeded() {
					fmt.Fprintf(out, "%s\t%s\n", id, result.Outcome)
					continue
				}
				failed++
				fmt.Fprintf(out, "%s\t%s\t%s: %v\n", id, result.Outcome, result.Class, result.Err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workloads failed", failed, len(s.List()))
			}
			return nil
		},
	}
	o.addFlags(cmd.Flags())
	cmd.Flags().DurationVar(&cycleTimeout, "cycle-timeout", envDuration("CYCLE_TIMEOUT", config.DefaultCycleTimeout),
		"Timeout of a single reconcile cycle")

	return cmd
}
