package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/2170chm/spread-workload/internal/controller/cluster"
	"github.com/2170chm/spread-workload/internal/controller/sync"
)

// Delete returns the command that removes the Deployments of every workload.
func Delete() *cobra.Command {
	o := &sourceOptions{}
	var force bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the Deployments of every workload",
		Long: `Delete the Deployment of every workload in the desired-state document.

Deployments that were not created or adopted by spread-workload are skipped
unless --force is set.`,
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
			cc := cluster.NewClusterClient(c)

			out := cmd.OutOrStdout()
			for _, id := range s.List() {
				observed, err := cc.Fetch(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to fetch %s: %w", id, err)
				}
				switch {
				case !observed.Exists:
					fmt.Fprintf(out, "%s\tNotFound\n", id)
					continue
				case !force && !sync.IsManaged(observed.Deployment):
					klog.InfoS("Skipping unmanaged Deployment", "deployment", klog.KObj(observed.Deployment))
					fmt.Fprintf(out, "%s\tSkipped\n", id)
					continue
				}
				if err := cc.Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				fmt.Fprintf(out, "%s\tDeleted\n", id)
			}
			return nil
		},
	}
	o.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&force, "force", false, "Delete Deployments not managed by spread-workload")

	return cmd
}
