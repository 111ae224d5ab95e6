package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Validate returns the command that checks a desired-state document without
// contacting the cluster.
func Validate() *cobra.Command {
	o := &sourceOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the desired-state document",
		Long: `Load and validate the desired-state document and list the workloads
it declares. The cluster is not contacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range s.List() {
				fmt.Fprintln(out, id.String())
			}
			return nil
		},
	}
	o.addFlags(cmd.Flags())

	return cmd
}
