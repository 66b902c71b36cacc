package main

import (
	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/pkg/harness"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the relay topology as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph LR) of the funding source, custodian,
receiver and owner, with receiving references drawn solid and opaque ones dotted.
With --run, the scenarios run first and each edge is coloured by its outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFirst, _ := cmd.Flags().GetBool("run")

		r, _, err := cli.Open(cmd.Context(), options(cmd))
		if err != nil {
			return err
		}
		defer r.Close()

		var report *harness.Report
		if runFirst {
			if report, err = r.Run(cmd.Context()); err != nil {
				return err
			}
		}
		return cli.Graph(cmd.OutOrStdout(), r, report)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("run", false, "Run the configured scenarios and colour edges by outcome")
}
