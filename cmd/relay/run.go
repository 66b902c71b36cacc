package main

import (
	"os"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fund the custodian and run the forwarding scenarios",
	Long: `Deploys the relay, funds the custodian from the funding account, runs each
configured scenario (forward, promoted, overdraw) and prints the report.
Exits non-zero when any step does not pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := options(cmd)
		opts.Scenarios, _ = cmd.Flags().GetStringSlice("scenario")
		jsonMode, _ := cmd.Flags().GetBool("json")

		r, _, err := cli.Open(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer r.Close()

		runOpts := cli.RunOptions{JSON: jsonMode}
		if !jsonMode && tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, relay.Version)
			runOpts.Render = tui.NewRenderer(tui.Width(os.Stdout, 100))
		}
		return cli.Run(cmd.Context(), cmd.OutOrStdout(), r, runOpts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Print the report as JSON")
	runCmd.Flags().StringSlice("scenario", nil, "Scenarios to run, in order (forward, promoted, overdraw)")

	// 'run' is the default when no command is given.
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
