package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/relay/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only inspection HTTP server",
	Long: `Deploys the relay and serves balances, receipts, a receipt event stream and
prometheus metrics over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		runFirst, _ := cmd.Flags().GetBool("run")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, logger, err := cli.Open(ctx, options(cmd))
		if err != nil {
			return err
		}
		defer r.Close()

		if runFirst {
			if err := cli.Run(ctx, cmd.ErrOrStderr(), r, cli.RunOptions{}); err != nil {
				logger.Warn("initial run did not pass", "err", err)
			}
		}

		addr := ":" + port
		if cfgAddr := r.Config().MetricsAddr; cfgAddr != "" && !cmd.Flags().Changed("port") {
			addr = cfgAddr
		}
		return cli.Serve(ctx, r, addr, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("run", false, "Run the configured scenarios once before serving")
}
