package main

import (
	"github.com/aretw0/relay/internal/cli"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show the balance of an address through both observation paths",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := cli.Open(cmd.Context(), options(cmd))
		if err != nil {
			return err
		}
		defer r.Close()
		return cli.Balance(cmd.Context(), cmd.OutOrStdout(), r, args[0])
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
