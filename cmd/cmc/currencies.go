package main

import (
	"fmt"

	"github.com/newthinker/cmc/internal/core"
	"github.com/spf13/cobra"
)

var currenciesCmd = &cobra.Command{
	Use:   "currencies",
	Short: "List the documented convert currencies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (default)\n", core.DefaultConvert)
		for _, c := range core.Currencies {
			fmt.Fprintln(out, c)
		}
	},
}

func init() {
	rootCmd.AddCommand(currenciesCmd)
}
