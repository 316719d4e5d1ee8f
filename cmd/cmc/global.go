package main

import (
	"fmt"

	"github.com/newthinker/cmc/internal/core"
	"github.com/newthinker/cmc/internal/logger"
	"github.com/spf13/cobra"
)

var (
	globalConvert string
	globalTable   bool
)

var globalCmd = &cobra.Command{
	Use:   "global",
	Short: "Show global market data",
	Args:  cobra.NoArgs,
	RunE:  runGlobal,
}

func init() {
	globalCmd.Flags().StringVar(&globalConvert, "convert", core.DefaultConvert, "currency to express totals in")
	globalCmd.Flags().BoolVar(&globalTable, "table", false, "print a summary table instead of JSON")

	rootCmd.AddCommand(globalCmd)
}

func runGlobal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Must(debug || cfg.Log.Development)
	defer log.Sync()

	warnConvert(log, globalConvert)

	client := newClient(cfg.Client, log, nil)
	out := cmd.OutOrStdout()

	if globalTable {
		data, err := client.Global(cmd.Context(), globalConvert)
		if err != nil {
			return fmt.Errorf("fetching global data: %w", err)
		}
		return printGlobalTable(out, data, globalConvert)
	}

	result, err := client.GlobalData(cmd.Context(), globalConvert)
	if err != nil {
		return fmt.Errorf("fetching global data: %w", err)
	}
	return printResult(out, result)
}
