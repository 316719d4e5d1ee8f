package main

import (
	"fmt"

	"github.com/newthinker/cmc/internal/core"
	"github.com/newthinker/cmc/internal/logger"
	"github.com/spf13/cobra"
)

var (
	tickerStart   int
	tickerLimit   int
	tickerConvert string
	tickerTable   bool
)

var tickerCmd = &cobra.Command{
	Use:   "ticker [id]",
	Short: "Show ticker data",
	Long: `Show ticker data for all assets ranked from --start, or for the single
asset whose API id is given (e.g. "bitcoin").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTicker,
}

func init() {
	tickerCmd.Flags().IntVar(&tickerStart, "start", 0, "return results from this rank and above")
	tickerCmd.Flags().IntVar(&tickerLimit, "limit", 0, "maximum number of results (0 returns all)")
	tickerCmd.Flags().StringVar(&tickerConvert, "convert", core.DefaultConvert, "currency to express prices in")
	tickerCmd.Flags().BoolVar(&tickerTable, "table", false, "print a table instead of JSON")

	rootCmd.AddCommand(tickerCmd)
}

func runTicker(cmd *cobra.Command, args []string) error {
	if tickerStart < 0 || tickerLimit < 0 {
		return fmt.Errorf("start and limit must be non-negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Must(debug || cfg.Log.Development)
	defer log.Sync()

	warnConvert(log, tickerConvert)

	client := newClient(cfg.Client, log, nil)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if tickerTable {
		params := core.TickerParams{Start: tickerStart, Limit: tickerLimit, Convert: tickerConvert}
		if len(args) == 1 {
			tickers, err := client.TickerByID(ctx, args[0], params)
			if err != nil {
				return fmt.Errorf("fetching ticker %s: %w", args[0], err)
			}
			return printTickerTable(out, tickers, params.Convert)
		}
		tickers, err := client.Tickers(ctx, params)
		if err != nil {
			return fmt.Errorf("fetching tickers: %w", err)
		}
		return printTickerTable(out, tickers, params.Convert)
	}

	if len(args) == 1 {
		result, err := client.TickerFor(ctx, args[0], tickerStart, tickerLimit, tickerConvert)
		if err != nil {
			return fmt.Errorf("fetching ticker %s: %w", args[0], err)
		}
		return printResult(out, result)
	}

	result, err := client.Ticker(ctx, tickerStart, tickerLimit, tickerConvert)
	if err != nil {
		return fmt.Errorf("fetching tickers: %w", err)
	}
	return printResult(out, result)
}
