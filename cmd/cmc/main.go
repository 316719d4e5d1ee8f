package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/newthinker/cmc/internal/collector/coinmarketcap"
	"github.com/newthinker/cmc/internal/config"
	"github.com/newthinker/cmc/internal/core"
	"github.com/newthinker/cmc/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "cmc",
	Short: "CMC - CoinMarketCap public API client",
	Long: `cmc queries the public CoinMarketCap v1 API for tickers and global
market data, and can serve the same queries as a JSON proxy.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config, or the defaults when it is unset, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Defaults()
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newClient builds the API client from config. observer may be nil.
func newClient(cfg config.ClientConfig, log *zap.Logger, observer coinmarketcap.Observer) *coinmarketcap.Client {
	opts := []coinmarketcap.Option{
		coinmarketcap.WithBaseURL(cfg.BaseURL),
		coinmarketcap.WithTransport(&http.Client{Timeout: cfg.Timeout}),
		coinmarketcap.WithRequestBuilder(coinmarketcap.HeaderBuilder(map[string]string{
			"User-Agent": cfg.UserAgent,
			"Accept":     "application/json",
		})),
		coinmarketcap.WithLogger(logger.Component(log, "coinmarketcap")),
	}
	if observer != nil {
		opts = append(opts, coinmarketcap.WithObserver(observer))
	}
	return coinmarketcap.New(opts...)
}

// warnConvert logs codes the API does not document. They are still sent.
func warnConvert(log *zap.Logger, convert string) {
	if !core.IsDocumentedCurrency(convert) {
		log.Warn("convert currency is not documented by the API",
			zap.String("convert", convert),
		)
	}
}
