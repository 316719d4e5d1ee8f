package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/cmc/internal/collector/coinmarketcap"
)

// printResult writes r as indented JSON. Results decoded from an array are
// written back as an array so entries keep their rank order.
func printResult(w io.Writer, r coinmarketcap.Result) error {
	var v any = r
	if items, ok := r.List(); ok && len(items) > 0 {
		v = items
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTickerTable(w io.Writer, tickers []coinmarketcap.Ticker, convert string) error {
	code := strings.ToUpper(convert)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tSYMBOL\tNAME\tPRICE %s\tVOLUME 24H\tMARKET CAP\t1H %%\t24H %%\t7D %%\n", code)
	fmt.Fprintln(tw, "----\t------\t----\t-----\t----------\t----------\t----\t-----\t----")
	for _, t := range tickers {
		fig, ok := t.In(code)
		price, volume, marketCap := "-", "-", "-"
		if ok {
			price = formatNumber(fig.Price, 4)
			volume = formatNumber(fig.Volume24h, 0)
			marketCap = formatNumber(fig.MarketCap, 0)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\n",
			t.Rank.Int(),
			t.Symbol,
			t.Name,
			price,
			volume,
			marketCap,
			t.PercentChange1h.Float64(),
			t.PercentChange24h.Float64(),
			t.PercentChange7d.Float64(),
		)
	}
	return tw.Flush()
}

func printGlobalTable(w io.Writer, g *coinmarketcap.GlobalData, convert string) error {
	code := strings.ToUpper(convert)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if fig, ok := g.In(code); ok {
		fmt.Fprintf(tw, "Total market cap (%s)\t%s\n", code, formatNumber(fig.MarketCap, 0))
		fmt.Fprintf(tw, "Total 24h volume (%s)\t%s\n", code, formatNumber(fig.Volume24h, 0))
	}
	fmt.Fprintf(tw, "Bitcoin dominance\t%.2f%%\n", g.BitcoinPercentageOfMarketCap.Float64())
	fmt.Fprintf(tw, "Active currencies\t%d\n", g.ActiveCurrencies.Int())
	fmt.Fprintf(tw, "Active assets\t%d\n", g.ActiveAssets.Int())
	fmt.Fprintf(tw, "Active markets\t%d\n", g.ActiveMarkets.Int())
	if !g.LastUpdated.IsZero() {
		fmt.Fprintf(tw, "Last updated\t%s\n", g.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	}
	return tw.Flush()
}

func formatNumber(n coinmarketcap.Number, prec int) string {
	return fmt.Sprintf("%.*f", prec, n.Float64())
}
