package coinmarketcap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/cmc/internal/core"
)

// Number is a numeric field the v1 API may send as a JSON string or number.
// null and "" decode to 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*n = 0
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing number %q: %w", s, err)
	}
	*n = Number(f)
	return nil
}

// Float64 returns n as a float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// Int returns n truncated to an int.
func (n Number) Int() int {
	return int(n)
}

// Timestamp is a unix-seconds time the API may send as a string or number.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var n Number
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	if n == 0 {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.Unix(int64(n), 0).UTC()
	return nil
}

// Converted holds the figures of a ticker expressed in a convert currency.
type Converted struct {
	Price     Number
	Volume24h Number
	MarketCap Number
}

// Ticker is one entry of the ticker endpoints.
type Ticker struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Symbol           string    `json:"symbol"`
	Rank             Number    `json:"rank"`
	PriceUSD         Number    `json:"price_usd"`
	PriceBTC         Number    `json:"price_btc"`
	Volume24hUSD     Number    `json:"24h_volume_usd"`
	MarketCapUSD     Number    `json:"market_cap_usd"`
	AvailableSupply  Number    `json:"available_supply"`
	TotalSupply      Number    `json:"total_supply"`
	MaxSupply        Number    `json:"max_supply"`
	PercentChange1h  Number    `json:"percent_change_1h"`
	PercentChange24h Number    `json:"percent_change_24h"`
	PercentChange7d  Number    `json:"percent_change_7d"`
	LastUpdated      Timestamp `json:"last_updated"`

	// Converted is keyed by upper-case currency code, e.g. "EUR".
	Converted map[string]Converted `json:"-"`
}

// UnmarshalJSON decodes the fixed fields and collects price_<code>,
// 24h_volume_<code> and market_cap_<code> into Converted.
func (t *Ticker) UnmarshalJSON(data []byte) error {
	type plain Ticker
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, val := range raw {
		var code string
		var set func(*Converted, Number)
		switch {
		case strings.HasPrefix(key, "price_"):
			code = strings.TrimPrefix(key, "price_")
			if code == "usd" || code == "btc" {
				continue
			}
			set = func(c *Converted, n Number) { c.Price = n }
		case strings.HasPrefix(key, "24h_volume_"):
			code = strings.TrimPrefix(key, "24h_volume_")
			if code == "usd" {
				continue
			}
			set = func(c *Converted, n Number) { c.Volume24h = n }
		case strings.HasPrefix(key, "market_cap_"):
			code = strings.TrimPrefix(key, "market_cap_")
			if code == "usd" {
				continue
			}
			set = func(c *Converted, n Number) { c.MarketCap = n }
		default:
			continue
		}

		var n Number
		if err := n.UnmarshalJSON(val); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if p.Converted == nil {
			p.Converted = make(map[string]Converted)
		}
		code = strings.ToUpper(code)
		c := p.Converted[code]
		set(&c, n)
		p.Converted[code] = c
	}

	*t = Ticker(p)
	return nil
}

// In returns the ticker figures expressed in code. USD reads the fixed
// fields, anything else reads Converted.
func (t Ticker) In(code string) (Converted, bool) {
	code = strings.ToUpper(code)
	if code == core.DefaultConvert {
		return Converted{Price: t.PriceUSD, Volume24h: t.Volume24hUSD, MarketCap: t.MarketCapUSD}, true
	}
	c, ok := t.Converted[code]
	return c, ok
}

// GlobalConverted holds the global totals expressed in a convert currency.
type GlobalConverted struct {
	MarketCap Number
	Volume24h Number
}

// GlobalData is the aggregate market summary.
type GlobalData struct {
	TotalMarketCapUSD            Number    `json:"total_market_cap_usd"`
	Total24hVolumeUSD            Number    `json:"total_24h_volume_usd"`
	BitcoinPercentageOfMarketCap Number    `json:"bitcoin_percentage_of_market_cap"`
	ActiveCurrencies             Number    `json:"active_currencies"`
	ActiveAssets                 Number    `json:"active_assets"`
	ActiveMarkets                Number    `json:"active_markets"`
	LastUpdated                  Timestamp `json:"last_updated"`

	// Converted is keyed by upper-case currency code.
	Converted map[string]GlobalConverted `json:"-"`
}

// UnmarshalJSON decodes the fixed fields and collects total_market_cap_<code>
// and total_24h_volume_<code> into Converted.
func (g *GlobalData) UnmarshalJSON(data []byte) error {
	type plain GlobalData
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, val := range raw {
		var code string
		volume := false
		switch {
		case strings.HasPrefix(key, "total_market_cap_"):
			code = strings.TrimPrefix(key, "total_market_cap_")
		case strings.HasPrefix(key, "total_24h_volume_"):
			code = strings.TrimPrefix(key, "total_24h_volume_")
			volume = true
		default:
			continue
		}
		if code == "usd" {
			continue
		}

		var n Number
		if err := n.UnmarshalJSON(val); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if p.Converted == nil {
			p.Converted = make(map[string]GlobalConverted)
		}
		code = strings.ToUpper(code)
		c := p.Converted[code]
		if volume {
			c.Volume24h = n
		} else {
			c.MarketCap = n
		}
		p.Converted[code] = c
	}

	*g = GlobalData(p)
	return nil
}

// In returns the global totals expressed in code.
func (g GlobalData) In(code string) (GlobalConverted, bool) {
	code = strings.ToUpper(code)
	if code == core.DefaultConvert {
		return GlobalConverted{MarketCap: g.TotalMarketCapUSD, Volume24h: g.Total24hVolumeUSD}, true
	}
	c, ok := g.Converted[code]
	return c, ok
}

// Tickers is the typed form of Ticker. A zero Convert means USD.
func (c *Client) Tickers(ctx context.Context, params core.TickerParams) ([]Ticker, error) {
	params = withDefaults(params)
	tickers := []Ticker{}
	path := "ticker/?" + tickerQuery(params.Start, params.Limit, params.Convert)
	if err := c.decodeTyped(ctx, EndpointTicker, path, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// TickerByID is the typed form of TickerFor. The API answers with a one-element list.
func (c *Client) TickerByID(ctx context.Context, id string, params core.TickerParams) ([]Ticker, error) {
	params = withDefaults(params)
	tickers := []Ticker{}
	path := "ticker/" + id + "/?" + tickerQuery(params.Start, params.Limit, params.Convert)
	if err := c.decodeTyped(ctx, EndpointTickerID, path, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// Global is the typed form of GlobalData. An empty convert means USD.
func (c *Client) Global(ctx context.Context, convert string) (*GlobalData, error) {
	if convert == "" {
		convert = core.DefaultConvert
	}
	var data GlobalData
	if err := c.decodeTyped(ctx, EndpointGlobal, "global/?"+globalQuery(convert), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func withDefaults(p core.TickerParams) core.TickerParams {
	if p.Convert == "" {
		p.Convert = core.DefaultConvert
	}
	return p
}
