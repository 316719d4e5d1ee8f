package core

import "strings"

// DefaultConvert is the currency monetary figures are expressed in when none is given.
const DefaultConvert = "USD"

// Currencies lists the convert codes documented by the v1 API besides USD.
// The client never enforces it.
var Currencies = []string{
	"AUD", "BRL", "CAD", "CHF", "CLP", "CNY", "CZK", "DKK", "EUR", "GBP", "HKD",
	"HUF", "IDR", "ILS", "INR", "JPY", "KRW", "MXN", "MYR", "NOK", "NZD", "PHP",
	"PKR", "PLN", "RUB", "SEK", "SGD", "THB", "TRY", "TWD", "ZAR",
}

// IsDocumentedCurrency reports whether code is USD or one of Currencies.
func IsDocumentedCurrency(code string) bool {
	code = strings.ToUpper(code)
	if code == DefaultConvert {
		return true
	}
	for _, c := range Currencies {
		if c == code {
			return true
		}
	}
	return false
}

// TickerParams holds the query parameters of the ticker endpoints.
type TickerParams struct {
	Start   int    // return results from rank Start and above
	Limit   int    // maximum number of results, 0 returns all
	Convert string // currency code, passed through verbatim
}

// DefaultTickerParams returns start=0, limit=0, convert=USD.
func DefaultTickerParams() TickerParams {
	return TickerParams{Convert: DefaultConvert}
}
