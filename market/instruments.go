// market/instruments.go
package market

import "math"

// InstrumentMeta holds the static per-symbol data the venue needs. PipLocation
// is the exponent of one pip: -4 for most pairs, -2 for yen-quoted pairs.
// Every price-dependent calculation must go through PipSize; hardcoding 0.0001
// anywhere silently corrupts yen-pair arithmetic.
type InstrumentMeta struct {
	Name             string
	BaseCurrency     string
	QuoteCurrency    string
	PipLocation      int
	ContractSize     float64 // units per standard lot
	MinimumTradeSize float64

	BaseSpreadPips   float64
	MaxSpreadPips    float64
	BaseSlippagePips float64

	// Daily financing rates, per unit of base currency. Negative is a charge.
	SwapLongRate  float64
	SwapShortRate float64
}

// PipSize returns the price increment of one pip for this instrument.
func (m InstrumentMeta) PipSize() float64 {
	return math.Pow(10, float64(m.PipLocation))
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {
		Name:             "EUR_USD",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		ContractSize:     100_000,
		MinimumTradeSize: 1,
		BaseSpreadPips:   1.2,
		MaxSpreadPips:    8.0,
		BaseSlippagePips: 0.3,
		SwapLongRate:     -6.2,
		SwapShortRate:    1.4,
	},
	"GBP_USD": {
		Name:             "GBP_USD",
		BaseCurrency:     "GBP",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		ContractSize:     100_000,
		MinimumTradeSize: 1,
		BaseSpreadPips:   1.6,
		MaxSpreadPips:    10.0,
		BaseSlippagePips: 0.4,
		SwapLongRate:     -4.8,
		SwapShortRate:    0.6,
	},
	"USD_JPY": {
		Name:             "USD_JPY",
		BaseCurrency:     "USD",
		QuoteCurrency:    "JPY",
		PipLocation:      -2,
		ContractSize:     100_000,
		MinimumTradeSize: 1,
		BaseSpreadPips:   1.4,
		MaxSpreadPips:    9.0,
		BaseSlippagePips: 0.3,
		SwapLongRate:     8.5,
		SwapShortRate:    -14.1,
	},
	"AUD_USD": {
		Name:             "AUD_USD",
		BaseCurrency:     "AUD",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		ContractSize:     100_000,
		MinimumTradeSize: 1,
		BaseSpreadPips:   1.5,
		MaxSpreadPips:    10.0,
		BaseSlippagePips: 0.4,
		SwapLongRate:     -2.1,
		SwapShortRate:    -1.0,
	},
	"USD_CHF": {
		Name:             "USD_CHF",
		BaseCurrency:     "USD",
		QuoteCurrency:    "CHF",
		PipLocation:      -4,
		ContractSize:     100_000,
		MinimumTradeSize: 1,
		BaseSpreadPips:   1.8,
		MaxSpreadPips:    12.0,
		BaseSlippagePips: 0.5,
		SwapLongRate:     3.9,
		SwapShortRate:    -9.7,
	},
}

// Meta looks up instrument metadata by symbol.
func Meta(symbol string) (InstrumentMeta, bool) {
	m, ok := Instruments[symbol]
	return m, ok
}
