package market

import "strings"

// SymbolSpec carries per-symbol trading constants: pip geometry, minimum
// FVG size, stop-loss buffer, and broker lot constraints.
type SymbolSpec struct {
	Symbol       string
	PipSize      float64 // price distance of one pip/point
	PipValue     float64 // value of one pip per unit of contract
	ContractSize float64
	MinGapSize   float64 // minimum FVG size in price units
	SLBuffer     float64 // minimum stop-loss distance from structure
	MinLot       float64
	PointValue   float64 // per-lot point value, used for index sizing
	IsIndex      bool
	Volatile     bool // volatile symbols use the shorter premium/discount window
}

var symbolSpecs = map[string]SymbolSpec{
	"XAUUSD": {
		Symbol:       "XAUUSD",
		PipSize:      0.1,
		PipValue:     0.1,
		ContractSize: 100,
		MinGapSize:   0.5,
		SLBuffer:     1.0,
		MinLot:       0.01,
		Volatile:     true,
	},
	"US30": {
		Symbol:       "US30",
		PipSize:      1.0,
		PipValue:     1.0,
		ContractSize: 1,
		MinGapSize:   5.0,
		SLBuffer:     5.0,
		MinLot:       0.1,
		PointValue:   1.0,
		IsIndex:      true,
		Volatile:     true,
	},
}

// defaultFXSpec covers any symbol without an explicit entry.
var defaultFXSpec = SymbolSpec{
	PipSize:      0.0001,
	PipValue:     0.0001,
	ContractSize: 100000,
	MinGapSize:   0.0001,
	SLBuffer:     0.0001,
	MinLot:       0.01,
}

// Spec returns the trading constants for a symbol. Unknown symbols get
// standard FX geometry.
func Spec(symbol string) SymbolSpec {
	if s, ok := symbolSpecs[strings.ToUpper(symbol)]; ok {
		return s
	}
	s := defaultFXSpec
	s.Symbol = strings.ToUpper(symbol)
	return s
}

// PipsToPrice converts a pip count to a price distance for the symbol.
func PipsToPrice(symbol string, pips float64) float64 {
	return pips * Spec(symbol).PipSize
}

// PriceToPips converts a price distance to pips for the symbol.
func PriceToPips(symbol string, price float64) float64 {
	spec := Spec(symbol)
	if spec.PipSize == 0 {
		return 0
	}
	return price / spec.PipSize
}
