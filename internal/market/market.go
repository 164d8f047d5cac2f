package market

import (
	"fmt"
	"math"
	"time"
)

// Recommendation is the action attached to a trading signal.
type Recommendation string

const (
	Buy  Recommendation = "BUY"
	Sell Recommendation = "SELL"
	Hold Recommendation = "HOLD"
)

// Valid reports whether r is one of the known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case Buy, Sell, Hold:
		return true
	}
	return false
}

// Actionable reports whether a signal with this recommendation should be
// surfaced as a user-visible alert rather than a silent data update.
func (r Recommendation) Actionable() bool { return r == Buy || r == Sell }

// Quote is a single resolved price for a symbol.
// Price is always finite and non-negative; use NewQuote to construct.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewQuote validates and builds a Quote. A non-finite or negative price is
// rejected so that a Quote value can always be trusted downstream.
func NewQuote(symbol string, price, changePct float64, at time.Time) (Quote, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return Quote{}, fmt.Errorf("quote %s: non-finite price", symbol)
	}
	if price < 0 {
		return Quote{}, fmt.Errorf("quote %s: negative price %v", symbol, price)
	}
	if math.IsNaN(changePct) || math.IsInf(changePct, 0) {
		changePct = 0
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Quote{Symbol: symbol, Price: price, ChangePercent: changePct, ObservedAt: at}, nil
}

// SignalsTopic is the bus topic carrying trading signals.
const SignalsTopic = "signals"

// Topic returns the bus topic carrying market data for one symbol.
func Topic(symbol string) string { return "market:" + symbol }

// SeriesPoint is one sample of a price series. T is milliseconds since epoch.
type SeriesPoint struct {
	T int64   `json:"t"`
	Y float64 `json:"y"`
}

// Series is an ordered sequence of points, strictly non-decreasing in T,
// with gaps from the source dropped rather than interpolated.
type Series []SeriesPoint

// Signal is a trading signal produced by an upstream engine. It is published
// once and never mutated afterwards; all subscribers share the same value.
type Signal struct {
	Symbol         string             `json:"symbol"`
	Recommendation Recommendation     `json:"signal"`
	Price          float64            `json:"price"`
	Indicators     map[string]float64 `json:"indicators,omitempty"`
	ObservedAt     time.Time          `json:"observed_at"`
}
