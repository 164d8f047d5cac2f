// Package provider defines the upstream data source contracts shared by all
// concrete clients, plus the normalized payload shapes they return.
package provider

import (
	"context"
	"math"
)

// QuoteProvider serves a single current price for one symbol.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (RawQuote, error)
}

// ChartProvider serves a raw historical chart payload for one symbol.
type ChartProvider interface {
	Name() string
	Chart(ctx context.Context, symbol, interval, rng string) (ChartPayload, error)
}

// RawQuote is a provider response before resolution. Providers populate
// whichever market-session fields they have; extraction applies the
// preference order regular -> post -> pre.
type RawQuote struct {
	Symbol string

	RegularMarketPrice *float64
	PostMarketPrice    *float64
	PreMarketPrice     *float64

	RegularMarketChangePercent *float64
	PostMarketChangePercent    *float64
	PreMarketChangePercent     *float64
}

// Price returns the first finite price in preference order. The second
// return is false when no session carries a usable price.
func (q RawQuote) Price() (float64, bool) {
	for _, p := range []*float64{q.RegularMarketPrice, q.PostMarketPrice, q.PreMarketPrice} {
		if p != nil && finite(*p) {
			return *p, true
		}
	}
	return 0, false
}

// ChangePercent returns the first finite change percentage in preference
// order, defaulting to 0 when none is present.
func (q RawQuote) ChangePercent() float64 {
	for _, c := range []*float64{q.RegularMarketChangePercent, q.PostMarketChangePercent, q.PreMarketChangePercent} {
		if c != nil && finite(*c) {
			return *c
		}
	}
	return 0
}

// ChartPayload is a provider chart response: per-result parallel arrays of
// timestamps (seconds) and close prices, where a nil close is a source gap.
type ChartPayload struct {
	Results []ChartResult
}

type ChartResult struct {
	Timestamps []int64
	Closes     []*float64
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
