// Package series converts raw provider chart payloads into dense, validated
// price series.
package series

import (
	"fmt"
	"math"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
	"marketfeed/internal/symbol"
)

// Result is a built series together with the parameters actually used
// (the interval may have been substituted by validation).
type Result struct {
	Symbol   string        `json:"symbol"`
	Interval string        `json:"interval"`
	Range    string        `json:"range"`
	Items    market.Series `json:"items"`
}

// Build turns a provider chart payload into a dense ordered series.
// Source gaps (nil closes) are dropped, timestamps are scaled from seconds
// to milliseconds, and input order is preserved. Provider data is expected
// to be time-ordered already; a violation is a data-quality failure and is
// surfaced, never re-sorted away.
func Build(sym, interval, rng string, chart provider.ChartPayload) (Result, error) {
	interval = symbol.ValidInterval(interval)

	if len(chart.Results) == 0 {
		return Result{}, fmt.Errorf("series %s: %w", sym, provider.ErrNoResult)
	}
	first := chart.Results[0]

	n := len(first.Closes)
	if len(first.Timestamps) < n {
		n = len(first.Timestamps)
	}

	items := make(market.Series, 0, n)
	lastT := int64(math.MinInt64)
	for i := 0; i < n; i++ {
		y := first.Closes[i]
		if y == nil || math.IsNaN(*y) || math.IsInf(*y, 0) {
			continue
		}
		t := first.Timestamps[i] * 1000
		if t < lastT {
			return Result{}, fmt.Errorf("series %s: timestamp %d after %d: %w", sym, t, lastT, provider.ErrOutOfOrder)
		}
		lastT = t
		items = append(items, market.SeriesPoint{T: t, Y: *y})
	}

	return Result{Symbol: sym, Interval: interval, Range: rng, Items: items}, nil
}
