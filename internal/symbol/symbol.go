// Package symbol canonicalizes instrument identifiers and sampling intervals
// before they reach any provider. Both operations are total: bad input maps
// to a safe default, never an error.
package symbol

import (
	"regexp"
	"strings"
)

// b3Ticker matches bare B3 tickers (four letters + one digit, e.g. PETR4)
// that need the exchange suffix before Yahoo will recognize them.
var b3Ticker = regexp.MustCompile(`^[A-Z]{4}\d$`)

// Normalizer canonicalizes free-form symbols. The zero value is not usable;
// construct with New.
type Normalizer struct {
	defaultSymbol string
	suffix        string
}

func New(defaultSymbol, suffix string) *Normalizer {
	if defaultSymbol == "" {
		defaultSymbol = "AAPL"
	}
	if suffix == "" {
		suffix = ".SA"
	}
	return &Normalizer{defaultSymbol: defaultSymbol, suffix: suffix}
}

// Normalize trims and upper-cases the input, substituting the default symbol
// for empty input and appending the exchange suffix to bare B3 tickers.
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func (n *Normalizer) Normalize(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return n.defaultSymbol
	}
	if b3Ticker.MatchString(s) && !strings.HasSuffix(s, n.suffix) {
		return s + n.suffix
	}
	return s
}

// validIntervals is the fixed whitelist of chart sampling intervals the
// upstream chart API accepts.
var validIntervals = map[string]struct{}{
	"1m": {}, "2m": {}, "5m": {}, "15m": {},
	"30m": {}, "60m": {}, "90m": {}, "1h": {},
}

const DefaultInterval = "1m"

// ValidInterval returns s when it is a whitelisted interval, otherwise the
// default. Unsupported intervals are recovered locally, never surfaced.
func ValidInterval(s string) string {
	if _, ok := validIntervals[s]; ok {
		return s
	}
	return DefaultInterval
}
