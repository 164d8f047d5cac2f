package market

import (
	"math"
	"testing"
	"time"
)

func TestNewQuote_RejectsNonFinitePrice(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := NewQuote("PETR4.SA", price, 0, time.Now()); err == nil {
			t.Fatalf("want error for price %v", price)
		}
	}
}

func TestNewQuote_RejectsNegativePrice(t *testing.T) {
	if _, err := NewQuote("PETR4.SA", -0.01, 0, time.Now()); err == nil {
		t.Fatal("want error for negative price")
	}
}

func TestNewQuote_SanitizesChangeAndTimestamp(t *testing.T) {
	q, err := NewQuote("PETR4.SA", 31.5, math.NaN(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ChangePercent != 0 {
		t.Fatalf("want change 0 for NaN input, got %v", q.ChangePercent)
	}
	if q.ObservedAt.IsZero() {
		t.Fatal("want ObservedAt stamped")
	}
}

func TestRecommendation_Actionable(t *testing.T) {
	cases := map[Recommendation]bool{Buy: true, Sell: true, Hold: false}
	for rec, want := range cases {
		if got := rec.Actionable(); got != want {
			t.Fatalf("%s: actionable = %v, want %v", rec, got, want)
		}
	}
	if Recommendation("PANIC").Valid() {
		t.Fatal("unknown recommendation should not be valid")
	}
}
