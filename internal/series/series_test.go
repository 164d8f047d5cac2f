package series

import (
	"errors"
	"math"
	"testing"

	"marketfeed/internal/market"
	"marketfeed/internal/provider"
)

func ptr(f float64) *float64 { return &f }

func payload(ts []int64, closes []*float64) provider.ChartPayload {
	return provider.ChartPayload{Results: []provider.ChartResult{{Timestamps: ts, Closes: closes}}}
}

func TestBuild_DropsGapsAndScalesToMillis(t *testing.T) {
	chart := payload([]int64{1000, 1001, 1002}, []*float64{ptr(10), nil, ptr(12)})

	res, err := Build("PETR4.SA", "1m", "1d", chart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := market.Series{{T: 1000000, Y: 10}, {T: 1002000, Y: 12}}
	if len(res.Items) != len(want) {
		t.Fatalf("want %d items, got %d: %+v", len(want), len(res.Items), res.Items)
	}
	for i := range want {
		if res.Items[i] != want[i] {
			t.Fatalf("item %d: want %+v, got %+v", i, want[i], res.Items[i])
		}
	}
}

func TestBuild_NoResultBlock(t *testing.T) {
	_, err := Build("PETR4.SA", "1m", "1d", provider.ChartPayload{})
	if !errors.Is(err, provider.ErrNoResult) {
		t.Fatalf("want ErrNoResult, got %v", err)
	}
}

func TestBuild_IteratesShorterOfParallelArrays(t *testing.T) {
	// more closes than timestamps
	chart := payload([]int64{1000, 1001}, []*float64{ptr(1), ptr(2), ptr(3)})
	res, err := Build("PETR4.SA", "1m", "1d", chart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("want 2 items, got %d", len(res.Items))
	}

	// more timestamps than closes
	chart = payload([]int64{1000, 1001, 1002}, []*float64{ptr(1)})
	res, err = Build("PETR4.SA", "1m", "1d", chart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("want 1 item, got %d", len(res.Items))
	}
}

func TestBuild_InvalidIntervalSubstituted(t *testing.T) {
	res, err := Build("PETR4.SA", "7m", "1d", payload([]int64{1}, []*float64{ptr(1)}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Interval != "1m" {
		t.Fatalf("want default interval 1m, got %q", res.Interval)
	}
}

func TestBuild_OutOfOrderSurfaced(t *testing.T) {
	chart := payload([]int64{1002, 1000}, []*float64{ptr(1), ptr(2)})
	_, err := Build("PETR4.SA", "1m", "1d", chart)
	if !errors.Is(err, provider.ErrOutOfOrder) {
		t.Fatalf("want ErrOutOfOrder, got %v", err)
	}
}

func TestBuild_NonFiniteClosesDropped(t *testing.T) {
	chart := payload([]int64{1000, 1001, 1002}, []*float64{ptr(math.NaN()), ptr(math.Inf(1)), ptr(3)})
	res, err := Build("PETR4.SA", "1m", "1d", chart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Y != 3 {
		t.Fatalf("want single finite point, got %+v", res.Items)
	}
}

func TestBuild_EmptySeriesIsNotAnError(t *testing.T) {
	res, err := Build("PETR4.SA", "1m", "1d", payload(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 0 {
		t.Fatalf("want empty series, got %+v", res.Items)
	}
}
