package hgbrasil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
)

func newTestProvider(t *testing.T, key string, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Key: key, Endpoint: srv.URL}, httpx.New(2*time.Second))
}

func TestQuote_MissingKey(t *testing.T) {
	p := New(Config{}, httpx.New(time.Second))
	if p.Configured() {
		t.Fatal("provider without key should not report configured")
	}
	_, err := p.Quote(t.Context(), "PETR4")
	if err != provider.ErrMissingKey {
		t.Fatalf("want ErrMissingKey, got %v", err)
	}
}

func TestQuote_ParsesKeyedResults(t *testing.T) {
	p := newTestProvider(t, "k", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing key param: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("symbol") != "PETR4" {
			t.Errorf("missing symbol param: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":{"PETR4":{"symbol":"PETR4","price":38.12,"change_percent":0.8}}}`))
	})

	q, err := p.Quote(t.Context(), "PETR4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	price, ok := q.Price()
	if !ok || price != 38.12 {
		t.Fatalf("want price 38.12, got %v (ok=%v)", price, ok)
	}
	if q.ChangePercent() != 0.8 {
		t.Fatalf("want change 0.8, got %v", q.ChangePercent())
	}
}

func TestQuote_CurrentPriceFallback(t *testing.T) {
	p := newTestProvider(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"PETR4":{"symbol":"PETR4","current_price":31.5}}}`))
	})

	q, err := p.Quote(t.Context(), "PETR4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price, ok := q.Price(); !ok || price != 31.5 {
		t.Fatalf("want current_price fallback 31.5, got %v (ok=%v)", price, ok)
	}
}

func TestQuote_NoUsablePrice(t *testing.T) {
	p := newTestProvider(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{}}`))
	})

	_, err := p.Quote(t.Context(), "PETR4")
	if err == nil {
		t.Fatal("want error for empty results")
	}
}
