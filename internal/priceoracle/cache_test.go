package priceoracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeFeed returns scripted prices and errors, counting calls.
type fakeFeed struct {
	price float64
	err   error
	calls int
}

func (f *fakeFeed) FetchSolPrice(_ context.Context) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func newTestCache(feed Feed, start time.Time) (*Cache, *time.Time) {
	now := start
	cache := NewCache(feed, nil)
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestCache_Fresh(t *testing.T) {
	feed := &fakeFeed{price: 150.0}
	cache, now := newTestCache(feed, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	price, err := cache.SolPrice(ctx)
	if err != nil {
		t.Fatalf("SolPrice: %v", err)
	}
	if price != 150.0 {
		t.Errorf("expected 150.0, got %f", price)
	}

	// Within the fresh TTL no refresh happens
	*now = now.Add(30 * time.Second)
	feed.price = 200.0

	price, err = cache.SolPrice(ctx)
	if err != nil {
		t.Fatalf("SolPrice: %v", err)
	}
	if price != 150.0 {
		t.Errorf("expected cached 150.0, got %f", price)
	}
	if feed.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", feed.calls)
	}
}

func TestCache_RefreshAfterTTL(t *testing.T) {
	feed := &fakeFeed{price: 150.0}
	cache, now := newTestCache(feed, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	if _, err := cache.SolPrice(ctx); err != nil {
		t.Fatalf("SolPrice: %v", err)
	}

	*now = now.Add(FreshTTL + time.Second)
	feed.price = 200.0

	price, err := cache.SolPrice(ctx)
	if err != nil {
		t.Fatalf("SolPrice: %v", err)
	}
	if price != 200.0 {
		t.Errorf("expected refreshed 200.0, got %f", price)
	}
	if feed.calls != 2 {
		t.Errorf("expected 2 fetches, got %d", feed.calls)
	}
}

func TestCache_ServeStale(t *testing.T) {
	feed := &fakeFeed{price: 150.0}
	cache, now := newTestCache(feed, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	if _, err := cache.SolPrice(ctx); err != nil {
		t.Fatalf("SolPrice: %v", err)
	}

	// Feed goes down; within the stale window the old value survives
	feed.err = errors.New("feed down")
	*now = now.Add(2 * time.Minute)

	price, err := cache.SolPrice(ctx)
	if err != nil {
		t.Fatalf("SolPrice: %v", err)
	}
	if price != 150.0 {
		t.Errorf("expected stale 150.0, got %f", price)
	}
}

func TestCache_Unavailable(t *testing.T) {
	feed := &fakeFeed{price: 150.0}
	cache, now := newTestCache(feed, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	if _, err := cache.SolPrice(ctx); err != nil {
		t.Fatalf("SolPrice: %v", err)
	}

	feed.err = errors.New("feed down")
	*now = now.Add(StaleTTL + time.Second)

	if _, err := cache.SolPrice(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCache_NoInitialPrice(t *testing.T) {
	feed := &fakeFeed{err: errors.New("feed down")}
	cache, _ := newTestCache(feed, time.Unix(1_700_000_000, 0))

	if _, err := cache.SolPrice(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPFeed_FetchSolPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solana":{"usd":142.37}}`))
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	price, err := feed.FetchSolPrice(context.Background())
	if err != nil {
		t.Fatalf("FetchSolPrice: %v", err)
	}
	if price != 142.37 {
		t.Errorf("expected 142.37, got %f", price)
	}
}

func TestHTTPFeed_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	if _, err := feed.FetchSolPrice(context.Background()); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestHTTPFeed_ZeroPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solana":{"usd":0}}`))
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL)
	if _, err := feed.FetchSolPrice(context.Background()); err == nil {
		t.Error("expected error for zero price")
	}
}
