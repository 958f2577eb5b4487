// Package priceoracle provides the SOL/USD price used to denominate
// trades and candles in USD.
package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Feed fetches the current SOL/USD price.
type Feed interface {
	FetchSolPrice(ctx context.Context) (float64, error)
}

// DefaultFeedURL is a CoinGecko-compatible simple price endpoint.
const DefaultFeedURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"

// HTTPFeed fetches SOL/USD from a simple-price JSON endpoint.
type HTTPFeed struct {
	url    string
	client *http.Client
}

// Compile-time interface check.
var _ Feed = (*HTTPFeed)(nil)

// NewHTTPFeed creates a feed against the given endpoint. An empty URL
// uses DefaultFeedURL.
func NewHTTPFeed(url string) *HTTPFeed {
	if url == "" {
		url = DefaultFeedURL
	}
	return &HTTPFeed{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchSolPrice fetches the current SOL/USD price.
func (f *HTTPFeed) FetchSolPrice(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	if body.Solana.USD <= 0 {
		return 0, fmt.Errorf("invalid price %f", body.Solana.USD)
	}

	return body.Solana.USD, nil
}
