package priceoracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clawdvault-indexer/internal/observability"
)

// Cache TTLs. A price older than FreshTTL triggers a refresh; if the
// refresh fails the last value is served until StaleTTL.
const (
	FreshTTL = 60 * time.Second
	StaleTTL = 300 * time.Second
)

// ErrUnavailable is returned when no price newer than StaleTTL exists.
var ErrUnavailable = errors.New("priceoracle: price unavailable")

// Cache wraps a Feed with TTL caching and serve-stale semantics.
type Cache struct {
	feed   Feed
	logger *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewCache creates a price cache. A nil logger falls back to the
// default logrus logger.
func NewCache(feed Feed, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{
		feed:   feed,
		logger: logger,
		now:    time.Now,
	}
}

// SolPrice returns the cached SOL/USD price, refreshing when the cached
// value is older than FreshTTL. On refresh failure a value younger than
// StaleTTL is served; otherwise ErrUnavailable.
func (c *Cache) SolPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	age := now.Sub(c.fetchedAt)

	if c.price > 0 && age < FreshTTL {
		return c.price, nil
	}

	price, err := c.feed.FetchSolPrice(ctx)
	if err == nil {
		c.price = price
		c.fetchedAt = now
		observability.RecordSolPrice(price)
		return price, nil
	}

	observability.DefaultMetrics.OracleFetchErrors.Inc()
	if c.price > 0 && age < StaleTTL {
		c.logger.WithError(err).Warn("Price refresh failed, serving stale value")
		return c.price, nil
	}

	return 0, ErrUnavailable
}
