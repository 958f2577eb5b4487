package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.Mutex
	data map[string]*domain.Candle // keyed by composite key
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// candleKey generates a unique key for a candle bucket.
func candleKey(mint string, intervalSeconds, bucketTime int64) string {
	return fmt.Sprintf("%s|%d|%d", mint, intervalSeconds, bucketTime)
}

// Update atomically applies fn to the candle for the given bucket. The
// store lock is held across the read-modify-write.
func (s *CandleStore) Update(_ context.Context, mint string, intervalSeconds, bucketTime int64, fn storage.CandleUpdateFunc) error {
	if mint == "" || intervalSeconds <= 0 {
		return storage.ErrInvalidInput
	}

	key := candleKey(mint, intervalSeconds, bucketTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *domain.Candle
	if c, ok := s.data[key]; ok {
		copy := *c
		existing = &copy
	}

	updated, err := fn(existing)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	copy := *updated
	copy.AssetID = mint
	copy.IntervalSeconds = intervalSeconds
	copy.BucketTime = bucketTime
	s.data[key] = &copy
	return nil
}

// Get retrieves one candle. Returns ErrNotFound if not exists.
func (s *CandleStore) Get(_ context.Context, mint string, intervalSeconds, bucketTime int64) (*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[candleKey(mint, intervalSeconds, bucketTime)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *c
	return &copy, nil
}

// GetLatest retrieves the most recent candle for a mint and interval.
// Returns ErrNotFound if none.
func (s *CandleStore) GetLatest(_ context.Context, mint string, intervalSeconds int64) (*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.Candle
	for _, c := range s.data {
		if c.AssetID != mint || c.IntervalSeconds != intervalSeconds {
			continue
		}
		if latest == nil || c.BucketTime > latest.BucketTime {
			latest = c
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// GetRange retrieves candles within [start, end] bucket times (inclusive),
// ordered by bucket time ASC.
func (s *CandleStore) GetRange(_ context.Context, mint string, intervalSeconds, start, end int64) ([]*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.AssetID == mint && c.IntervalSeconds == intervalSeconds &&
			c.BucketTime >= start && c.BucketTime <= end {
			copy := *c
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketTime < result[j].BucketTime
	})

	return result, nil
}

// DeleteByAsset removes every candle for a mint across all intervals.
func (s *CandleStore) DeleteByAsset(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.data {
		if c.AssetID == mint {
			delete(s.data, key)
		}
	}

	return nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
