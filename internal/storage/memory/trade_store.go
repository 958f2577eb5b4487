package memory

import (
	"context"
	"sort"
	"sync"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by signature
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if the signature exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.Signature == "" || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.Signature] = &copy
	return nil
}

// Exists reports whether a trade with the given signature is stored.
func (s *TradeStore) Exists(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[signature]
	return exists, nil
}

// GetBySignature retrieves a trade by signature. Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(_ context.Context, signature string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByAsset retrieves all trades for a mint, ordered by timestamp ASC.
func (s *TradeStore) GetByAsset(_ context.Context, mint string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Mint == mint {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}

// GetLatestByAsset retrieves the most recent trade for a mint. Returns ErrNotFound if none.
func (s *TradeStore) GetLatestByAsset(_ context.Context, mint string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Trade
	for _, t := range s.data {
		if t.Mint != mint {
			continue
		}
		if latest == nil || t.Timestamp > latest.Timestamp ||
			(t.Timestamp == latest.Timestamp && t.Slot > latest.Slot) {
			latest = t
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// ListAssetIDs retrieves the distinct mints that have at least one trade.
func (s *TradeStore) ListAssetIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, t := range s.data {
		seen[t.Mint] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for mint := range seen {
		result = append(result, mint)
	}
	sort.Strings(result)

	return result, nil
}

// CountByAsset returns the number of stored trades for a mint.
func (s *TradeStore) CountByAsset(_ context.Context, mint string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.data {
		if t.Mint == mint {
			n++
		}
	}

	return n, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
