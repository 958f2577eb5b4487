package memory

import (
	"context"
	"sort"
	"sync"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// AssetStore is an in-memory implementation of storage.AssetStore.
type AssetStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Asset // keyed by mint
}

// NewAssetStore creates a new in-memory asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{
		data: make(map[string]*domain.Asset),
	}
}

// Upsert inserts or replaces the asset row for a mint.
func (s *AssetStore) Upsert(_ context.Context, a *domain.Asset) error {
	if a == nil || a.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *a
	s.data[a.Mint] = &copy
	return nil
}

// Get retrieves an asset by mint. Returns ErrNotFound if not exists.
func (s *AssetStore) Get(_ context.Context, mint string) (*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// List retrieves all assets, ordered by mint.
func (s *AssetStore) List(_ context.Context) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Asset, 0, len(s.data))
	for _, a := range s.data {
		copy := *a
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})

	return result, nil
}

// ListActive retrieves assets that have not graduated, ordered by mint.
func (s *AssetStore) ListActive(_ context.Context) ([]*domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Asset
	for _, a := range s.data {
		if a.Graduated {
			continue
		}
		copy := *a
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Mint < result[j].Mint
	})

	return result, nil
}

var _ storage.AssetStore = (*AssetStore)(nil)
