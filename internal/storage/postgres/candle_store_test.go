package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

func seedCandle(t *testing.T, ctx context.Context, store *CandleStore, mint string, interval, bucket int64, close float64) {
	t.Helper()

	err := store.Update(ctx, mint, interval, bucket, func(existing *domain.Candle) (*domain.Candle, error) {
		require.Nil(t, existing)
		return &domain.Candle{
			AssetID:         mint,
			IntervalSeconds: interval,
			BucketTime:      bucket,
			OpenSol:         close,
			HighSol:         close,
			LowSol:          close,
			CloseSol:        close,
			VolumeSol:       1.0,
			TradeCount:      1,
			SolPriceUsd:     150.0,
		}, nil
	})
	require.NoError(t, err)
}

func TestCandleStore_UpdateInsertAndFold(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_040, 0.0001)

	// Second update folds into the existing row
	err := store.Update(ctx, "Mint1", 60, 1_700_000_040, func(existing *domain.Candle) (*domain.Candle, error) {
		require.NotNil(t, existing)
		existing.HighSol = 0.0002
		existing.CloseSol = 0.0002
		existing.VolumeSol += 2.0
		existing.TradeCount++
		return existing, nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "Mint1", 60, 1_700_000_040)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, got.OpenSol, 1e-12)
	assert.InDelta(t, 0.0002, got.HighSol, 1e-12)
	assert.InDelta(t, 0.0002, got.CloseSol, 1e-12)
	assert.InDelta(t, 3.0, got.VolumeSol, 1e-9)
	assert.Equal(t, 2, got.TradeCount)
}

func TestCandleStore_UpdateNoOp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	// fn returning nil writes nothing
	err := store.Update(ctx, "Mint1", 60, 1_700_000_040, func(existing *domain.Candle) (*domain.Candle, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = store.Get(ctx, "Mint1", 60, 1_700_000_040)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandleStore_UpdateFoldErrorAborts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_040, 0.0001)

	foldErr := errors.New("fold failed")
	err := store.Update(ctx, "Mint1", 60, 1_700_000_040, func(existing *domain.Candle) (*domain.Candle, error) {
		return nil, foldErr
	})
	assert.ErrorIs(t, err, foldErr)

	// Row unchanged
	got, err := store.Get(ctx, "Mint1", 60, 1_700_000_040)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TradeCount)
}

func TestCandleStore_UpdateConcurrentBucketCreation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	// All writers race on a bucket that does not exist yet. Without
	// per-bucket serialization two of them fold from nil and one fold
	// is lost.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Update(ctx, "Mint1", 60, 1_700_000_040, func(existing *domain.Candle) (*domain.Candle, error) {
				if existing == nil {
					return &domain.Candle{
						AssetID:         "Mint1",
						IntervalSeconds: 60,
						BucketTime:      1_700_000_040,
						OpenSol:         0.0001,
						HighSol:         0.0001,
						LowSol:          0.0001,
						CloseSol:        0.0001,
						VolumeSol:       1.0,
						TradeCount:      1,
					}, nil
				}
				existing.VolumeSol += 1.0
				existing.TradeCount++
				return existing, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "Mint1", 60, 1_700_000_040)
	require.NoError(t, err)
	assert.Equal(t, writers, got.TradeCount)
	assert.InDelta(t, float64(writers), got.VolumeSol, 1e-9)
}

func TestCandleStore_GetLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	_, err := store.GetLatest(ctx, "Mint1", 60)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_040, 0.0001)
	seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_100, 0.0002)
	seedCandle(t, ctx, store, "Mint1", 300, 1_700_000_100, 0.0003)

	latest, err := store.GetLatest(ctx, "Mint1", 60)
	require.NoError(t, err)
	assert.EqualValues(t, 1_700_000_100, latest.BucketTime)
	assert.InDelta(t, 0.0002, latest.CloseSol, 1e-12)
}

func TestCandleStore_GetRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	for i := int64(0); i < 5; i++ {
		seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_040+i*60, 0.0001)
	}

	candles, err := store.GetRange(ctx, "Mint1", 60, 1_700_000_100, 1_700_000_220)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.EqualValues(t, 1_700_000_100, candles[0].BucketTime)
	assert.EqualValues(t, 1_700_000_220, candles[2].BucketTime)
}

func TestCandleStore_DeleteByAsset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCandleStore(pool)

	seedCandle(t, ctx, store, "Mint1", 60, 1_700_000_040, 0.0001)
	seedCandle(t, ctx, store, "Mint1", 300, 1_700_000_100, 0.0002)
	seedCandle(t, ctx, store, "Mint2", 60, 1_700_000_040, 0.0003)

	require.NoError(t, store.DeleteByAsset(ctx, "Mint1"))

	_, err := store.Get(ctx, "Mint1", 60, 1_700_000_040)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Other assets untouched
	_, err = store.Get(ctx, "Mint2", 60, 1_700_000_040)
	assert.NoError(t, err)
}
