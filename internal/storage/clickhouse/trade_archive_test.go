package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

func testTrade(sig string, ts int64, solAmount uint64) *domain.Trade {
	return &domain.Trade{
		Signature:   sig,
		Mint:        "mint1",
		Trader:      "trader1",
		Side:        domain.TradeSideBuy,
		SolAmount:   solAmount,
		TokenAmount: 1_000_000_000,
		PriceSol:    0.0001,
		SolPriceUsd: 150.0,
		Slot:        100,
		Timestamp:   ts,
	}
}

func TestTradeArchive_InsertBulkAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewTradeArchive(conn)
	ctx := context.Background()

	trades := []*domain.Trade{
		testTrade("sig1", 1_700_000_000, 1_000_000_000),
		testTrade("sig2", 1_700_000_100, 2_000_000_000),
		testTrade("sig3", 1_600_000_000, 5_000_000_000), // old, outside window
	}

	require.NoError(t, archive.InsertBulk(ctx, trades))

	volume, err := archive.VolumeSince(ctx, "mint1", 1_700_000_000)
	require.NoError(t, err)
	require.InDelta(t, 3.0, volume, 1e-9)

	count, err := archive.TradeCountSince(ctx, "mint1", 1_700_000_000)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestTradeArchive_EmptyBatch(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewTradeArchive(conn)
	require.NoError(t, archive.InsertBulk(context.Background(), nil))
}

func TestTradeArchive_InvalidTrade(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewTradeArchive(conn)
	err := archive.InsertBulk(context.Background(), []*domain.Trade{{Signature: ""}})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTradeArchive_UnknownMint(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewTradeArchive(conn)
	ctx := context.Background()

	volume, err := archive.VolumeSince(ctx, "missing", 0)
	require.NoError(t, err)
	require.Zero(t, volume)

	count, err := archive.TradeCountSince(ctx, "missing", 0)
	require.NoError(t, err)
	require.Zero(t, count)
}
