package storage

import (
	"context"

	"clawdvault-indexer/internal/domain"
)

// TradeStore provides access to trades storage. Trades are append-only
// and unique by transaction signature.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Exists reports whether a trade with the given signature is stored.
	Exists(ctx context.Context, signature string) (bool, error)

	// GetBySignature retrieves a trade by signature. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Trade, error)

	// GetByAsset retrieves all trades for a mint, ordered by timestamp ASC.
	GetByAsset(ctx context.Context, mint string) ([]*domain.Trade, error)

	// GetLatestByAsset retrieves the most recent trade for a mint. Returns ErrNotFound if none.
	GetLatestByAsset(ctx context.Context, mint string) (*domain.Trade, error)

	// ListAssetIDs retrieves the distinct mints that have at least one trade.
	ListAssetIDs(ctx context.Context) ([]string, error)

	// CountByAsset returns the number of stored trades for a mint.
	CountByAsset(ctx context.Context, mint string) (int64, error)
}

// CandleUpdateFunc folds a change into a candle. It receives nil when no
// candle exists for the bucket yet and returns the candle to persist.
type CandleUpdateFunc func(existing *domain.Candle) (*domain.Candle, error)

// CandleStore provides access to candles storage. Candles are mutable
// within their bucket; all writes go through Update so read-modify-write
// is atomic per (mint, interval, bucket).
type CandleStore interface {
	// Update atomically applies fn to the candle for the given bucket.
	Update(ctx context.Context, mint string, intervalSeconds, bucketTime int64, fn CandleUpdateFunc) error

	// Get retrieves one candle. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint string, intervalSeconds, bucketTime int64) (*domain.Candle, error)

	// GetLatest retrieves the most recent candle for a mint and interval.
	// Returns ErrNotFound if none.
	GetLatest(ctx context.Context, mint string, intervalSeconds int64) (*domain.Candle, error)

	// GetRange retrieves candles within [start, end] bucket times (inclusive),
	// ordered by bucket time ASC.
	GetRange(ctx context.Context, mint string, intervalSeconds, start, end int64) ([]*domain.Candle, error)

	// DeleteByAsset removes every candle for a mint across all intervals.
	DeleteByAsset(ctx context.Context, mint string) error
}

// AssetStore provides access to assets storage, the local mirror of
// bonding-curve state.
type AssetStore interface {
	// Upsert inserts or replaces the asset row for a mint.
	Upsert(ctx context.Context, a *domain.Asset) error

	// Get retrieves an asset by mint. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint string) (*domain.Asset, error)

	// List retrieves all assets.
	List(ctx context.Context) ([]*domain.Asset, error)

	// ListActive retrieves assets that have not graduated.
	ListActive(ctx context.Context) ([]*domain.Asset, error)
}

// TradeArchive is the append-only analytics copy of trades, backed by
// ClickHouse. Writes are best-effort; PostgreSQL remains the source of
// truth.
type TradeArchive interface {
	// InsertBulk appends a batch of trades.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// VolumeSince returns the SOL volume for a mint since the given time.
	VolumeSince(ctx context.Context, mint string, since int64) (float64, error)

	// TradeCountSince returns the trade count for a mint since the given time.
	TradeCountSince(ctx context.Context, mint string, since int64) (int64, error)
}
