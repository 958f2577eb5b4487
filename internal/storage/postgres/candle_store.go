package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const candleColumns = `
	asset_id, interval_seconds, bucket_time,
	open_sol, high_sol, low_sol, close_sol,
	open_usd, high_usd, low_usd, close_usd,
	volume_sol, volume_usd, trade_count, sol_price_usd
`

// Update atomically applies fn to the candle for the given bucket.
// Concurrent writers serialize on a transaction-scoped advisory lock
// keyed by the bucket; a row lock alone cannot cover the first write,
// since FOR UPDATE on a missing row locks nothing and two creators
// would both fold from nil.
func (s *CandleStore) Update(ctx context.Context, mint string, intervalSeconds, bucketTime int64, fn storage.CandleUpdateFunc) error {
	if mint == "" || intervalSeconds <= 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := fmt.Sprintf("%s:%d:%d", mint, intervalSeconds, bucketTime)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("lock candle bucket: %w", err)
	}

	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE asset_id = $1 AND interval_seconds = $2 AND bucket_time = $3
	`

	existing, err := scanCandle(tx.QueryRow(ctx, query, mint, intervalSeconds, bucketTime))
	if err != nil {
		if !isNotFoundError(err) {
			return fmt.Errorf("select candle for update: %w", err)
		}
		existing = nil
	}

	updated, err := fn(existing)
	if err != nil {
		return err
	}
	if updated == nil {
		return tx.Commit(ctx)
	}

	upsert := `
		INSERT INTO candles (` + candleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (asset_id, interval_seconds, bucket_time) DO UPDATE SET
			open_sol = EXCLUDED.open_sol,
			high_sol = EXCLUDED.high_sol,
			low_sol = EXCLUDED.low_sol,
			close_sol = EXCLUDED.close_sol,
			open_usd = EXCLUDED.open_usd,
			high_usd = EXCLUDED.high_usd,
			low_usd = EXCLUDED.low_usd,
			close_usd = EXCLUDED.close_usd,
			volume_sol = EXCLUDED.volume_sol,
			volume_usd = EXCLUDED.volume_usd,
			trade_count = EXCLUDED.trade_count,
			sol_price_usd = EXCLUDED.sol_price_usd
	`

	_, err = tx.Exec(ctx, upsert,
		mint,
		intervalSeconds,
		bucketTime,
		updated.OpenSol,
		updated.HighSol,
		updated.LowSol,
		updated.CloseSol,
		updated.OpenUsd,
		updated.HighUsd,
		updated.LowUsd,
		updated.CloseUsd,
		updated.VolumeSol,
		updated.VolumeUsd,
		updated.TradeCount,
		updated.SolPriceUsd,
	)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves one candle. Returns ErrNotFound if not exists.
func (s *CandleStore) Get(ctx context.Context, mint string, intervalSeconds, bucketTime int64) (*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE asset_id = $1 AND interval_seconds = $2 AND bucket_time = $3
	`

	c, err := scanCandle(s.pool.QueryRow(ctx, query, mint, intervalSeconds, bucketTime))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get candle: %w", err)
	}
	return c, nil
}

// GetLatest retrieves the most recent candle for a mint and interval.
// Returns ErrNotFound if none.
func (s *CandleStore) GetLatest(ctx context.Context, mint string, intervalSeconds int64) (*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE asset_id = $1 AND interval_seconds = $2
		ORDER BY bucket_time DESC
		LIMIT 1
	`

	c, err := scanCandle(s.pool.QueryRow(ctx, query, mint, intervalSeconds))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest candle: %w", err)
	}
	return c, nil
}

// GetRange retrieves candles within [start, end] bucket times (inclusive),
// ordered by bucket time ASC.
func (s *CandleStore) GetRange(ctx context.Context, mint string, intervalSeconds, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE asset_id = $1 AND interval_seconds = $2 AND bucket_time >= $3 AND bucket_time <= $4
		ORDER BY bucket_time ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, intervalSeconds, start, end)
	if err != nil {
		return nil, fmt.Errorf("get candle range: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}

// DeleteByAsset removes every candle for a mint across all intervals.
func (s *CandleStore) DeleteByAsset(ctx context.Context, mint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM candles WHERE asset_id = $1`, mint)
	if err != nil {
		return fmt.Errorf("delete candles: %w", err)
	}
	return nil
}

// scanCandle scans a single row into a Candle.
func scanCandle(row pgx.Row) (*domain.Candle, error) {
	var c domain.Candle

	err := row.Scan(
		&c.AssetID,
		&c.IntervalSeconds,
		&c.BucketTime,
		&c.OpenSol,
		&c.HighSol,
		&c.LowSol,
		&c.CloseSol,
		&c.OpenUsd,
		&c.HighUsd,
		&c.LowUsd,
		&c.CloseUsd,
		&c.VolumeSol,
		&c.VolumeUsd,
		&c.TradeCount,
		&c.SolPriceUsd,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
