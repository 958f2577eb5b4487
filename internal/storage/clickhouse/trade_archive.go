package clickhouse

import (
	"context"
	"fmt"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// TradeArchive implements storage.TradeArchive using ClickHouse. It is
// the analytics copy of the trade log; the ReplacingMergeTree engine
// absorbs double writes from live/poll overlap.
type TradeArchive struct {
	conn *Conn
}

// NewTradeArchive creates a new TradeArchive.
func NewTradeArchive(conn *Conn) *TradeArchive {
	return &TradeArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// InsertBulk appends a batch of trades.
func (s *TradeArchive) InsertBulk(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			signature, mint, trader, side,
			sol_amount, token_amount, price_sol, sol_price_usd,
			slot, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		if t == nil || t.Signature == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			t.Signature, t.Mint, t.Trader, t.Side,
			t.SolAmount, t.TokenAmount, t.PriceSol, t.SolPriceUsd,
			t.Slot, t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// VolumeSince returns the SOL volume for a mint since the given time.
func (s *TradeArchive) VolumeSince(ctx context.Context, mint string, since int64) (float64, error) {
	query := `
		SELECT sum(sol_amount) FROM trade_history FINAL
		WHERE mint = ? AND timestamp >= ?
	`

	var lamports uint64
	if err := s.conn.QueryRow(ctx, query, mint, since).Scan(&lamports); err != nil {
		return 0, fmt.Errorf("query volume: %w", err)
	}
	return float64(lamports) / domain.LamportsPerSol, nil
}

// TradeCountSince returns the trade count for a mint since the given time.
func (s *TradeArchive) TradeCountSince(ctx context.Context, mint string, since int64) (int64, error) {
	query := `
		SELECT count(*) FROM trade_history FINAL
		WHERE mint = ? AND timestamp >= ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, mint, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("query trade count: %w", err)
	}
	return int64(count), nil
}
