package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, signature, mint, trader, side,
	sol_amount, token_amount, protocol_fee, creator_fee,
	virtual_sol_reserves, virtual_token_reserves,
	price_sol, sol_price_usd, slot, timestamp, created_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if the signature exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.Signature == "" || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			signature, mint, trader, side,
			sol_amount, token_amount, protocol_fee, creator_fee,
			virtual_sol_reserves, virtual_token_reserves,
			price_sol, sol_price_usd, slot, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Signature,
		t.Mint,
		t.Trader,
		t.Side,
		int64(t.SolAmount),
		int64(t.TokenAmount),
		int64(t.ProtocolFee),
		int64(t.CreatorFee),
		int64(t.VirtualSolReserves),
		int64(t.VirtualTokenReserves),
		t.PriceSol,
		t.SolPriceUsd,
		t.Slot,
		t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Exists reports whether a trade with the given signature is stored.
func (s *TradeStore) Exists(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM trades WHERE signature = $1)`, signature,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trade exists: %w", err)
	}
	return exists, nil
}

// GetBySignature retrieves a trade by signature. Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE signature = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by signature: %w", err)
	}
	return t, nil
}

// GetByAsset retrieves all trades for a mint, ordered by timestamp ASC.
func (s *TradeStore) GetByAsset(ctx context.Context, mint string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE mint = $1
		ORDER BY timestamp ASC, slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get trades by asset: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetLatestByAsset retrieves the most recent trade for a mint. Returns ErrNotFound if none.
func (s *TradeStore) GetLatestByAsset(ctx context.Context, mint string) (*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE mint = $1
		ORDER BY timestamp DESC, slot DESC, id DESC
		LIMIT 1
	`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest trade: %w", err)
	}
	return t, nil
}

// ListAssetIDs retrieves the distinct mints that have at least one trade.
func (s *TradeStore) ListAssetIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT mint FROM trades ORDER BY mint`)
	if err != nil {
		return nil, fmt.Errorf("list asset ids: %w", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var mint string
		if err := rows.Scan(&mint); err != nil {
			return nil, fmt.Errorf("scan mint row: %w", err)
		}
		mints = append(mints, mint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mint rows: %w", err)
	}

	return mints, nil
}

// CountByAsset returns the number of stored trades for a mint.
func (s *TradeStore) CountByAsset(ctx context.Context, mint string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE mint = $1`, mint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var solAmount, tokenAmount, protocolFee, creatorFee, vSol, vTok int64

	err := row.Scan(
		&t.ID,
		&t.Signature,
		&t.Mint,
		&t.Trader,
		&t.Side,
		&solAmount,
		&tokenAmount,
		&protocolFee,
		&creatorFee,
		&vSol,
		&vTok,
		&t.PriceSol,
		&t.SolPriceUsd,
		&t.Slot,
		&t.Timestamp,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.SolAmount = uint64(solAmount)
	t.TokenAmount = uint64(tokenAmount)
	t.ProtocolFee = uint64(protocolFee)
	t.CreatorFee = uint64(creatorFee)
	t.VirtualSolReserves = uint64(vSol)
	t.VirtualTokenReserves = uint64(vTok)
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
