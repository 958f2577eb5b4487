package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/storage"
)

// AssetStore implements storage.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *Pool
}

// NewAssetStore creates a new AssetStore.
func NewAssetStore(pool *Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AssetStore = (*AssetStore)(nil)

const assetColumns = `
	mint, creator,
	virtual_sol_reserves, virtual_token_reserves,
	real_sol_reserves, real_token_reserves, tokens_sold,
	graduated, last_slot, last_trade_at, updated_at
`

// Upsert inserts or replaces the asset row for a mint.
func (s *AssetStore) Upsert(ctx context.Context, a *domain.Asset) error {
	if a == nil || a.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO assets (
			mint, creator,
			virtual_sol_reserves, virtual_token_reserves,
			real_sol_reserves, real_token_reserves, tokens_sold,
			graduated, last_slot, last_trade_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (mint) DO UPDATE SET
			creator = EXCLUDED.creator,
			virtual_sol_reserves = EXCLUDED.virtual_sol_reserves,
			virtual_token_reserves = EXCLUDED.virtual_token_reserves,
			real_sol_reserves = EXCLUDED.real_sol_reserves,
			real_token_reserves = EXCLUDED.real_token_reserves,
			tokens_sold = EXCLUDED.tokens_sold,
			graduated = EXCLUDED.graduated,
			last_slot = EXCLUDED.last_slot,
			last_trade_at = EXCLUDED.last_trade_at,
			updated_at = (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
	`

	_, err := s.pool.Exec(ctx, query,
		a.Mint,
		a.Creator,
		int64(a.VirtualSolReserves),
		int64(a.VirtualTokenReserves),
		int64(a.RealSolReserves),
		int64(a.RealTokenReserves),
		int64(a.TokensSold),
		a.Graduated,
		a.LastSlot,
		a.LastTradeAt,
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// Get retrieves an asset by mint. Returns ErrNotFound if not exists.
func (s *AssetStore) Get(ctx context.Context, mint string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE mint = $1`

	a, err := scanAsset(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// List retrieves all assets, ordered by mint.
func (s *AssetStore) List(ctx context.Context) ([]*domain.Asset, error) {
	return s.list(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY mint`)
}

// ListActive retrieves assets that have not graduated, ordered by mint.
func (s *AssetStore) ListActive(ctx context.Context) ([]*domain.Asset, error) {
	return s.list(ctx, `SELECT `+assetColumns+` FROM assets WHERE NOT graduated ORDER BY mint`)
}

func (s *AssetStore) list(ctx context.Context, query string) ([]*domain.Asset, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset rows: %w", err)
	}

	return assets, nil
}

// scanAsset scans a single row into an Asset.
func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	var vSol, vTok, realSol, realTok, sold int64

	err := row.Scan(
		&a.Mint,
		&a.Creator,
		&vSol,
		&vTok,
		&realSol,
		&realTok,
		&sold,
		&a.Graduated,
		&a.LastSlot,
		&a.LastTradeAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.VirtualSolReserves = uint64(vSol)
	a.VirtualTokenReserves = uint64(vTok)
	a.RealSolReserves = uint64(realSol)
	a.RealTokenReserves = uint64(realTok)
	a.TokensSold = uint64(sold)
	return &a, nil
}
