// Package stats computes rolling market statistics per asset.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clawdvault-indexer/internal/curve"
	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/lookup"
	"clawdvault-indexer/internal/storage"
)

// statsWindow is the rolling window for volume and count.
const statsWindow = 24 * time.Hour

// MarketStats is one asset's rolling 24h summary.
type MarketStats struct {
	Mint           string
	LastPriceSol   float64
	PriceChange24h float64 // relative, 0.5 means +50%
	VolumeSol24h   float64
	TradeCount24h  int64
	MarketCapSol   float64
}

// Service computes market stats from the trade store, preferring the
// analytics archive for volume scans when one is wired.
type Service struct {
	trades  storage.TradeStore
	assets  storage.AssetStore
	archive storage.TradeArchive // optional
	now     func() time.Time
}

// NewService creates a stats service. The archive may be nil; volume
// and count then fall back to scanning the trade store.
func NewService(trades storage.TradeStore, assets storage.AssetStore, archive storage.TradeArchive) *Service {
	return &Service{
		trades:  trades,
		assets:  assets,
		archive: archive,
		now:     time.Now,
	}
}

// Market computes the rolling 24h stats for a mint.
func (s *Service) Market(ctx context.Context, mint string) (*MarketStats, error) {
	trades, err := s.trades.GetByAsset(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	if len(trades) == 0 {
		return nil, storage.ErrNotFound
	}

	since := s.now().Add(-statsWindow).Unix()

	stats := &MarketStats{
		Mint:         mint,
		LastPriceSol: trades[len(trades)-1].PriceSol,
	}

	change, err := lookup.PriceChange(since, trades)
	if err != nil && !errors.Is(err, lookup.ErrNoPriceData) {
		return nil, err
	}
	stats.PriceChange24h = change

	if err := s.fillVolume(ctx, mint, since, trades, stats); err != nil {
		return nil, err
	}

	if asset, err := s.assets.Get(ctx, mint); err == nil {
		stats.MarketCapSol = curve.MarketCapSol(asset.VirtualSolReserves, asset.VirtualTokenReserves)
	}

	return stats, nil
}

// fillVolume sums 24h volume and count, from the archive when wired,
// otherwise from the already-loaded trades.
func (s *Service) fillVolume(ctx context.Context, mint string, since int64, trades []*domain.Trade, stats *MarketStats) error {
	if s.archive != nil {
		volume, err := s.archive.VolumeSince(ctx, mint, since)
		if err != nil {
			return fmt.Errorf("archive volume: %w", err)
		}
		count, err := s.archive.TradeCountSince(ctx, mint, since)
		if err != nil {
			return fmt.Errorf("archive count: %w", err)
		}
		stats.VolumeSol24h = volume
		stats.TradeCount24h = count
		return nil
	}

	for _, t := range trades {
		if t.Timestamp < since {
			continue
		}
		stats.VolumeSol24h += float64(t.SolAmount) / domain.LamportsPerSol
		stats.TradeCount24h++
	}
	return nil
}
