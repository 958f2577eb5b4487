// Package ingestion reconciles on-chain bonding curve trades into local
// storage, by polling transaction history and by consuming live log
// subscriptions.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"clawdvault-indexer/internal/curve"
	"clawdvault-indexer/internal/curvestate"
	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/events"
	"clawdvault-indexer/internal/solana"
	"clawdvault-indexer/internal/storage"
)

// SolPricer supplies the SOL/USD snapshot stamped onto synced trades.
type SolPricer interface {
	SolPrice(ctx context.Context) (float64, error)
}

// Options wires a Synchronizer. RPC, Decoder, Trades, Assets, and
// ProgramID are required; the rest are optional.
type Options struct {
	RPC       solana.RPCClient
	Decoder   *events.Decoder
	Trades    storage.TradeStore
	Assets    storage.AssetStore
	Archive   storage.TradeArchive // best-effort analytics copy
	Pricer    SolPricer            // SOL/USD snapshot, 0 when absent
	Curve     *curvestate.Reader   // authoritative reserve refresh
	ProgramID string
	Logger    *logrus.Logger
}

// Synchronizer reconciles program transaction history into the trade
// store. Runs are idempotent: trades are unique by signature.
type Synchronizer struct {
	opts Options
}

// NewSynchronizer creates a synchronizer. A nil logger falls back to
// the default logrus logger.
func NewSynchronizer(opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Synchronizer{opts: opts}
}

// SyncOptions control one reconciliation run.
type SyncOptions struct {
	// Limit caps how many signatures are fetched.
	Limit int
	// Mint restricts the run to one token when non-empty.
	Mint string
}

// SyncResult summarizes one reconciliation run. SyncedTrades carries
// the newly stored trades so callers can feed them to the candle
// aggregator.
type SyncResult struct {
	Inspected      int
	Synced         int
	AlreadyPresent int
	NoEvent        int
	Failed         int
	Duration       time.Duration
	SyncedTrades   []*domain.Trade
}

// Run fetches recent program signatures and stores every trade event
// not yet present. Per-signature failures are counted, not fatal; only
// the initial signature listing can abort the run.
func (s *Synchronizer) Run(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	start := time.Now()
	log := s.opts.Logger

	sigs, err := s.opts.RPC.GetSignaturesForAddress(ctx, s.opts.ProgramID, &solana.SignaturesOpts{
		Limit: opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}

	result := &SyncResult{}
	// latest event per mint, used to refresh asset mirrors after the loop
	latestEvents := make(map[string]*mintUpdate)

	for _, sig := range sigs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Inspected++

		if sig.Err != nil {
			continue
		}

		exists, err := s.opts.Trades.Exists(ctx, sig.Signature)
		if err != nil {
			result.Failed++
			log.WithError(err).WithField("signature", sig.Signature).Warn("Existence check failed")
			continue
		}
		if exists {
			result.AlreadyPresent++
			continue
		}

		trade, ok := s.fetchTrade(ctx, sig.Signature, result)
		if !ok {
			continue
		}
		if opts.Mint != "" && trade.Mint != opts.Mint {
			continue
		}

		if err := s.opts.Trades.Insert(ctx, trade); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				result.AlreadyPresent++
				continue
			}
			result.Failed++
			log.WithError(err).WithField("signature", trade.Signature).Warn("Trade insert failed")
			continue
		}

		result.Synced++
		result.SyncedTrades = append(result.SyncedTrades, trade)

		prev, seen := latestEvents[trade.Mint]
		if !seen || trade.Timestamp > prev.trade.Timestamp {
			latestEvents[trade.Mint] = &mintUpdate{trade: trade}
		}
	}

	for mint, update := range latestEvents {
		if err := s.refreshAsset(ctx, mint, update.trade); err != nil {
			log.WithError(err).WithField("mint", mint).Warn("Asset mirror refresh failed")
		}
	}

	s.archive(ctx, result.SyncedTrades)

	result.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"inspected": result.Inspected,
		"synced":    result.Synced,
		"present":   result.AlreadyPresent,
		"no_event":  result.NoEvent,
		"failed":    result.Failed,
		"duration":  result.Duration,
	}).Info("Sync run complete")

	return result, nil
}

type mintUpdate struct {
	trade *domain.Trade
}

// fetchTrade loads one transaction and decodes its trade event, bumping
// the result counters on the way out.
func (s *Synchronizer) fetchTrade(ctx context.Context, signature string, result *SyncResult) (*domain.Trade, bool) {
	log := s.opts.Logger

	tx, err := s.opts.RPC.GetTransaction(ctx, signature)
	if err != nil {
		result.Failed++
		log.WithError(err).WithField("signature", signature).Warn("Transaction fetch failed")
		return nil, false
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		result.NoEvent++
		return nil, false
	}

	ev, ok := s.opts.Decoder.Decode(tx.Meta.LogMessages)
	if !ok {
		result.NoEvent++
		return nil, false
	}

	return s.buildTrade(ctx, signature, tx, ev), true
}

// buildTrade converts a decoded event into a storable trade row.
func (s *Synchronizer) buildTrade(ctx context.Context, signature string, tx *solana.Transaction, ev *events.TradeEvent) *domain.Trade {
	side := domain.TradeSideSell
	if ev.IsBuy {
		side = domain.TradeSideBuy
	}

	timestamp := ev.Timestamp
	if timestamp == 0 {
		timestamp = tx.BlockTime
	}

	var solUsd float64
	if s.opts.Pricer != nil {
		if price, err := s.opts.Pricer.SolPrice(ctx); err == nil {
			solUsd = price
		}
	}

	return &domain.Trade{
		Signature:            signature,
		Mint:                 ev.Mint,
		Trader:               ev.Trader,
		Side:                 side,
		SolAmount:            ev.SolAmount,
		TokenAmount:          ev.TokenAmount,
		ProtocolFee:          ev.ProtocolFee,
		CreatorFee:           ev.CreatorFee,
		VirtualSolReserves:   ev.VirtualSolReserves,
		VirtualTokenReserves: ev.VirtualTokenReserves,
		PriceSol:             domain.PriceSolPerToken(ev.SolAmount, ev.TokenAmount),
		SolPriceUsd:          solUsd,
		Slot:                 tx.Slot,
		Timestamp:            timestamp,
		CreatedAt:            time.Now().UnixMilli(),
	}
}

// refreshAsset updates the local curve mirror for a mint. Event
// reserves give a serviceable approximation; when a curve reader is
// wired the on-chain account wins.
func (s *Synchronizer) refreshAsset(ctx context.Context, mint string, latest *domain.Trade) error {
	asset := &domain.Asset{
		Mint:                 mint,
		VirtualSolReserves:   latest.VirtualSolReserves,
		VirtualTokenReserves: latest.VirtualTokenReserves,
		LastSlot:             latest.Slot,
		LastTradeAt:          latest.Timestamp,
	}

	// Virtual reserves start at the initial allocation, so real SOL is
	// the growth above it.
	if latest.VirtualSolReserves > curve.InitialVirtualSol {
		asset.RealSolReserves = latest.VirtualSolReserves - curve.InitialVirtualSol
	}
	if latest.VirtualTokenReserves < curve.InitialVirtualTokens {
		asset.TokensSold = curve.InitialVirtualTokens - latest.VirtualTokenReserves
	}
	asset.Graduated = curve.Graduated(asset.RealSolReserves)

	if existing, err := s.opts.Assets.Get(ctx, mint); err == nil {
		asset.Creator = existing.Creator
		if existing.LastSlot > asset.LastSlot {
			// A newer trade already updated the mirror.
			return nil
		}
	}

	if s.opts.Curve != nil {
		if state, err := s.opts.Curve.Fetch(ctx, mint); err == nil {
			asset.Creator = state.Creator
			asset.VirtualSolReserves = state.VirtualSol
			asset.VirtualTokenReserves = state.VirtualTokens
			asset.RealSolReserves = state.RealSol
			asset.RealTokenReserves = state.RealTokens
			asset.TokensSold = state.TokensSold()
			asset.Graduated = state.Graduated
		} else if !errors.Is(err, curvestate.ErrAccountNotFound) {
			s.opts.Logger.WithError(err).WithField("mint", mint).Debug("Curve account fetch failed")
		}
	}

	return s.opts.Assets.Upsert(ctx, asset)
}

// archive copies synced trades to the analytics store. Failures are
// logged and swallowed; PostgreSQL remains the source of truth.
func (s *Synchronizer) archive(ctx context.Context, trades []*domain.Trade) {
	if s.opts.Archive == nil || len(trades) == 0 {
		return
	}
	if err := s.opts.Archive.InsertBulk(ctx, trades); err != nil {
		s.opts.Logger.WithError(err).Warn("Trade archive write failed")
	}
}
