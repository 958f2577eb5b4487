// Package candles aggregates trades into OHLCV candles across five
// intervals. Every write path folds trades through the same function so
// incremental aggregation and rebuilds produce identical candles.
package candles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/observability"
	"clawdvault-indexer/internal/storage"
)

// ErrInvariantViolation is returned when a folded candle fails the
// Low <= Open,Close <= High check.
var ErrInvariantViolation = errors.New("candles: OHLC invariant violated")

// Aggregator maintains candles for every interval from the trade stream.
type Aggregator struct {
	candles storage.CandleStore
	trades  storage.TradeStore
	assets  storage.AssetStore
	logger  *logrus.Logger
}

// NewAggregator creates a candle aggregator. A nil logger falls back to
// the default logrus logger.
func NewAggregator(candles storage.CandleStore, trades storage.TradeStore, assets storage.AssetStore, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		candles: candles,
		trades:  trades,
		assets:  assets,
		logger:  logger,
	}
}

// foldTrade merges one trade into a candle. A nil existing candle opens
// the bucket. This is the only place candle fields are derived from a
// trade; ApplyTrade and the rebuild paths both go through it.
func foldTrade(existing *domain.Candle, t *domain.Trade, intervalSeconds, bucketTime int64) (*domain.Candle, error) {
	priceSol := t.PriceSol
	priceUsd := priceSol * t.SolPriceUsd
	volumeSol := float64(t.SolAmount) / domain.LamportsPerSol
	volumeUsd := volumeSol * t.SolPriceUsd

	var c *domain.Candle
	if existing == nil {
		c = &domain.Candle{
			AssetID:         t.Mint,
			IntervalSeconds: intervalSeconds,
			BucketTime:      bucketTime,
			OpenSol:         priceSol,
			HighSol:         priceSol,
			LowSol:          priceSol,
			CloseSol:        priceSol,
			OpenUsd:         priceUsd,
			HighUsd:         priceUsd,
			LowUsd:          priceUsd,
			CloseUsd:        priceUsd,
		}
	} else {
		copied := *existing
		c = &copied
		if c.TradeCount == 0 {
			// Heartbeat candle: the first real trade claims the bucket.
			c.OpenSol = priceSol
			c.HighSol = priceSol
			c.LowSol = priceSol
			c.OpenUsd = priceUsd
			c.HighUsd = priceUsd
			c.LowUsd = priceUsd
			c.VolumeSol = 0
			c.VolumeUsd = 0
		}
		if priceUsd > 0 && c.OpenUsd == 0 {
			// Bucket was opened without a USD snapshot; the first
			// USD-bearing trade seeds the USD side.
			c.OpenUsd = priceUsd
			c.HighUsd = priceUsd
			c.LowUsd = priceUsd
		}
		if priceSol > c.HighSol {
			c.HighSol = priceSol
		}
		if priceSol < c.LowSol {
			c.LowSol = priceSol
		}
		if priceUsd > c.HighUsd {
			c.HighUsd = priceUsd
		}
		if priceUsd < c.LowUsd {
			c.LowUsd = priceUsd
		}
		c.CloseSol = priceSol
		c.CloseUsd = priceUsd
	}

	c.VolumeSol += volumeSol
	c.VolumeUsd += volumeUsd
	c.TradeCount++
	if t.SolPriceUsd > 0 {
		c.SolPriceUsd = t.SolPriceUsd
	}

	if err := checkInvariant(c); err != nil {
		return nil, err
	}
	return c, nil
}

// checkInvariant verifies Low <= min(Open, Close) and
// max(Open, Close) <= High on the SOL side.
func checkInvariant(c *domain.Candle) error {
	lo, hi := c.OpenSol, c.OpenSol
	if c.CloseSol < lo {
		lo = c.CloseSol
	}
	if c.CloseSol > hi {
		hi = c.CloseSol
	}
	if c.LowSol > lo || c.HighSol < hi {
		return fmt.Errorf("%w: O=%g H=%g L=%g C=%g", ErrInvariantViolation,
			c.OpenSol, c.HighSol, c.LowSol, c.CloseSol)
	}
	return nil
}

// ApplyTrade folds a trade into its bucket for every interval.
func (a *Aggregator) ApplyTrade(ctx context.Context, t *domain.Trade) error {
	for _, interval := range domain.Intervals {
		bucket := domain.BucketTime(t.Timestamp, interval)

		err := a.candles.Update(ctx, t.Mint, interval, bucket, func(existing *domain.Candle) (*domain.Candle, error) {
			return foldTrade(existing, t, interval, bucket)
		})
		if err != nil {
			return fmt.Errorf("apply trade to %ds bucket: %w", interval, err)
		}
		observability.RecordCandleUpdate(strconv.FormatInt(interval, 10))
	}
	return nil
}

// RebuildAsset deletes every candle for a mint and replays its stored
// trades through the fold path.
func (a *Aggregator) RebuildAsset(ctx context.Context, mint string) error {
	if err := a.candles.DeleteByAsset(ctx, mint); err != nil {
		return fmt.Errorf("delete candles: %w", err)
	}

	trades, err := a.trades.GetByAsset(ctx, mint)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	for _, t := range trades {
		if err := a.ApplyTrade(ctx, t); err != nil {
			return fmt.Errorf("replay trade %s: %w", t.Signature, err)
		}
	}

	observability.DefaultMetrics.RebuildsCompleted.Inc()
	a.logger.WithFields(logrus.Fields{
		"mint":   mint,
		"trades": len(trades),
	}).Info("Rebuilt candles")

	return nil
}

// RebuildAll rebuilds candles for every mint that has trades.
func (a *Aggregator) RebuildAll(ctx context.Context) error {
	mints, err := a.trades.ListAssetIDs(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}

	for _, mint := range mints {
		if err := a.RebuildAsset(ctx, mint); err != nil {
			return err
		}
	}
	return nil
}

// SolPricer supplies the SOL/USD reference for heartbeat candles.
type SolPricer interface {
	SolPrice(ctx context.Context) (float64, error)
}

// Heartbeat writes zero-volume candles for active assets whose current
// bucket has no trades yet, so charts render flat instead of gapped.
// When the SOL price is unavailable the whole pass is skipped.
func (a *Aggregator) Heartbeat(ctx context.Context, now time.Time, pricer SolPricer) error {
	solPrice, err := pricer.SolPrice(ctx)
	if err != nil {
		observability.DefaultMetrics.HeartbeatSkipped.Inc()
		a.logger.WithError(err).Warn("Skipping heartbeat pass, SOL price unavailable")
		return nil
	}

	assets, err := a.assets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active assets: %w", err)
	}

	ts := now.Unix()
	for _, asset := range assets {
		if err := a.heartbeatAsset(ctx, asset.Mint, ts, solPrice); err != nil {
			a.logger.WithError(err).WithField("mint", asset.Mint).Warn("Heartbeat failed for asset")
		}
	}
	return nil
}

// heartbeatAsset fills the current bucket of every interval for one
// asset. Buckets that already have a candle are left untouched.
func (a *Aggregator) heartbeatAsset(ctx context.Context, mint string, ts int64, solPrice float64) error {
	last, err := a.trades.GetLatestByAsset(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest trade: %w", err)
	}

	for _, interval := range domain.Intervals {
		bucket := domain.BucketTime(ts, interval)

		// The previous candle must be read before entering Update; the
		// store may hold its lock across the callback.
		prev, err := a.candles.GetLatest(ctx, mint, interval)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("previous candle: %w", err)
		}

		c := heartbeatCandle(mint, interval, bucket, last, prev, solPrice)

		written := false
		err = a.candles.Update(ctx, mint, interval, bucket, func(existing *domain.Candle) (*domain.Candle, error) {
			if existing != nil {
				return nil, nil
			}
			written = true
			return c, nil
		})
		if err != nil {
			return fmt.Errorf("heartbeat %ds bucket: %w", interval, err)
		}
		if written {
			observability.DefaultMetrics.HeartbeatCandles.Inc()
		}
	}
	return nil
}

// heartbeatCandle builds a zero-volume candle carrying the last trade
// price forward. The USD side opens at the previous candle's close so a
// SOL price move between buckets shows up.
func heartbeatCandle(mint string, interval, bucket int64, last *domain.Trade, prev *domain.Candle, solPrice float64) *domain.Candle {
	priceSol := last.PriceSol
	priceUsd := priceSol * solPrice

	c := &domain.Candle{
		AssetID:         mint,
		IntervalSeconds: interval,
		BucketTime:      bucket,
		OpenSol:         priceSol,
		HighSol:         priceSol,
		LowSol:          priceSol,
		CloseSol:        priceSol,
		OpenUsd:         priceUsd,
		HighUsd:         priceUsd,
		LowUsd:          priceUsd,
		CloseUsd:        priceUsd,
		SolPriceUsd:     solPrice,
	}

	if prev != nil && prev.BucketTime < bucket && prev.CloseUsd > 0 {
		c.OpenUsd = prev.CloseUsd
		if prev.CloseUsd > priceUsd {
			c.HighUsd = prev.CloseUsd
		} else {
			c.LowUsd = prev.CloseUsd
		}
	}

	return c
}
