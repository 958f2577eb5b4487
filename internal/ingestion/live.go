package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/observability"
	"clawdvault-indexer/internal/solana"
	"clawdvault-indexer/internal/storage"
)

// TradeApplier folds stored trades into candles.
type TradeApplier interface {
	ApplyTrade(ctx context.Context, t *domain.Trade) error
}

// LiveRunner consumes log subscription notifications and stores trades
// through the same path as the polling synchronizer, then feeds the
// candle aggregator.
type LiveRunner struct {
	sync       *Synchronizer
	ws         solana.WSClient
	aggregator TradeApplier
}

// NewLiveRunner creates a live runner on top of an existing
// synchronizer. The aggregator is optional.
func NewLiveRunner(sync *Synchronizer, ws solana.WSClient, aggregator TradeApplier) *LiveRunner {
	return &LiveRunner{
		sync:       sync,
		ws:         ws,
		aggregator: aggregator,
	}
}

// Run subscribes to program logs and processes notifications until the
// context is canceled or the subscription channel closes.
func (r *LiveRunner) Run(ctx context.Context) error {
	ch, err := r.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{r.sync.opts.ProgramID},
	})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}

	r.sync.opts.Logger.WithField("program", r.sync.opts.ProgramID).Info("Live ingestion started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, &notif); err != nil {
				r.sync.opts.Logger.WithError(err).WithField("signature", notif.Signature).Warn("Live notification failed")
			}
		}
	}
}

// handle stores one notification's trade, if any. Duplicates are
// expected while polling overlaps the live stream and are only logged
// at Debug.
func (r *LiveRunner) handle(ctx context.Context, notif *solana.LogNotification) error {
	observability.DefaultMetrics.LiveNotifications.Inc()
	if notif.Err != nil {
		return nil
	}

	ev, ok := r.sync.opts.Decoder.Decode(notif.Logs)
	if !ok {
		return nil
	}

	tx := &solana.Transaction{
		Slot:      notif.Slot,
		Signature: notif.Signature,
		BlockTime: time.Now().Unix(),
	}
	trade := r.sync.buildTrade(ctx, notif.Signature, tx, ev)

	if err := r.sync.opts.Trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			r.sync.opts.Logger.WithField("signature", trade.Signature).Debug("Live trade already synced")
			return nil
		}
		return fmt.Errorf("insert trade: %w", err)
	}

	observability.RecordLiveTrade(notif.Slot)

	if err := r.sync.refreshAsset(ctx, trade.Mint, trade); err != nil {
		r.sync.opts.Logger.WithError(err).WithField("mint", trade.Mint).Warn("Asset mirror refresh failed")
	}

	r.sync.archive(ctx, []*domain.Trade{trade})

	if r.aggregator != nil {
		if err := r.aggregator.ApplyTrade(ctx, trade); err != nil {
			return fmt.Errorf("apply trade to candles: %w", err)
		}
	}

	return nil
}
