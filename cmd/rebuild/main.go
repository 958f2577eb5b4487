package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"clawdvault-indexer/internal/candles"
	"clawdvault-indexer/internal/config"
	"clawdvault-indexer/internal/storage/migrations"
	pgstore "clawdvault-indexer/internal/storage/postgres"
)

// rebuild drops and recomputes candles from stored trade history. With
// --mint it rebuilds a single asset, otherwise every asset with trades.
func main() {
	cfg := config.Load()

	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	mint := flag.String("mint", "", "Rebuild candles for a single mint (empty for all)")
	flag.Parse()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *postgresDSN, *mint); err != nil {
		logger.WithError(err).Error("Rebuild failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *logrus.Logger, dsn, mint string) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	trades := pgstore.NewTradeStore(pool)
	candleStore := pgstore.NewCandleStore(pool)
	assets := pgstore.NewAssetStore(pool)

	aggregator := candles.NewAggregator(candleStore, trades, assets, logger)

	if mint != "" {
		return aggregator.RebuildAsset(ctx, mint)
	}
	return aggregator.RebuildAll(ctx)
}
