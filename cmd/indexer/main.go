package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"clawdvault-indexer/internal/candles"
	"clawdvault-indexer/internal/config"
	"clawdvault-indexer/internal/curvestate"
	"clawdvault-indexer/internal/domain"
	"clawdvault-indexer/internal/events"
	"clawdvault-indexer/internal/ingestion"
	"clawdvault-indexer/internal/observability"
	"clawdvault-indexer/internal/priceoracle"
	"clawdvault-indexer/internal/solana"
	"clawdvault-indexer/internal/stats"
	"clawdvault-indexer/internal/storage"
	chstore "clawdvault-indexer/internal/storage/clickhouse"
	"clawdvault-indexer/internal/storage/memory"
	"clawdvault-indexer/internal/storage/migrations"
	pgstore "clawdvault-indexer/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	mode := flag.String("mode", "poll", "Indexing mode: poll or live")
	rpcEndpoint := flag.String("rpc-endpoint", cfg.RPCUrl, "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", cfg.WSUrl, "Solana WebSocket endpoint")
	programID := flag.String("program", cfg.ProgramID, "Bonding curve program ID")
	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (empty to disable the archive)")
	priceFeedURL := flag.String("price-feed-url", cfg.PriceFeedURL, "SOL/USD price feed endpoint")
	pollInterval := flag.Duration("poll-interval", cfg.PollInterval, "Poll mode sync interval")
	pollLimit := flag.Int("poll-limit", cfg.PollLimit, "Signatures fetched per sync run")
	heartbeatInterval := flag.Duration("heartbeat-interval", cfg.HeartbeatInterval, "Heartbeat candle interval")
	statsInterval := flag.Duration("stats-interval", 5*time.Minute, "Market stats log interval (0 to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if *programID == "" {
		logger.Fatal("Program ID is required (--program or PROGRAM_ID)")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.WithField("addr", *metricsAddr).Info("Starting metrics server")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server error")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig).Info("Initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig).Warn("Second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, runOptions{
		mode:              *mode,
		rpcEndpoint:       *rpcEndpoint,
		wsEndpoint:        *wsEndpoint,
		programID:         *programID,
		postgresDSN:       *postgresDSN,
		clickhouseDSN:     *clickhouseDSN,
		priceFeedURL:      *priceFeedURL,
		pollInterval:      *pollInterval,
		pollLimit:         *pollLimit,
		heartbeatInterval: *heartbeatInterval,
		statsInterval:     *statsInterval,
		useMemory:         *useMemory,
	})

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("Indexer failed")
	}

	logger.Info("Shutdown complete")
}

type runOptions struct {
	mode              string
	rpcEndpoint       string
	wsEndpoint        string
	programID         string
	postgresDSN       string
	clickhouseDSN     string
	priceFeedURL      string
	pollInterval      time.Duration
	pollLimit         int
	heartbeatInterval time.Duration
	statsInterval     time.Duration
	useMemory         bool
}

func run(ctx context.Context, logger *logrus.Logger, opts runOptions) error {
	trades, candleStore, assets, cleanup, err := buildStores(ctx, logger, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	var archive storage.TradeArchive
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		archive = chstore.NewTradeArchive(conn)
	}

	rpc := solana.NewHTTPClient(opts.rpcEndpoint)
	oracle := priceoracle.NewCache(priceoracle.NewHTTPFeed(opts.priceFeedURL), logger)

	sync := ingestion.NewSynchronizer(ingestion.Options{
		RPC:       rpc,
		Decoder:   events.NewDecoder(logger),
		Trades:    trades,
		Assets:    assets,
		Archive:   archive,
		Pricer:    oracle,
		Curve:     curvestate.NewReader(rpc, opts.programID),
		ProgramID: opts.programID,
		Logger:    logger,
	})

	aggregator := candles.NewAggregator(candleStore, trades, assets, logger)

	// Heartbeat candles run in every mode
	go runHeartbeat(ctx, logger, aggregator, oracle, opts.heartbeatInterval)

	if opts.statsInterval > 0 {
		go runStats(ctx, logger, stats.NewService(trades, assets, archive), assets, opts.statsInterval)
	}

	switch opts.mode {
	case "poll":
		return runPoll(ctx, logger, sync, aggregator, opts)
	case "live":
		return runLive(ctx, logger, sync, aggregator, opts)
	default:
		return fmt.Errorf("unknown mode: %s", opts.mode)
	}
}

// buildStores wires either the in-memory stores or PostgreSQL with
// migrations applied.
func buildStores(ctx context.Context, logger *logrus.Logger, opts runOptions) (storage.TradeStore, storage.CandleStore, storage.AssetStore, func(), error) {
	if opts.useMemory {
		logger.Info("Using in-memory storage")
		return memory.NewTradeStore(), memory.NewCandleStore(), memory.NewAssetStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	return pgstore.NewTradeStore(pool), pgstore.NewCandleStore(pool), pgstore.NewAssetStore(pool), pool.Close, nil
}

// runPoll reconciles on a ticker and replays new trades into candles.
func runPoll(ctx context.Context, logger *logrus.Logger, sync *ingestion.Synchronizer, aggregator *candles.Aggregator, opts runOptions) error {
	ticker := time.NewTicker(opts.pollInterval)
	defer ticker.Stop()

	for {
		result, err := sync.Run(ctx, ingestion.SyncOptions{Limit: opts.pollLimit})
		if err != nil {
			observability.RecordSyncError("run")
			logger.WithError(err).Warn("Sync run failed")
		} else {
			observability.RecordSyncRun(result.Inspected, result.Synced,
				result.AlreadyPresent, result.NoEvent, result.Duration.Seconds())
			observability.DefaultMetrics.LastSuccessfulSync.SetToCurrentTime()

			applyTrades(ctx, logger, aggregator, result.SyncedTrades)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runLive consumes the WebSocket stream, with an initial poll sweep to
// cover the gap before the subscription.
func runLive(ctx context.Context, logger *logrus.Logger, sync *ingestion.Synchronizer, aggregator *candles.Aggregator, opts runOptions) error {
	if result, err := sync.Run(ctx, ingestion.SyncOptions{Limit: opts.pollLimit}); err != nil {
		observability.RecordSyncError("run")
		logger.WithError(err).Warn("Initial reconciliation sweep failed")
	} else {
		applyTrades(ctx, logger, aggregator, result.SyncedTrades)
	}

	ws, err := solana.NewLogsWSClient(ctx, opts.wsEndpoint, nil, logger)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	runner := ingestion.NewLiveRunner(sync, ws, aggregator)
	return runner.Run(ctx)
}

// applyTrades folds newly synced trades into candles, oldest first.
// Signatures arrive reverse-chronological from the RPC source and the
// fold's close price depends on application order.
func applyTrades(ctx context.Context, logger *logrus.Logger, aggregator *candles.Aggregator, trades []*domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Timestamp < trades[j].Timestamp
	})
	for _, t := range trades {
		if err := aggregator.ApplyTrade(ctx, t); err != nil {
			logger.WithError(err).WithField("signature", t.Signature).Warn("Candle update failed")
		}
	}
}

// runStats logs a rolling 24h market summary per tracked asset.
func runStats(ctx context.Context, logger *logrus.Logger, svc *stats.Service, assets storage.AssetStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			all, err := assets.List(ctx)
			if err != nil {
				logger.WithError(err).Warn("Stats asset listing failed")
				continue
			}
			for _, a := range all {
				m, err := svc.Market(ctx, a.Mint)
				if err != nil {
					continue
				}
				logger.WithFields(logrus.Fields{
					"mint":       m.Mint,
					"price_sol":  m.LastPriceSol,
					"change_24h": m.PriceChange24h,
					"volume_24h": m.VolumeSol24h,
					"trades_24h": m.TradeCount24h,
					"mcap_sol":   m.MarketCapSol,
				}).Info("Market stats")
			}
		}
	}
}

// runHeartbeat fills empty buckets so charts stay flat instead of
// gapped while no one trades.
func runHeartbeat(ctx context.Context, logger *logrus.Logger, aggregator *candles.Aggregator, oracle *priceoracle.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := aggregator.Heartbeat(ctx, now, oracle); err != nil {
				logger.WithError(err).Warn("Heartbeat pass failed")
			}
		}
	}
}
