// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Sync metrics
	SignaturesInspected prometheus.Counter
	TradesSynced        prometheus.Counter
	TradesDuplicate     prometheus.Counter
	TradesNoEvent       prometheus.Counter
	SyncErrors          *prometheus.CounterVec
	SyncDuration        prometheus.Histogram

	// Live stream metrics
	LiveNotifications prometheus.Counter
	LiveTradesStored  prometheus.Counter
	HighestSlotSeen   prometheus.Gauge

	// Candle metrics
	CandleUpdates     *prometheus.CounterVec
	HeartbeatCandles  prometheus.Counter
	HeartbeatSkipped  prometheus.Counter
	RebuildsCompleted prometheus.Counter

	// Oracle metrics
	SolPriceUsd       prometheus.Gauge
	OracleFetchErrors prometheus.Counter

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "clawdvault_indexer"
	}

	return &Metrics{
		// Sync metrics
		SignaturesInspected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "signatures_inspected_total",
			Help:      "Total number of signatures inspected during sync runs",
		}),
		TradesSynced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "trades_synced_total",
			Help:      "Total number of trades stored by sync runs",
		}),
		TradesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "trades_duplicate_total",
			Help:      "Total number of signatures already present in storage",
		}),
		TradesNoEvent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "trades_no_event_total",
			Help:      "Total number of transactions without a trade event",
		}),
		SyncErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "errors_total",
			Help:      "Total number of sync errors by stage",
		}, []string{"stage"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),

		// Live stream metrics
		LiveNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "notifications_total",
			Help:      "Total number of log notifications received",
		}),
		LiveTradesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "trades_stored_total",
			Help:      "Total number of trades stored from the live stream",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Candle metrics
		CandleUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "updates_total",
			Help:      "Total number of candle bucket updates by interval",
		}, []string{"interval"}),
		HeartbeatCandles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat candles written",
		}),
		HeartbeatSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "heartbeat_passes_skipped_total",
			Help:      "Total number of heartbeat passes skipped because the oracle was down",
		}),
		RebuildsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "rebuilds_completed_total",
			Help:      "Total number of per-asset candle rebuilds completed",
		}),

		// Oracle metrics
		SolPriceUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "sol_price_usd",
			Help:      "Last known SOL/USD price",
		}),
		OracleFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed SOL price fetches",
		}),

		// Health metrics
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last successful sync run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSyncRun records the counters from one sync run.
func RecordSyncRun(inspected, synced, duplicate, noEvent int, durationSeconds float64) {
	DefaultMetrics.SignaturesInspected.Add(float64(inspected))
	DefaultMetrics.TradesSynced.Add(float64(synced))
	DefaultMetrics.TradesDuplicate.Add(float64(duplicate))
	DefaultMetrics.TradesNoEvent.Add(float64(noEvent))
	DefaultMetrics.SyncDuration.Observe(durationSeconds)
}

// RecordSyncError records a sync error for a stage.
func RecordSyncError(stage string) {
	DefaultMetrics.SyncErrors.WithLabelValues(stage).Inc()
}

// RecordLiveTrade records a trade stored from the live stream.
func RecordLiveTrade(slot int64) {
	DefaultMetrics.LiveTradesStored.Inc()
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordCandleUpdate records one candle bucket update.
func RecordCandleUpdate(interval string) {
	DefaultMetrics.CandleUpdates.WithLabelValues(interval).Inc()
}

// RecordSolPrice updates the SOL/USD gauge.
func RecordSolPrice(price float64) {
	DefaultMetrics.SolPriceUsd.Set(price)
}
