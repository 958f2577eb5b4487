package domain

// Candle interval lengths in seconds.
const (
	Interval1Min  int64 = 60
	Interval5Min  int64 = 300
	Interval15Min int64 = 900
	Interval1Hour int64 = 3600
	Interval1Day  int64 = 86400
)

// Intervals lists every aggregation interval, shortest first.
var Intervals = []int64{
	Interval1Min,
	Interval5Min,
	Interval15Min,
	Interval1Hour,
	Interval1Day,
}

// BucketTime floors ts to the start of its interval bucket. Buckets are
// aligned to the Unix epoch, which is midnight UTC for the daily interval.
func BucketTime(ts, intervalSeconds int64) int64 {
	return ts - ts%intervalSeconds
}

// Candle represents one OHLCV bucket for an asset at a given interval.
// Corresponds to candles table in PostgreSQL.
type Candle struct {
	AssetID         string  // token mint address
	IntervalSeconds int64   // bucket length: 60, 300, 900, 3600, 86400
	BucketTime      int64   // bucket start, Unix seconds (UTC aligned)
	OpenSol         float64 // price of the first trade in the bucket
	HighSol         float64
	LowSol          float64
	CloseSol        float64 // price of the last trade in the bucket
	OpenUsd         float64
	HighUsd         float64
	LowUsd          float64
	CloseUsd        float64
	VolumeSol       float64 // SOL volume traded in the bucket
	VolumeUsd       float64
	TradeCount      int     // number of trades aggregated; 0 for heartbeat candles
	SolPriceUsd     float64 // SOL/USD reference used for the USD side (0 when unknown)
}
