// Package lookup answers point-in-time questions over stored trade
// history.
package lookup

import (
	"errors"

	"clawdvault-indexer/internal/domain"
)

// ErrNoPriceData is returned when no trades exist to read a price from.
var ErrNoPriceData = errors.New("no price data available")

// PriceAt returns the execution price of the last trade at or before
// the target timestamp. Trades must be ordered by timestamp ascending,
// the order GetByAsset returns. If every trade is after the target the
// first trade's price is used.
// Returns ErrNoPriceData if the slice is empty.
func PriceAt(target int64, trades []*domain.Trade) (float64, error) {
	if len(trades) == 0 {
		return 0, ErrNoPriceData
	}

	// Find closest trade at or before target
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].Timestamp <= target {
			return trades[i].PriceSol, nil
		}
	}

	// If no trade before target, use first available
	return trades[0].PriceSol, nil
}

// PriceChange reports the relative price move between the trade at or
// before `from` and the latest trade. A zero reference price yields 0.
func PriceChange(from int64, trades []*domain.Trade) (float64, error) {
	if len(trades) == 0 {
		return 0, ErrNoPriceData
	}

	ref, err := PriceAt(from, trades)
	if err != nil {
		return 0, err
	}
	if ref == 0 {
		return 0, nil
	}

	last := trades[len(trades)-1].PriceSol
	return (last - ref) / ref, nil
}
