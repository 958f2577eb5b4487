package solana

import "context"

// WSClient streams confirmed transaction logs over a Solana WebSocket
// subscription. The live ingestion path consumes it; the polling path
// only needs RPCClient.
type WSClient interface {
	// SubscribeLogs opens a logsSubscribe stream for logs matching the
	// filter. The returned channel closes when the connection drops or
	// the client is closed.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close tears down the connection and any active subscription.
	Close() error
}

// LogsFilter selects which transactions the subscription delivers.
type LogsFilter struct {
	// Mentions matches transactions that reference any of these
	// addresses; the indexer passes the bonding curve program ID.
	Mentions []string
}

// LogNotification is one delivered transaction's log output. Err is
// non-nil when the transaction itself failed on chain; such
// transactions emit no trade events.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
