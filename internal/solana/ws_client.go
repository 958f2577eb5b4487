package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// LogsWSClient implements WSClient using gorilla/websocket. It carries a
// single logs subscription and transparently resubscribes after a
// reconnect.
type LogsWSClient struct {
	endpoint string
	config   WSConfig
	logger   *logrus.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	closed    atomic.Bool
	requestID atomic.Uint64

	// confirm receives the subscription ID for the in-flight
	// logsSubscribe request; confirmReq holds its request ID.
	confirmMu  sync.Mutex
	confirm    chan int64
	confirmReq uint64

	// subscription state for dispatch and resubscribe
	subMu      sync.Mutex
	subID      int64
	filter     LogsFilter
	subscribed bool
	out        chan LogNotification

	done chan struct{}
	wg   sync.WaitGroup
}

// Compile-time interface check.
var _ WSClient = (*LogsWSClient)(nil)

// NewLogsWSClient connects to the endpoint and starts the read and ping
// loops. A nil config uses defaults; a nil logger falls back to the
// default logrus logger.
func NewLogsWSClient(ctx context.Context, endpoint string, config *WSConfig, logger *logrus.Logger) (*LogsWSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &LogsWSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *LogsWSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter. Only one
// subscription per client is supported.
func (c *LogsWSClient) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	c.subMu.Lock()
	if c.subscribed {
		c.subMu.Unlock()
		return nil, fmt.Errorf("already subscribed")
	}
	c.subMu.Unlock()

	subID, err := c.sendSubscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Large buffer absorbs bursts; delivery blocks rather than drops.
	out := make(chan LogNotification, 10000)

	c.subMu.Lock()
	c.subID = subID
	c.filter = filter
	c.subscribed = true
	c.out = out
	c.subMu.Unlock()

	return out, nil
}

// sendSubscribe issues a logsSubscribe request and waits for the
// subscription ID.
func (c *LogsWSClient) sendSubscribe(ctx context.Context, filter LogsFilter) (int64, error) {
	reqID := c.requestID.Add(1)

	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirm := make(chan int64, 1)
	c.confirmMu.Lock()
	c.confirm = confirm
	c.confirmReq = reqID
	c.confirmMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	if conn == nil {
		c.connMu.Unlock()
		return 0, fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirm:
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and the notification channel.
func (c *LogsWSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subMu.Lock()
	if c.out != nil {
		close(c.out)
		c.out = nil
	}
	c.subMu.Unlock()

	return nil
}

// readLoop reads messages and dispatches them. On read failure it
// reconnects with exponential backoff and restores the subscription.
func (c *LogsWSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.WithError(err).Warn("WebSocket read failed, reconnecting")
			if !c.reconnect() {
				return
			}
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect re-dials until it succeeds or the client is closed, then
// resubscribes. Returns false when the client shut down meanwhile.
func (c *LogsWSClient) reconnect() bool {
	delay := c.config.ReconnectDelay

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.logger.WithError(err).Warn("WebSocket reconnect failed")
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
			continue
		}

		c.subMu.Lock()
		subscribed := c.subscribed
		filter := c.filter
		c.subMu.Unlock()

		if subscribed {
			ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
			subID, err := c.sendSubscribe(ctx, filter)
			cancel()
			if err != nil {
				c.logger.WithError(err).Warn("Resubscribe failed, retrying")
				continue
			}
			c.subMu.Lock()
			c.subID = subID
			c.subMu.Unlock()
			c.logger.WithField("subscription", subID).Info("Resubscribed after reconnect")
		}

		return true
	}
}

// handleMessage routes a raw message to the confirmation channel or the
// notification channel.
func (c *LogsWSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.confirmMu.Lock()
		if c.confirm != nil && resp.ID == c.confirmReq {
			select {
			case c.confirm <- resp.Result:
			default:
			}
			c.confirm = nil
		}
		c.confirmMu.Unlock()
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.dispatch(&notif)
		return
	}

	var errResp struct {
		Error *rpcError `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.logger.WithFields(logrus.Fields{
			"code":    errResp.Error.Code,
			"message": errResp.Error.Message,
		}).Warn("WebSocket error response")
	}
}

// dispatch forwards a logs notification to the subscriber. The send
// blocks so no event is lost.
func (c *LogsWSClient) dispatch(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.subMu.Lock()
	out := c.out
	subID := c.subID
	c.subMu.Unlock()

	if out == nil || notif.Params.Subscription != subID {
		return
	}

	value := notif.Params.Result.Value
	n := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		n.Slot = notif.Params.Result.Context.Slot
	}

	select {
	case out <- n:
	case <-c.done:
	}
}

// pingLoop keeps the connection alive with periodic ping frames.
func (c *LogsWSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the read loop
				// owns reconnection.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
