package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer keeps the connection open without answering anything.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestLogsWSClient_Connect(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client, err := NewLogsWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestLogsWSClient_SubscribeLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "logsSubscribe" {
			t.Errorf("expected logsSubscribe, got %s", req.Method)
		}

		if err := c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 12345}); err != nil {
			return
		}

		time.Sleep(50 * time.Millisecond)
		notif := wsNotification{
			JSONRPC: "2.0",
			Method:  "logsNotification",
			Params: &wsNotificationParams{
				Subscription: 12345,
				Result: wsNotificationResult{
					Context: &wsContext{Slot: 100},
					Value: wsLogsValue{
						Signature: "testsig",
						Logs:      []string{"Program log: Test"},
					},
				},
			},
		}
		if err := c.WriteJSON(notif); err != nil {
			return
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewLogsWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, LogsFilter{Mentions: []string{"testprogram"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if len(notif.Logs) != 1 {
			t.Errorf("expected 1 log, got %d", len(notif.Logs))
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestLogsWSClient_SecondSubscribeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if json.Unmarshal(msg, &req) == nil && req.Method == "logsSubscribe" {
				c.WriteJSON(wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: 1})
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewLogsWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err != nil {
		t.Fatalf("first SubscribeLogs: %v", err)
	}
	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error on second subscription")
	}
}

func TestLogsWSClient_Close(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client, err := NewLogsWSClient(context.Background(), wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestLogsWSClient_SubscribeAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx := context.Background()
	client, err := NewLogsWSClient(ctx, wsURL(server), nil, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}
	client.Close()

	if _, err := client.SubscribeLogs(ctx, LogsFilter{}); err == nil {
		t.Error("expected error subscribing after close")
	}
}

func TestLogsWSClient_CustomConfig(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	config := &WSConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: 1 * time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SubscribeTimeout:  2 * time.Second,
	}

	client, err := NewLogsWSClient(context.Background(), wsURL(server), config, nil)
	if err != nil {
		t.Fatalf("NewLogsWSClient: %v", err)
	}
	defer client.Close()

	if client.config.PingInterval != 5*time.Second {
		t.Errorf("expected PingInterval 5s, got %v", client.config.PingInterval)
	}
}
