package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perplbot/perplbot/pkg/types"
)

// TestTradingFeedAuthUnblocksFromLiveReadLoop exercises the real
// connectAndRead/onConnect interaction end to end: a wallet-snapshot frame
// written by a live server must unblock the auth handshake well within
// authTimeout, not after it. This is the case the unit-level
// TestTradingFeedConfirmAuthUnblocksOnWalletSnapshot (which calls
// dispatchMessage directly) cannot catch, since it never drives the read
// loop through the transport at all.
func TestTradingFeedAuthUnblocksFromLiveReadLoop(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		raw, _ := json.Marshal(struct {
			MT types.MessageType `json:"mt"`
			types.WSWalletEvent
		}{MT: types.MTWalletSnapshot, WSWalletEvent: types.WSWalletEvent{AccountID: 1, BalanceCNS: "1000000"}})
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}

		// Keep the connection open until the test tears it down.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := NewTradingFeed(wsURL, 1, func() types.Session {
		return types.Session{Nonce: "n", Cookie: "c", Authenticated: true}
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout-2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case evt := <-f.Lifecycle():
		if evt.Kind != EventConnected {
			t.Fatalf("first lifecycle event = %v, want EventConnected", evt.Kind)
		}
	case <-time.After(authTimeout - time.Second):
		t.Fatal("auth handshake did not complete before authTimeout; read loop likely starved by onConnect")
	}

	cancel()
	<-done
}
