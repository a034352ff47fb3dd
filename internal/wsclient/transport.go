// Package wsclient implements PerplBot's WebSocket leg of the dual-transport
// exchange client (spec.md §4.3): an unauthenticated market-data feed and an
// authenticated trading feed, both built on the same reconnect-with-backoff
// transport.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perplbot/perplbot/pkg/types"
)

const (
	pingInterval   = 30 * time.Second // spec.md §4.3: "a liveness ping... is sent every 30s"
	writeTimeout   = 10 * time.Second
	readTimeout    = 90 * time.Second
	eventBufSize   = 256
)

// transport owns one WebSocket connection and its reconnect/ping machinery.
// onConnect is invoked after every successful dial (including reconnects) to
// send whatever handshake/resubscription the concrete feed needs; dispatch
// is invoked for every inbound frame.
type transport struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	onConnect func(ctx context.Context) error
	dispatch  func(raw []byte)

	events chan LifecycleEvent
}

func newTransport(url string, logger *slog.Logger) *transport {
	return &transport{
		url:    url,
		logger: logger,
		events: make(chan LifecycleEvent, 16),
	}
}

// Events returns lifecycle notifications (connected, disconnected,
// auth-expired, fatal).
func (t *transport) Events() <-chan LifecycleEvent { return t.events }

func (t *transport) emit(evt LifecycleEvent) {
	select {
	case t.events <- evt:
	default:
		t.logger.Warn("lifecycle event channel full, dropping", "kind", evt.Kind)
	}
}

// Run dials and maintains the connection, reconnecting with the spec's
// backoff sequence on unexpected close, until ctx is cancelled, the close
// code is authExpiredCloseCode, or the reconnect budget is exhausted.
func (t *transport) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := t.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if code, ok := closeCode(err); ok && code == authExpiredCloseCode {
			t.emit(LifecycleEvent{Kind: EventAuthExpired, Err: err})
			return err
		}

		t.emit(LifecycleEvent{Kind: EventDisconnected, Err: err})

		if attempt >= maxReconnectAttempts {
			t.emit(LifecycleEvent{Kind: EventFatal, Err: ErrMaxReconnectExceeded})
			return ErrMaxReconnectExceeded
		}

		wait := backoffFor(attempt)
		t.logger.Warn("websocket disconnected, reconnecting", "error", err, "attempt", attempt, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		attempt++
	}
}

func closeCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, true
	}
	return 0, false
}

func (t *transport) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	defer func() {
		t.connMu.Lock()
		conn.Close()
		t.conn = nil
		t.connMu.Unlock()
	}()

	// The read loop must run before (or alongside) onConnect, not after it
	// returns: onConnect may itself wait on a frame that only the read loop
	// can deliver (the trading feed's auth handshake blocks on a wallet
	// snapshot frame dispatched from here).
	readErrCh := make(chan error, 1)
	go t.readLoop(ctx, conn, readErrCh)

	if t.onConnect != nil {
		if err := t.onConnect(ctx); err != nil {
			return fmt.Errorf("on-connect handshake: %w", err)
		}
	}

	t.emit(LifecycleEvent{Kind: EventConnected})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go t.pingLoop(pingCtx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-readErrCh:
		return err
	}
}

// readLoop reads frames off conn and dispatches them until ctx is cancelled
// or the connection errors, reporting the terminal error on errCh.
func (t *transport) readLoop(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	for {
		if ctx.Err() != nil {
			errCh <- ctx.Err()
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			errCh <- fmt.Errorf("read: %w", err)
			return
		}
		t.dispatch(msg)
	}
}

func (t *transport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := types.WSEnvelope{MT: types.MTPing}
			if err := t.writeJSON(ping); err != nil {
				t.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (t *transport) writeJSON(v any) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("wsclient: not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(v)
}

// Close closes the current connection, if any.
func (t *transport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// envelopeMT extracts the mt discriminator without decoding the full frame.
func envelopeMT(raw []byte) (types.MessageType, error) {
	var env types.WSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, err
	}
	return env.MT, nil
}
