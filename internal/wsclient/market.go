package wsclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/perplbot/perplbot/pkg/types"
)

// MarketFeed is the unauthenticated market-data socket (spec.md §4.3):
// idempotent stream subscriptions, order book, trades, market state, and
// the chain heartbeat.
type MarketFeed struct {
	t *transport

	subMu sync.RWMutex
	subs  map[string]int64 // stream name -> server-assigned subscription id (0 until confirmed)

	marketStateCh chan types.WSMarketStateEvent
	bookCh        chan types.WSBookEvent
	tradeCh       chan types.WSTradeEvent
	heartbeatCh   chan types.WSHeartbeatEvent

	logger *slog.Logger
}

// NewMarketFeed creates a market-data feed dialing wsURL + "/ws/v1/market-data".
func NewMarketFeed(wsURL string, logger *slog.Logger) *MarketFeed {
	logger = logger.With("component", "ws_market")
	f := &MarketFeed{
		subs:          make(map[string]int64),
		marketStateCh: make(chan types.WSMarketStateEvent, eventBufSize),
		bookCh:        make(chan types.WSBookEvent, eventBufSize),
		tradeCh:       make(chan types.WSTradeEvent, eventBufSize),
		heartbeatCh:   make(chan types.WSHeartbeatEvent, eventBufSize),
		logger:        logger,
	}
	f.t = newTransport(wsURL, logger)
	f.t.onConnect = f.onConnect
	f.t.dispatch = f.dispatchMessage
	return f
}

// Run connects and maintains the feed until ctx is cancelled.
func (f *MarketFeed) Run(ctx context.Context) error { return f.t.Run(ctx) }

// Close closes the current connection.
func (f *MarketFeed) Close() error { return f.t.Close() }

// Lifecycle returns connect/disconnect/fatal notifications.
func (f *MarketFeed) Lifecycle() <-chan LifecycleEvent { return f.t.Events() }

// MarketStateEvents returns market-state updates (mt:9).
func (f *MarketFeed) MarketStateEvents() <-chan types.WSMarketStateEvent { return f.marketStateCh }

// BookEvents returns order-book snapshots and incremental updates (mt:15/16).
func (f *MarketFeed) BookEvents() <-chan types.WSBookEvent { return f.bookCh }

// TradeEvents returns public trade-tape entries (mt:17/18).
func (f *MarketFeed) TradeEvents() <-chan types.WSTradeEvent { return f.tradeCh }

// HeartbeatEvents returns chain head-block heartbeats (mt:100).
func (f *MarketFeed) HeartbeatEvents() <-chan types.WSHeartbeatEvent { return f.heartbeatCh }

// Subscribe issues an idempotent subscription request for the given stream
// names (spec.md §4.3: "{mt: 5, subs: [{stream, subscribe: true}]}").
func (f *MarketFeed) Subscribe(streams []string) error {
	f.subMu.Lock()
	for _, s := range streams {
		if _, ok := f.subs[s]; !ok {
			f.subs[s] = 0
		}
	}
	f.subMu.Unlock()
	return f.sendSubscribeRequest(streams, true)
}

// Unsubscribe removes streams from the tracked set and requests removal.
func (f *MarketFeed) Unsubscribe(streams []string) error {
	f.subMu.Lock()
	for _, s := range streams {
		delete(f.subs, s)
	}
	f.subMu.Unlock()
	return f.sendSubscribeRequest(streams, false)
}

func (f *MarketFeed) sendSubscribeRequest(streams []string, subscribe bool) error {
	items := make([]types.WSSubRequestItem, len(streams))
	for i, s := range streams {
		items[i] = types.WSSubRequestItem{Stream: s, Subscribe: subscribe}
	}
	return f.t.writeJSON(types.WSSubscribeRequest{MT: types.MTSubscribeRequest, Subs: items})
}

// onConnect resubscribes in a single batch to every previously tracked
// stream, per spec.md §4.3's reconnect ordering guarantee and §8's boundary
// test ("exactly one resubscription batch is sent per reconnect").
func (f *MarketFeed) onConnect(ctx context.Context) error {
	f.subMu.RLock()
	streams := make([]string, 0, len(f.subs))
	for s := range f.subs {
		streams = append(streams, s)
	}
	f.subMu.RUnlock()

	if len(streams) == 0 {
		return nil
	}
	return f.sendSubscribeRequest(streams, true)
}

func (f *MarketFeed) dispatchMessage(raw []byte) {
	mt, err := envelopeMT(raw)
	if err != nil {
		f.logger.Debug("ignoring malformed ws frame", "error", err)
		return
	}

	switch mt {
	case types.MTPong:
		// silent, per spec.md §4.3 dispatch table.
	case types.MTSubscribeResponse:
		f.handleSubscribeResponse(raw)
	case types.MTMarketState:
		var evt types.WSMarketStateEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.marketStateCh, evt, f.logger, "market-state")
		}
	case types.MTBookSnapshot, types.MTBookUpdate:
		var evt types.WSBookEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.bookCh, evt, f.logger, "order-book")
		}
	case types.MTTradesSnapshot, types.MTTradesUpdate:
		var evt types.WSTradeEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.tradeCh, evt, f.logger, "trades")
		}
	case types.MTHeartbeat:
		var evt types.WSHeartbeatEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.heartbeatCh, evt, f.logger, "heartbeat")
		}
	default:
		// Unknown mt is silently dropped for forward compatibility
		// (spec.md §9: "an unknown mt is silently dropped").
	}
}

func (f *MarketFeed) handleSubscribeResponse(raw []byte) {
	var resp types.WSSubscribeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		f.logger.Error("unmarshal subscribe response", "error", err)
		return
	}
	f.subMu.Lock()
	for _, item := range resp.Subs {
		f.subs[item.Stream] = item.SID
	}
	f.subMu.Unlock()
}

// sendNonBlocking delivers an event without blocking the read loop, logging
// and dropping when the consumer has fallen behind.
func sendNonBlocking[T any](ch chan T, evt T, logger *slog.Logger, stream string) {
	select {
	case ch <- evt:
	default:
		logger.Warn("event channel full, dropping event", "stream", stream)
	}
}
