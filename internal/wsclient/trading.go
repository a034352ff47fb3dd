package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/perplbot/perplbot/pkg/types"
)

const authTimeout = 10 * time.Second // spec.md §4.3: bounded at 10s

// TradingFeed is the authenticated trading socket (spec.md §4.3): order
// submission and the orders/fills/positions/wallet streams. Authentication
// is re-sent first on every reconnect, before any stream resubscription.
type TradingFeed struct {
	t       *transport
	chainID int64
	session func() types.Session // REST session lookup, read fresh on every (re)connect

	subMu sync.RWMutex
	subs  map[string]int64

	rq atomic.Int64 // strictly increasing per-client request id

	walletCh    chan types.WSWalletEvent
	orderCh     chan types.WSOrderEvent
	fillCh      chan types.WSFillEvent
	positionCh  chan types.WSPositionEvent
	heartbeatCh chan types.WSHeartbeatEvent

	authMu   sync.Mutex
	authCh   chan struct{} // closed once a wallet snapshot confirms auth for the current connection

	logger *slog.Logger
}

// NewTradingFeed creates a trading feed dialing wsURL + "/ws/v1/trading".
// session is called fresh on every connect/reconnect to pick up the REST
// client's current nonce and cookie.
func NewTradingFeed(wsURL string, chainID int64, session func() types.Session, logger *slog.Logger) *TradingFeed {
	logger = logger.With("component", "ws_trading")
	f := &TradingFeed{
		chainID:     chainID,
		session:     session,
		subs:        make(map[string]int64),
		walletCh:    make(chan types.WSWalletEvent, eventBufSize),
		orderCh:     make(chan types.WSOrderEvent, eventBufSize),
		fillCh:      make(chan types.WSFillEvent, eventBufSize),
		positionCh:  make(chan types.WSPositionEvent, eventBufSize),
		heartbeatCh: make(chan types.WSHeartbeatEvent, eventBufSize),
		logger:      logger,
	}
	f.t = newTransport(wsURL, logger)
	f.t.onConnect = f.onConnect
	f.t.dispatch = f.dispatchMessage
	return f
}

func (f *TradingFeed) Run(ctx context.Context) error { return f.t.Run(ctx) }
func (f *TradingFeed) Close() error                  { return f.t.Close() }

// Lifecycle returns connect/disconnect/auth-expired/fatal notifications.
func (f *TradingFeed) Lifecycle() <-chan LifecycleEvent { return f.t.Events() }

func (f *TradingFeed) WalletEvents() <-chan types.WSWalletEvent       { return f.walletCh }
func (f *TradingFeed) OrderEvents() <-chan types.WSOrderEvent         { return f.orderCh }
func (f *TradingFeed) FillEvents() <-chan types.WSFillEvent           { return f.fillCh }
func (f *TradingFeed) PositionEvents() <-chan types.WSPositionEvent   { return f.positionCh }
func (f *TradingFeed) HeartbeatEvents() <-chan types.WSHeartbeatEvent { return f.heartbeatCh }

// NextRQ returns the next strictly increasing client request id.
func (f *TradingFeed) NextRQ() int64 { return f.rq.Add(1) }

// onConnect re-authenticates first, then resubscribes in a single batch,
// per spec.md §4.3 ("if the URL was the trading endpoint, the
// authentication message is re-sent first").
func (f *TradingFeed) onConnect(ctx context.Context) error {
	f.authMu.Lock()
	f.authCh = make(chan struct{})
	f.authMu.Unlock()

	sess := f.session()
	if !sess.Valid() {
		return fmt.Errorf("wsclient: trading feed requires a valid REST session")
	}

	authFrame := types.WSTradingAuth{
		MT:      types.MTTradingAuth,
		ChainID: f.chainID,
		Nonce:   sess.Nonce,
		Ses:     uuid.NewString(),
	}
	if err := f.t.writeJSON(authFrame); err != nil {
		return fmt.Errorf("send auth frame: %w", err)
	}

	select {
	case <-f.authChannel():
	case <-time.After(authTimeout):
		return ErrAuthTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

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

func (f *TradingFeed) authChannel() chan struct{} {
	f.authMu.Lock()
	defer f.authMu.Unlock()
	return f.authCh
}

func (f *TradingFeed) confirmAuth() {
	f.authMu.Lock()
	defer f.authMu.Unlock()
	select {
	case <-f.authCh:
		// already confirmed
	default:
		close(f.authCh)
	}
}

// Subscribe tracks stream names for resubscription on reconnect and issues
// the request immediately.
func (f *TradingFeed) Subscribe(streams []string) error {
	f.subMu.Lock()
	for _, s := range streams {
		if _, ok := f.subs[s]; !ok {
			f.subs[s] = 0
		}
	}
	f.subMu.Unlock()
	return f.sendSubscribeRequest(streams, true)
}

func (f *TradingFeed) sendSubscribeRequest(streams []string, subscribe bool) error {
	items := make([]types.WSSubRequestItem, len(streams))
	for i, s := range streams {
		items[i] = types.WSSubRequestItem{Stream: s, Subscribe: subscribe}
	}
	return f.t.writeJSON(types.WSSubscribeRequest{MT: types.MTSubscribeRequest, Subs: items})
}

// SubmitOrder sends an order request (mt:22) and returns the rq assigned to
// it; this is the fire-and-forget variant (spec.md §9: "order submission
// has a fire-and-forget variant (rq returned immediately)").
func (f *TradingFeed) SubmitOrder(req types.WSOrderRequest) (int64, error) {
	req.MT = types.MTOrderRequest
	req.RQ = f.NextRQ()
	if err := f.t.writeJSON(req); err != nil {
		return req.RQ, err
	}
	return req.RQ, nil
}

// AwaitOrderAck submits an order and blocks until an orders update accepted
// by matches is observed or ctx is done (spec.md §9: "an await-on-ack
// variant"). Only the orders stream is read; fills updates are not
// consulted. Callers pass a predicate since the ack's order id
// is server-assigned and not known until the first update arrives.
func (f *TradingFeed) AwaitOrderAck(ctx context.Context, req types.WSOrderRequest, matches func(types.WSOrderEvent) bool) (int64, types.WSOrderEvent, error) {
	rq, err := f.SubmitOrder(req)
	if err != nil {
		return rq, types.WSOrderEvent{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return rq, types.WSOrderEvent{}, ctx.Err()
		case evt := <-f.orderCh:
			if matches(evt) {
				return rq, evt, nil
			}
		}
	}
}

func (f *TradingFeed) dispatchMessage(raw []byte) {
	mt, err := envelopeMT(raw)
	if err != nil {
		f.logger.Debug("ignoring malformed ws frame", "error", err)
		return
	}

	switch mt {
	case types.MTPong:
	case types.MTSubscribeResponse:
		f.handleSubscribeResponse(raw)
	case types.MTWalletSnapshot:
		var evt types.WSWalletEvent
		if json.Unmarshal(raw, &evt) == nil {
			f.confirmAuth()
			sendNonBlocking(f.walletCh, evt, f.logger, "wallet")
		}
	case types.MTOrdersSnapshot, types.MTOrdersUpdate:
		var evt types.WSOrderEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.orderCh, evt, f.logger, "orders")
		}
	case types.MTFillsUpdate:
		var evt types.WSFillEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.fillCh, evt, f.logger, "fills")
		}
	case types.MTPositionsSnapshot, types.MTPositionsUpdate:
		var evt types.WSPositionEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.positionCh, evt, f.logger, "positions")
		}
	case types.MTHeartbeat:
		var evt types.WSHeartbeatEvent
		if json.Unmarshal(raw, &evt) == nil {
			sendNonBlocking(f.heartbeatCh, evt, f.logger, "heartbeat")
		}
	default:
	}
}

func (f *TradingFeed) handleSubscribeResponse(raw []byte) {
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

// NewOrderRequest builds a WSOrderRequest for an open, matching the literal
// test vectors in spec.md §8 #4: a nil price produces an
// ImmediateOrCancel market order (fl includes FlagImmediateOrCancel); a
// non-nil price produces a GTC limit order.
func NewOrderRequest(orderType types.WSOrderType, perpID, accountID int64, sizeLNS string, price *string, leverageHundredths int64, lastExecBlock uint64) types.WSOrderRequest {
	flags := types.FlagGTC
	if price == nil {
		flags = types.FlagImmediateOrCancel
	}
	return types.WSOrderRequest{
		T:         orderType,
		FL:        flags,
		PerpID:    perpID,
		AccountID: accountID,
		P:         price,
		Size:      sizeLNS,
		Leverage:  leverageHundredths,
		LB:        int64(lastExecBlock),
	}
}

// priceString formats a human price as the decimal string the WSOrderRequest
// wire shape expects.
func priceString(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
