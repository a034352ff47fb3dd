// Package statetracker maintains an in-memory view of one account's wallet,
// positions, and open orders, fed one-directionally from the trading
// socket's event channels (spec.md §4.6). It never holds a reference back
// to the feed beyond those channels (spec.md §9).
package statetracker

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/perplbot/perplbot/internal/wsclient"
	"github.com/perplbot/perplbot/pkg/types"
)

// Tracker holds the last-seen account, positions, and orders, derived from
// trading-socket events. All reads take a snapshot under RLock; derived
// quantities (available balance, total PnL, "at risk") are computed on
// demand, never cached.
type Tracker struct {
	mu sync.RWMutex

	account       types.Account
	accountAtMs   int64
	positions     map[int64]trackedPosition // keyed by position id
	orders        map[int64]types.Order     // keyed by order id
	lastUpdateMs  int64

	atRiskThreshold float64 // liquidation-distance fraction below which a position is "at risk"

	logger *slog.Logger
}

type trackedPosition struct {
	pos          types.Position
	markPNS      *big.Int
	unrealizedCNS *big.Int
	updatedAtMs  int64
}

// New creates an empty Tracker. atRiskThreshold is the fractional
// liquidation-distance below which GetAtRisk reports a position as at risk
// (e.g. 0.05 for "within 5% of the liquidation price").
func New(atRiskThreshold float64, logger *slog.Logger) *Tracker {
	return &Tracker{
		positions:       make(map[int64]trackedPosition),
		orders:          make(map[int64]types.Order),
		atRiskThreshold: atRiskThreshold,
		logger:          logger,
	}
}

// Run consumes the feed's event channels until done is closed or any of the
// channels is closed. It is the
// tracker's only coupling to the feed — a channel read, never a pointer
// back into the feed's internals.
func (t *Tracker) Run(
	walletCh <-chan types.WSWalletEvent,
	orderCh <-chan types.WSOrderEvent,
	fillCh <-chan types.WSFillEvent,
	positionCh <-chan types.WSPositionEvent,
	heartbeatCh <-chan types.WSHeartbeatEvent,
	done <-chan struct{},
) {
	for {
		select {
		case <-done:
			return
		case evt, ok := <-walletCh:
			if !ok {
				return
			}
			t.applyWallet(evt)
		case evt, ok := <-orderCh:
			if !ok {
				return
			}
			t.applyOrder(evt)
		case evt, ok := <-fillCh:
			if !ok {
				return
			}
			t.applyFill(evt)
		case evt, ok := <-positionCh:
			if !ok {
				return
			}
			t.applyPosition(evt)
		case _, ok := <-heartbeatCh:
			if !ok {
				return
			}
			t.touch()
		}
	}
}

// RunFrom wires a Tracker onto a wsclient.TradingFeed's public channel
// accessors directly, for callers that already hold a running feed.
func (t *Tracker) RunFrom(feed *wsclient.TradingFeed, done <-chan struct{}) {
	t.Run(feed.WalletEvents(), feed.OrderEvents(), feed.FillEvents(), feed.PositionEvents(), feed.HeartbeatEvents(), done)
}

func parseBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func (t *Tracker) applyWallet(evt types.WSWalletEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.account = types.Account{
		ID:               evt.AccountID,
		Address:          evt.Address,
		BalanceCNS:       parseBigInt(evt.BalanceCNS),
		LockedBalanceCNS: parseBigInt(evt.LockedBalanceCNS),
	}
	t.accountAtMs = nowMs()
	t.lastUpdateMs = t.accountAtMs
}

// orderStatusFromString maps the wire status strings the trading socket
// sends on order events to the OrderStatus enum.
func orderStatusFromString(s string) types.OrderStatus {
	switch s {
	case "pending":
		return types.StatusPending
	case "open":
		return types.StatusOpen
	case "partially_filled":
		return types.StatusPartiallyFilled
	case "filled":
		return types.StatusFilled
	case "cancelled":
		return types.StatusCancelled
	case "rejected":
		return types.StatusRejected
	case "expired":
		return types.StatusExpired
	default:
		return types.StatusPending
	}
}

// applyOrder implements spec.md §4.6's orders map rule: entries are deleted
// when the remove flag is set, or status falls outside {Open,
// PartiallyFilled}.
func (t *Tracker) applyOrder(evt types.WSOrderEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := orderStatusFromString(evt.Status)
	if evt.Remove || (status != types.StatusOpen && status != types.StatusPartiallyFilled) {
		delete(t.orders, evt.OrderID)
	} else {
		t.orders[evt.OrderID] = types.Order{
			ID:          evt.OrderID,
			PerpetualID: evt.PerpetualID,
			AccountID:   evt.AccountID,
			PricePNS:    parseBigInt(evt.PriceONS),
			LotLNS:      parseBigInt(evt.LotLNS),
			Status:      status,
		}
	}
	t.lastUpdateMs = nowMs()
}

// applyFill only refreshes the tracker's last-update time; position state is only ever updated from position events, per
// spec.md §4.6 — fills do not carry enough state to reconstruct a position.
func (t *Tracker) applyFill(evt types.WSFillEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUpdateMs = nowMs()
}

// applyPosition implements spec.md §4.6's positions map rule: entries with
// status != Open are deleted on update.
func (t *Tracker) applyPosition(evt types.WSPositionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if orderStatusFromString(evt.Status) != types.StatusOpen {
		delete(t.positions, evt.PositionID)
		t.lastUpdateMs = nowMs()
		return
	}

	t.positions[evt.PositionID] = trackedPosition{
		pos: types.Position{
			ID:            evt.PositionID,
			PerpetualID:   evt.PerpetualID,
			AccountID:     evt.AccountID,
			Type:          positionTypeFromString(evt.Type),
			EntryPricePNS: parseBigInt(evt.EntryPNS),
			DepositCNS:    parseBigInt(evt.DepositCNS),
			LotLNS:        parseBigInt(evt.LotLNS),
		},
		updatedAtMs: nowMs(),
	}
	t.lastUpdateMs = nowMs()
}

func positionTypeFromString(s string) types.PositionType {
	switch s {
	case "LONG":
		return types.PositionLong
	case "SHORT":
		return types.PositionShort
	default:
		return types.PositionNone
	}
}

func (t *Tracker) touch() {
	t.mu.Lock()
	t.lastUpdateMs = nowMs()
	t.mu.Unlock()
}

// Account returns the last-seen wallet account record.
func (t *Tracker) Account() types.Account {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.account
}

// Available returns balance minus locked, never negative (spec.md §4.6).
func (t *Tracker) Available() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.account.Available()
}

// Positions returns a snapshot of every currently open position.
func (t *Tracker) Positions() []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Position, 0, len(t.positions))
	for _, tp := range t.positions {
		out = append(out, tp.pos)
	}
	return out
}

// Orders returns a snapshot of every currently tracked open/partially-filled
// order.
func (t *Tracker) Orders() []types.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	return out
}

// TotalUnrealizedPnL sums each tracked position's unrealized PnL, as last
// recorded by SetMarkPrice.
func (t *Tracker) TotalUnrealizedPnL() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := big.NewInt(0)
	for _, tp := range t.positions {
		if tp.unrealizedCNS != nil {
			total.Add(total, tp.unrealizedCNS)
		}
	}
	return total
}

// TotalEquity is balance + total unrealized PnL (spec.md §4.6).
func (t *Tracker) TotalEquity() *big.Int {
	bal := t.Account().BalanceCNS
	if bal == nil {
		bal = new(big.Int)
	}
	return new(big.Int).Add(bal, t.TotalUnrealizedPnL())
}

// SetMarkPrice records a fresh mark price for a position, recomputing its
// unrealized PnL. The contract or state tracker's caller drives this from
// whatever market-state feed it's also subscribed to; the tracker itself
// does not fetch prices.
func (t *Tracker) SetMarkPrice(positionID int64, markPNS *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp, ok := t.positions[positionID]
	if !ok {
		return
	}

	diff := new(big.Int).Sub(markPNS, tp.pos.EntryPricePNS)
	if tp.pos.Type == types.PositionShort {
		diff.Neg(diff)
	}
	unrealized := new(big.Int).Mul(diff, tp.pos.LotLNS)

	tp.markPNS = markPNS
	tp.unrealizedCNS = unrealized
	tp.updatedAtMs = nowMs()
	t.positions[positionID] = tp
}

// AtRisk reports whether any tracked position's liquidation distance falls
// below the configured threshold, given a liquidation-distance function
// supplied by the caller (typically built on internal/liqsim's closed-form
// estimate).
func (t *Tracker) AtRisk(liquidationDistance func(types.Position, *big.Int) float64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tp := range t.positions {
		if tp.markPNS == nil {
			continue
		}
		if liquidationDistance(tp.pos, tp.markPNS) < t.atRiskThreshold {
			return true
		}
	}
	return false
}

// IsStale reports whether the tracker hasn't observed any event within
// maxAgeMs, meaning a caller should force a contract refresh (spec.md §4.6).
func (t *Tracker) IsStale(maxAgeMs int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.lastUpdateMs == 0 {
		return true
	}
	return nowMs()-t.lastUpdateMs > maxAgeMs
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
