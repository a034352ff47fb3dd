// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for PerplBot — perpetuals, accounts,
// positions, orders, fills, and WebSocket event payloads. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// PositionType is the direction of an open position.
type PositionType int

const (
	PositionNone PositionType = iota
	PositionLong
	PositionShort
)

func (p PositionType) String() string {
	switch p {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// OrderType enumerates the order lifecycles the contract accepts.
// Values match the contract's execOrder descriptor type codes (§4.1).
type OrderType int

const (
	OrderOpenLong OrderType = iota
	OrderOpenShort
	OrderCloseLong
	OrderCloseShort
	OrderCancel
	OrderChange
	OrderIncreasePositionCollateral
)

// WSOrderType enumerates the WebSocket trading-socket order-type codes,
// which are numbered differently from the contract's descriptor codes.
type WSOrderType int

const (
	WSOpenLong WSOrderType = iota + 1
	WSOpenShort
	WSCloseLong
	WSCloseShort
	WSCancel
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus int

const (
	StatusPending OrderStatus = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
)

// IsTerminal reports whether the status removes the order from the open set.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// OrderFlags are ORed bit flags carried on a WebSocket order request.
type OrderFlags int

const (
	FlagGTC               OrderFlags = 0
	FlagPostOnly          OrderFlags = 1 << 0
	FlagFillOrKill        OrderFlags = 1 << 1
	FlagImmediateOrCancel OrderFlags = 1 << 2
)

// LiquiditySide identifies which side of a fill supplied resting liquidity.
type LiquiditySide int

const (
	LiquidityMaker LiquiditySide = iota
	LiquidityTaker
)

// ————————————————————————————————————————————————————————————————————————
// Scaled-integer quantities (§3)
// ————————————————————————————————————————————————————————————————————————
//
// PNS, LNS, CNS and ONS are plain *big.Int aliases. The names document which
// scale a value carries; being aliases, they are interchangeable to the
// compiler, which does not stop an LNS being passed where a CNS is expected.
// The wire
// codec (internal/wire) is the only package that converts between them and
// display floats.

type PNS = *big.Int // price scaled by 10^priceDecimals
type LNS = *big.Int // lot/size scaled by 10^lotDecimals
type CNS = *big.Int // collateral amount scaled by 10^6
type ONS = *big.Int // price offset from basePricePNS

// LeverageHundredths is leverage * 100 as an integer (e.g. 1000 = 10x).
type LeverageHundredths int64

// ————————————————————————————————————————————————————————————————————————
// Entities (§3)
// ————————————————————————————————————————————————————————————————————————

// Perpetual is read-only market metadata for one perpetual-futures market.
type Perpetual struct {
	ID            int64
	Name          string
	Symbol        string
	PriceDecimals uint8
	LotDecimals   uint8
	BasePricePNS  PNS
	MarkPNS       PNS
	OraclePNS     PNS
	MarkTimestamp   time.Time
	OracleTimestamp time.Time

	FundingRatePer100k int64 // signed; percentage = value/1000

	OpenInterestLongLNS  LNS
	OpenInterestShortLNS LNS

	MaxBidPriceONS  ONS
	MaxAskPriceONS  ONS
	TotalOrderCount int64

	Paused bool
}

// Account is a chain-identified balance holder — either the owner's EOA or
// its delegated proxy.
type Account struct {
	ID               int64
	Address          string
	BalanceCNS       CNS
	LockedBalanceCNS CNS
}

// Available returns balance minus locked, never negative.
func (a Account) Available() CNS {
	avail := new(big.Int).Sub(a.BalanceCNS, a.LockedBalanceCNS)
	if avail.Sign() < 0 {
		return big.NewInt(0)
	}
	return avail
}

// Position is keyed by (perpetual id, account id).
type Position struct {
	ID               int64
	PerpetualID      int64
	AccountID        int64
	Type             PositionType
	EntryPricePNS    PNS
	LotLNS           LNS
	DepositCNS       CNS
	RealizedPnLCNS   CNS
	UnrealizedPnLCNS CNS
}

// Order is identified by a contract-assigned 64-bit order id. Order ids
// returned by the REST API are a distinct namespace and must never be
// substituted for a contract order id (§3 invariants).
type Order struct {
	ID                int64
	PerpetualID       int64
	AccountID         int64
	Type              OrderType
	PricePNS          PNS
	LotLNS            LNS
	Leverage          LeverageHundredths
	PostOnly          bool
	FillOrKill        bool
	ImmediateOrCancel bool
	ExpiryBlock       uint64
	Status            OrderStatus
}

// Fill is an immutable execution event.
type Fill struct {
	OrderID     int64
	PerpetualID int64
	AccountID   int64
	Side        LiquiditySide
	PricePNS    PNS
	LotLNS      LNS
	FeeCNS      CNS
	BlockNumber uint64
	LogIndex    uint32
}

// Session is the authenticated state of a REST+WebSocket pair.
type Session struct {
	Nonce         string
	Cookie        string
	Authenticated bool
}

// Valid reports whether both halves of the session credential are present.
// Neither the cookie nor the nonce is valid presented alone (§3 invariants).
func (s Session) Valid() bool {
	return s.Authenticated && s.Nonce != "" && s.Cookie != ""
}

// Subscription is keyed by a stream name, e.g. "order-book@42".
type Subscription struct {
	Stream string
	ID     int64 // server-assigned subscription id, 0 until confirmed
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// BookLevel is a single price level reconstructed from the on-chain walk.
type BookLevel struct {
	PriceONS  ONS
	VolumeLNS LNS
}

// BookView is the reconstructed book for one perpetual, closest-to-spread
// levels only (§4.4 order-book walk).
type BookView struct {
	PerpetualID int64
	Bids        []BookLevel
	Asks        []BookLevel
	TotalOrders int64
	SpreadONS   ONS // nil when the book is empty
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket message envelope (§4.3)
// ————————————————————————————————————————————————————————————————————————

// MessageType is the `mt` discriminator on every WebSocket frame.
type MessageType int

const (
	MTPing              MessageType = 1
	MTPong              MessageType = 2
	MTTradingAuth       MessageType = 4
	MTSubscribeRequest  MessageType = 5
	MTSubscribeResponse MessageType = 6
	MTMarketState       MessageType = 9
	MTBookSnapshot      MessageType = 15
	MTBookUpdate        MessageType = 16
	MTTradesSnapshot    MessageType = 17
	MTTradesUpdate      MessageType = 18
	MTWalletSnapshot    MessageType = 19
	MTOrderRequest      MessageType = 22
	MTOrdersSnapshot    MessageType = 23
	MTOrdersUpdate      MessageType = 24
	MTFillsUpdate       MessageType = 25
	MTPositionsSnapshot MessageType = 26
	MTPositionsUpdate   MessageType = 27
	MTHeartbeat         MessageType = 100
)

// WSEnvelope is unmarshalled first to discriminate on `mt` before decoding
// the typed payload (§9: "closed sum over the enumerated message types").
type WSEnvelope struct {
	MT MessageType `json:"mt"`
}

// WSSubscribeRequest is sent to subscribe/unsubscribe from named streams.
type WSSubscribeRequest struct {
	MT   MessageType        `json:"mt"`
	Subs []WSSubRequestItem `json:"subs"`
}

type WSSubRequestItem struct {
	Stream    string `json:"stream"`
	Subscribe bool   `json:"subscribe"`
}

// WSSubscribeResponse confirms a subscription with a server-assigned id.
type WSSubscribeResponse struct {
	MT   MessageType         `json:"mt"`
	Subs []WSSubResponseItem `json:"subs"`
}

type WSSubResponseItem struct {
	Stream string `json:"stream"`
	SID    int64  `json:"sid"`
}

// WSTradingAuth is the trading-socket authentication frame (mt:4).
type WSTradingAuth struct {
	MT      MessageType `json:"mt"`
	ChainID int64       `json:"chain_id"`
	Nonce   string      `json:"nonce"`
	Ses     string      `json:"ses"`
}

// WSOrderRequest is an outbound order submission (mt:22).
type WSOrderRequest struct {
	MT        MessageType `json:"mt"`
	RQ        int64       `json:"rq"` // client-chosen, strictly increasing
	T         WSOrderType `json:"t"`
	FL        OrderFlags  `json:"fl"`
	PerpID    int64       `json:"perp_id"`
	AccountID int64       `json:"account_id"`
	P         *string     `json:"p,omitempty"` // price as decimal string; absent = market order
	Size      string      `json:"size"`
	Leverage  int64       `json:"leverage,omitempty"`
	LP        int64       `json:"lp,omitempty"` // linked position id, required for closes
	LB        int64       `json:"lb"`           // last-execution-block bound
}

// WSMarketStateEvent carries an updated mark/oracle/funding snapshot.
type WSMarketStateEvent struct {
	PerpetualID int64  `json:"perp_id"`
	MarkPNS     string `json:"mark_pns"`
	OraclePNS   string `json:"oracle_pns"`
	FundingRate int64  `json:"funding_rate"`
	Timestamp   int64  `json:"ts"`
}

// WSBookEvent is an L2 book snapshot or incremental update.
type WSBookEvent struct {
	PerpetualID int64         `json:"perp_id"`
	Bids        []WSBookLevel `json:"bids"`
	Asks        []WSBookLevel `json:"asks"`
	Timestamp   int64         `json:"ts"`
}

type WSBookLevel struct {
	PriceONS string `json:"p"`
	SizeLNS  string `json:"s"`
}

// WSTradeEvent is a public trade tape entry.
type WSTradeEvent struct {
	PerpetualID int64  `json:"perp_id"`
	PriceONS    string `json:"p"`
	SizeLNS     string `json:"s"`
	Side        string `json:"side"`
	Timestamp   int64  `json:"ts"`
}

// WSWalletEvent is the wallet snapshot delivered on successful trading-socket
// authentication (mt:19).
type WSWalletEvent struct {
	AccountID        int64  `json:"account_id"`
	Address          string `json:"address"`
	BalanceCNS       string `json:"balance_cns"`
	LockedBalanceCNS string `json:"locked_balance_cns"`
}

// WSOrderEvent is an orders snapshot/update entry.
type WSOrderEvent struct {
	OrderID     int64  `json:"order_id"`
	PerpetualID int64  `json:"perp_id"`
	AccountID   int64  `json:"account_id"`
	Status      string `json:"status"`
	Remove      bool   `json:"r"`
	PriceONS    string `json:"p"`
	LotLNS      string `json:"lot"`
}

// WSFillEvent is a fills-update entry.
type WSFillEvent struct {
	OrderID     int64  `json:"order_id"`
	PerpetualID int64  `json:"perp_id"`
	AccountID   int64  `json:"account_id"`
	Side        string `json:"side"`
	PriceONS    string `json:"p"`
	LotLNS      string `json:"lot"`
	FeeCNS      string `json:"fee"`
}

// WSPositionEvent is a positions snapshot/update entry.
type WSPositionEvent struct {
	PositionID  int64  `json:"position_id"`
	PerpetualID int64  `json:"perp_id"`
	AccountID   int64  `json:"account_id"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	EntryPNS    string `json:"entry_pns"`
	LotLNS      string `json:"lot"`
	DepositCNS  string `json:"deposit"`
}

// WSHeartbeatEvent carries the chain's current head block.
type WSHeartbeatEvent struct {
	ChainID   int64 `json:"chain_id"`
	HeadBlock int64 `json:"head_block"`
	Timestamp int64 `json:"ts"`
}
