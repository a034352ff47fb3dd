package restclient

// MarketConfig is one market's entry in the /pub/context response.
type MarketConfig struct {
	ID            int64   `json:"id"`
	Symbol        string  `json:"symbol"`
	PriceDecimals uint8   `json:"price_decimals"`
	LotDecimals   uint8   `json:"lot_decimals"`
	MaintMargin   float64 `json:"maint_margin"`
	TakerFeeBps   int64   `json:"taker_fee_bps"`
	MakerFeeBps   int64   `json:"maker_fee_bps"`
}

// Context is the unauthenticated protocol metadata returned by getContext.
type Context struct {
	ChainID         int64          `json:"chain_id"`
	Markets         []MarketConfig `json:"markets"`
	CollateralToken string         `json:"collateral_token"`
	Features        map[string]bool `json:"features"`
}

// Candle is one OHLCV bar.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	C float64 `json:"c"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	V float64 `json:"v"`
	N int64   `json:"n"`
}

// CandlesResponse wraps the candle window returned by getCandles.
type CandlesResponse struct {
	MT MessageTag `json:"mt"`
	At int64      `json:"at"`
	R  int64      `json:"r"`
	D  []Candle   `json:"d"`
}

// MessageTag is a loose string tag on REST responses; unlike the WebSocket's
// numeric mt discriminator, the REST layer does not need a closed dispatch
// over it.
type MessageTag string

// Page is the generic shape of every authenticated history endpoint:
// a data slice plus an opaque cursor to the next page (empty when exhausted).
type Page[T any] struct {
	D  []T    `json:"d"`
	NP string `json:"np"`
}

// FillRecord is one historical fill entry.
type FillRecord struct {
	OrderID     int64  `json:"order_id"`
	PerpetualID int64  `json:"perp_id"`
	Side        string `json:"side"`
	PriceONS    string `json:"p"`
	LotLNS      string `json:"lot"`
	FeeCNS      string `json:"fee"`
	Timestamp   int64  `json:"ts"`
}

// OrderHistoryRecord is one historical order entry.
type OrderHistoryRecord struct {
	OrderID     int64  `json:"order_id"`
	PerpetualID int64  `json:"perp_id"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	PriceONS    string `json:"p"`
	LotLNS      string `json:"lot"`
	Timestamp   int64  `json:"ts"`
}

// PositionRecord is one currently open position, batched across every
// perpetual in a single call (spec.md §4.5).
type PositionRecord struct {
	PositionID  int64  `json:"position_id"`
	PerpetualID int64  `json:"perp_id"`
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
	EntryPNS    string `json:"entry_pns"`
	LotLNS      string `json:"lot"`
	DepositCNS  string `json:"deposit"`
}

// PositionHistoryRecord is one closed-position entry.
type PositionHistoryRecord struct {
	PositionID  int64  `json:"position_id"`
	PerpetualID int64  `json:"perp_id"`
	Type        string `json:"type"`
	EntryPNS    string `json:"entry_pns"`
	ExitPNS     string `json:"exit_pns"`
	RealizedCNS string `json:"realized"`
	Timestamp   int64  `json:"ts"`
}

// AccountHistoryRecord is one account-level ledger entry (deposits,
// withdrawals, funding payments).
type AccountHistoryRecord struct {
	Kind      string `json:"kind"`
	AmountCNS string `json:"amount"`
	Timestamp int64  `json:"ts"`
}

// AuthPayload is the response to POST /v1/auth/payload.
type AuthPayload struct {
	Message  string `json:"message"`
	Nonce    string `json:"nonce"`
	IssuedAt string `json:"issued_at"`
	MAC      string `json:"mac"`
}

// AuthConnectResponse is the response to POST /v1/auth/connect.
type AuthConnectResponse struct {
	Nonce string `json:"nonce"`
}

// SignFunc signs an arbitrary message with the caller's wallet; injected by
// the caller so the REST client never holds a private key itself.
type SignFunc func(message string) (signature string, err error)
