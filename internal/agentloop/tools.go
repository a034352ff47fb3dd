package agentloop

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/perplbot/perplbot/internal/liqsim"
	"github.com/perplbot/perplbot/internal/wire"
	"github.com/perplbot/perplbot/pkg/types"
)

func objectSchema(properties map[string]any, required []string) anthropic.ToolInputSchemaParam {
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func numberProp(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
func stringProp(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func integerProp(desc string) map[string]any { return map[string]any{"type": "integer", "description": desc} }

func perpID(input map[string]any) (int64, error) {
	v, ok := input["perpetual_id"]
	if !ok {
		return 0, fmt.Errorf("missing perpetual_id")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("perpetual_id must be a number")
	}
	return int64(f), nil
}

// catalogue is the fixed tool set offered to the model every round
// (spec.md §4.8). Each entry names its dispatch handler directly so
// adding a tool never requires touching the round loop.
func catalogue() []toolDef {
	return []toolDef{
		{
			name:        "account_summary",
			description: "Return balance, locked balance, available balance, and total equity for the operator's account.",
			inputSchema: objectSchema(nil, nil),
			handler:     toolAccountSummary,
		},
		{
			name:        "positions",
			description: "List all open positions with entry price, size, side, deposit, and unrealized PnL.",
			inputSchema: objectSchema(nil, nil),
			handler:     toolPositions,
		},
		{
			name:        "markets",
			description: "List all configured perpetual markets with their current mark price and funding rate.",
			inputSchema: objectSchema(nil, nil),
			handler:     toolMarkets,
		},
		{
			name:        "open_orders",
			description: "List open orders, optionally filtered to one market.",
			inputSchema: objectSchema(map[string]any{"perpetual_id": numberProp("optional perpetual id filter")}, nil),
			handler:     toolOpenOrders,
		},
		{
			name:        "funding_info",
			description: "Return the current funding rate and open interest for a market.",
			inputSchema: objectSchema(map[string]any{"perpetual_id": numberProp("perpetual id")}, []string{"perpetual_id"}),
			handler:     toolFundingInfo,
		},
		{
			name:        "liquidation_analysis",
			description: "Estimate and, when a fork simulator is configured, verify the liquidation price for the account's open position in a market.",
			inputSchema: objectSchema(map[string]any{"perpetual_id": numberProp("perpetual id")}, []string{"perpetual_id"}),
			handler:     toolLiquidationAnalysis,
		},
		{
			name:        "trading_fees",
			description: "Return the maker and taker fee for a market.",
			inputSchema: objectSchema(map[string]any{"perpetual_id": numberProp("perpetual id")}, []string{"perpetual_id"}),
			handler:     toolTradingFees,
		},
		{
			name:        "order_book",
			description: "Return the current order book for a market, optionally limited to a depth of levels per side.",
			inputSchema: objectSchema(map[string]any{
				"perpetual_id": numberProp("perpetual id"),
				"depth":        integerProp("optional max levels per side"),
			}, []string{"perpetual_id"}),
			handler: toolOrderBook,
		},
		{
			name:        "recent_trades",
			description: "Return the account's most recent fills, optionally limited to a market.",
			inputSchema: objectSchema(map[string]any{
				"perpetual_id": numberProp("optional perpetual id filter"),
				"limit":        integerProp("optional max number of fills"),
			}, nil),
			handler: toolRecentTrades,
		},
		{
			name:        "debug_transaction",
			description: "Decode a transaction's receipt and, if it reverted, return its execution trace.",
			inputSchema: objectSchema(map[string]any{"hash": stringProp("transaction hash")}, []string{"hash"}),
			handler:     toolDebugTransaction,
		},
		{
			name:        "simulate_strategy",
			description: "Simulate a grid or Avellaneda-Stoikov market-making strategy for a market without sending any orders.",
			inputSchema: objectSchema(map[string]any{
				"perpetual_id": numberProp("perpetual id"),
				"strategy":     stringProp("\"grid\" or \"mm\""),
				"size":         numberProp("per-level or per-quote size in display units"),
				"leverage":     numberProp("leverage, e.g. 5 for 5x"),
			}, []string{"perpetual_id", "strategy", "size", "leverage"}),
			handler: toolSimulateStrategy,
		},
		{
			name:        "dry_run_trade",
			description: "Compute the expected mark price, notional, required margin, and taker fee for a hypothetical order without submitting it.",
			inputSchema: objectSchema(map[string]any{
				"perpetual_id": numberProp("perpetual id"),
				"side":         stringProp("\"long\" or \"short\""),
				"size":         numberProp("order size in display units"),
				"leverage":     numberProp("leverage, e.g. 5 for 5x"),
			}, []string{"perpetual_id", "side", "size", "leverage"}),
			handler: toolDryRunTrade,
		},
		{
			name:                 "open_position",
			description:          "Submit a market order to open or increase a position. Requires explicit user confirmation.",
			requiresConfirmation: true,
			inputSchema: objectSchema(map[string]any{
				"perpetual_id": numberProp("perpetual id"),
				"side":         stringProp("\"long\" or \"short\""),
				"size":         numberProp("order size in display units"),
				"leverage":     numberProp("leverage, e.g. 5 for 5x"),
			}, []string{"perpetual_id", "side", "size", "leverage"}),
			handler: toolOpenPosition,
		},
		{
			name:                 "close_position",
			description:          "Submit a market order that fully closes an open position. Requires explicit user confirmation.",
			requiresConfirmation: true,
			inputSchema: objectSchema(map[string]any{"perpetual_id": numberProp("perpetual id")}, []string{"perpetual_id"}),
			handler: toolClosePosition,
		},
		{
			name:                 "cancel_order",
			description:          "Cancel an open order by id. Requires explicit user confirmation.",
			requiresConfirmation: true,
			inputSchema: objectSchema(map[string]any{"order_id": numberProp("contract order id")}, []string{"order_id"}),
			handler: toolCancelOrder,
		},
	}
}

func toolAccountSummary(ctx context.Context, d *Deps, _ map[string]any) (any, error) {
	acct := d.Tracker.Account()
	balance := wire.CNSToAmount(acct.BalanceCNS)
	available := wire.CNSToAmount(d.Tracker.Available())
	equity := wire.CNSToAmount(d.Tracker.TotalEquity())
	pnl := wire.CNSToAmount(d.Tracker.TotalUnrealizedPnL())
	return map[string]any{
		"balance":        balance,
		"locked_balance": wire.CNSToAmount(acct.LockedBalanceCNS),
		"available":      available,
		"total_equity":   equity,
		"unrealized_pnl": pnl,
		"_report":        accountSummaryReport(balance, available, equity, pnl),
	}, nil
}

func toolPositions(ctx context.Context, d *Deps, _ map[string]any) (any, error) {
	positions := d.Tracker.Positions()
	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		meta := d.Perpetuals[p.PerpetualID]
		out = append(out, map[string]any{
			"perpetual_id":    p.PerpetualID,
			"symbol":          meta.Symbol,
			"side":            p.Type.String(),
			"entry_price":     wire.PNSToPrice(p.EntryPricePNS, meta.PriceDecimals),
			"size":            wire.LNSToLot(p.LotLNS, meta.LotDecimals),
			"deposit":         wire.CNSToAmount(p.DepositCNS),
			"unrealized_pnl":  wire.CNSToAmount(p.UnrealizedPnLCNS),
			"realized_pnl":    wire.CNSToAmount(p.RealizedPnLCNS),
		})
	}
	return out, nil
}

func toolMarkets(ctx context.Context, d *Deps, _ map[string]any) (any, error) {
	out := make([]map[string]any, 0, len(d.Perpetuals))
	for id, meta := range d.Perpetuals {
		info, err := d.Router.GetPerpetualInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"perpetual_id":    id,
			"symbol":          meta.Symbol,
			"mark_price":      wire.PNSToPrice(info.MarkPNS, meta.PriceDecimals),
			"oracle_price":    wire.PNSToPrice(info.OraclePNS, meta.PriceDecimals),
			"funding_rate":    float64(info.FundingRatePer100k) / 100000,
			"paused":          info.Paused,
		})
	}
	return out, nil
}

var orderTypeNames = map[types.OrderType]string{
	types.OrderOpenLong:                   "open_long",
	types.OrderOpenShort:                  "open_short",
	types.OrderCloseLong:                  "close_long",
	types.OrderCloseShort:                 "close_short",
	types.OrderCancel:                     "cancel",
	types.OrderChange:                     "change",
	types.OrderIncreasePositionCollateral: "increase_position_collateral",
}

var orderStatusNames = map[types.OrderStatus]string{
	types.StatusPending:         "pending",
	types.StatusOpen:            "open",
	types.StatusPartiallyFilled: "partially_filled",
	types.StatusFilled:          "filled",
	types.StatusCancelled:       "cancelled",
	types.StatusRejected:        "rejected",
}

func toolOpenOrders(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	orders := d.Tracker.Orders()
	filterID, hasFilter := int64(0), false
	if id, err := perpID(input); err == nil {
		filterID, hasFilter = id, true
	}
	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		if hasFilter && o.PerpetualID != filterID {
			continue
		}
		meta := d.Perpetuals[o.PerpetualID]
		out = append(out, map[string]any{
			"order_id":     o.ID,
			"perpetual_id": o.PerpetualID,
			"type":         orderTypeNames[o.Type],
			"price":        wire.PNSToPrice(o.PricePNS, meta.PriceDecimals),
			"size":         wire.LNSToLot(o.LotLNS, meta.LotDecimals),
			"status":       orderStatusNames[o.Status],
		})
	}
	return out, nil
}

func toolFundingInfo(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	info, err := d.Router.GetPerpetualInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"perpetual_id":            id,
		"funding_rate_per_100k":   info.FundingRatePer100k,
		"open_interest_long":      wire.LNSToLot(info.OpenInterestLongLNS, d.Perpetuals[id].LotDecimals),
		"open_interest_short":     wire.LNSToLot(info.OpenInterestShortLNS, d.Perpetuals[id].LotDecimals),
	}, nil
}

func toolTradingFees(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	taker, err := d.Contract.GetTakerFee(ctx, id)
	if err != nil {
		return nil, err
	}
	maker, err := d.Contract.GetMakerFee(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"perpetual_id": id, "taker_fee_bps": taker, "maker_fee_bps": maker}, nil
}

func toolOrderBook(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	info, err := d.Router.GetPerpetualInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := d.Contract.GetBookView(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := d.Perpetuals[id]
	depth := len(view.Bids)
	if len(view.Asks) > depth {
		depth = len(view.Asks)
	}
	if v, ok := input["depth"].(float64); ok && int(v) > 0 && int(v) < depth {
		depth = int(v)
	}
	renderLevel := func(level types.BookLevel) map[string]any {
		price := wire.PNSFromOns(level.PriceONS, info.BasePricePNS)
		return map[string]any{
			"price": wire.PNSToPrice(price, meta.PriceDecimals),
			"size":  wire.LNSToLot(level.VolumeLNS, meta.LotDecimals),
		}
	}
	// Bids are closest-to-spread first (contractclient.GetBookView), so the
	// first depth entries are the ones nearest the spread.
	bids := make([]map[string]any, 0, depth)
	for i := 0; i < depth && i < len(view.Bids); i++ {
		bids = append(bids, renderLevel(view.Bids[i]))
	}
	// Asks are farthest-from-spread first, with the closest levels trailing
	// (GetBookView trims to asks[len(asks)-maxBookLevels:]), so depth must be
	// taken from the end and walked backward to list nearest-to-spread first.
	asks := make([]map[string]any, 0, depth)
	for i := len(view.Asks) - 1; i >= 0 && len(asks) < depth; i-- {
		asks = append(asks, renderLevel(view.Asks[i]))
	}
	return map[string]any{
		"perpetual_id": id,
		"bids":         bids,
		"asks":         asks,
	}, nil
}

func toolRecentTrades(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	fills, err := d.Router.GetFillHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	limit := len(fills)
	if v, ok := input["limit"].(float64); ok && int(v) > 0 && int(v) < limit {
		limit = int(v)
	}
	filterID, hasFilter := int64(0), false
	if id, err := perpID(input); err == nil {
		filterID, hasFilter = id, true
	}
	out := make([]any, 0, limit)
	for _, f := range fills {
		if hasFilter && f.PerpetualID != filterID {
			continue
		}
		out = append(out, f)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func toolLiquidationAnalysis(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	var pos *types.Position
	for _, p := range d.Tracker.Positions() {
		if p.PerpetualID == id {
			p := p
			pos = &p
			break
		}
	}
	if pos == nil {
		return map[string]any{"perpetual_id": id, "_report": "no open position in this market"}, nil
	}
	perp, err := d.Router.GetLiquidationInputs(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *liqsim.Result
	if d.Simulator != nil {
		result, err = d.Simulator.Verify(ctx, *pos, perp)
		if err != nil {
			result = nil // fork pass failed; still return the closed-form estimate below
		}
	}
	meta := d.Perpetuals[id]
	closedForm := liqsim.ClosedFormFromPNS(pos.EntryPricePNS, pos.LotLNS, pos.DepositCNS, meta.PriceDecimals, meta.LotDecimals, 0.05, pos.Type)

	alreadyLiquidatable, forkVerified, confidence := false, false, ""
	out := map[string]any{
		"perpetual_id":      id,
		"closed_form_price": closedForm.LiquidationPrice,
	}
	if result != nil {
		alreadyLiquidatable, forkVerified, confidence = result.AlreadyLiquidatable, result.ForkVerified, result.Confidence
		out["already_liquidatable"] = alreadyLiquidatable
		out["fork_verified"] = forkVerified
		if result.ForkBoundaryPNS != nil {
			out["fork_boundary_price"] = wire.PNSToPrice(result.ForkBoundaryPNS, meta.PriceDecimals)
		}
		out["divergence_pct"] = result.DivergencePct
		out["confidence"] = confidence
	}
	out["_report"] = liquidationReport(closedForm.LiquidationPrice, alreadyLiquidatable, forkVerified, confidence)
	return out, nil
}
