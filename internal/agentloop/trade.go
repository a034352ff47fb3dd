package agentloop

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/perplbot/perplbot/internal/wire"
	"github.com/perplbot/perplbot/pkg/types"
)

// maxMatchesPerOrder bounds how many resting orders a single submission may
// match against in one contract call.
const maxMatchesPerOrder = 50

var descriptorCounter uint64

func nextDescriptorID() uint64 {
	return atomic.AddUint64(&descriptorCounter, 1)
}

func parseSide(s string) (types.OrderType, error) {
	switch s {
	case "long":
		return types.OrderOpenLong, nil
	case "short":
		return types.OrderOpenShort, nil
	default:
		return 0, fmt.Errorf("side must be \"long\" or \"short\", got %q", s)
	}
}

func requireFloat(input map[string]any, key string) (float64, error) {
	v, ok := input[key].(float64)
	if !ok {
		return 0, fmt.Errorf("missing or non-numeric %q", key)
	}
	return v, nil
}

func requireString(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok {
		return "", fmt.Errorf("missing or non-string %q", key)
	}
	return v, nil
}

// buildMarketOrder constructs an aggressively-priced, immediate-or-cancel
// order descriptor that behaves like a market order: for a buy (opening a
// long or closing a short) it's willing to pay up to slippageBps above mark,
// for a sell down to slippageBps below.
func buildMarketOrder(d *Deps, perpID int64, orderType types.OrderType, sizeLots float64, leverage float64, markPNS *big.Int, meta PerpetualMeta) (wire.OrderDescriptor, error) {
	const slippageBps = 50 // 0.5%
	slip := new(big.Float).Mul(new(big.Float).SetInt(markPNS), big.NewFloat(float64(slippageBps)/10000))
	slipInt, _ := slip.Int(nil)

	limitPNS := new(big.Int).Set(markPNS)
	if orderType == types.OrderOpenLong || orderType == types.OrderCloseShort {
		limitPNS.Add(limitPNS, slipInt)
	} else {
		limitPNS.Sub(limitPNS, slipInt)
		if limitPNS.Sign() < 0 {
			limitPNS.SetInt64(0)
		}
	}

	order := types.Order{
		PerpetualID:       perpID,
		AccountID:         d.AccountID,
		Type:              orderType,
		PricePNS:          limitPNS,
		LotLNS:            wire.LotToLNS(sizeLots, meta.LotDecimals),
		Leverage:          wire.LeverageToHundredths(leverage),
		ImmediateOrCancel: true,
		Status:            types.StatusPending,
	}

	return wire.EncodeOrderDescriptor(
		nextDescriptorID(),
		order,
		maxMatchesPerOrder,
		0, // lastExecutionBlock: unconstrained
		wire.AmountToCNS(sizeLots*wire.PNSToPrice(markPNS, meta.PriceDecimals)/leverage),
	)
}

func toolDryRunTrade(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	sideStr, err := requireString(input, "side")
	if err != nil {
		return nil, err
	}
	orderType, err := parseSide(sideStr)
	if err != nil {
		return nil, err
	}
	size, err := requireFloat(input, "size")
	if err != nil {
		return nil, err
	}
	leverage, err := requireFloat(input, "leverage")
	if err != nil {
		return nil, err
	}

	info, err := d.Router.GetPerpetualInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := d.Perpetuals[id]

	takerFeeBps, err := d.Contract.GetTakerFee(ctx, id)
	if err != nil {
		return nil, err
	}
	notional := size * wire.PNSToPrice(info.MarkPNS, meta.PriceDecimals)
	feeBps := new(big.Float).SetInt(takerFeeBps)
	fee, _ := new(big.Float).Mul(big.NewFloat(notional), new(big.Float).Quo(feeBps, big.NewFloat(10000))).Float64()

	return map[string]any{
		"perpetual_id":      id,
		"side":              sideStr,
		"expected_mark":     wire.PNSToPrice(info.MarkPNS, meta.PriceDecimals),
		"notional":          notional,
		"required_margin":   notional / leverage,
		"estimated_fee":     fee,
		"order_type":        orderTypeNames[orderType],
	}, nil
}

func toolOpenPosition(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	sideStr, err := requireString(input, "side")
	if err != nil {
		return nil, err
	}
	orderType, err := parseSide(sideStr)
	if err != nil {
		return nil, err
	}
	size, err := requireFloat(input, "size")
	if err != nil {
		return nil, err
	}
	leverage, err := requireFloat(input, "leverage")
	if err != nil {
		return nil, err
	}

	info, err := d.Router.GetPerpetualInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := d.Perpetuals[id]

	desc, err := buildMarketOrder(d, id, orderType, size, leverage, info.MarkPNS, meta)
	if err != nil {
		return nil, err
	}
	if err := d.Router.ExecOrder(ctx, desc); err != nil {
		return nil, err
	}
	return map[string]any{"perpetual_id": id, "side": sideStr, "size": size, "submitted": true}, nil
}

func toolClosePosition(ctx context.Context, d *Deps, input map[string]any) (any, error) {
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
		return nil, fmt.Errorf("no open position in perpetual %d", id)
	}

	closeType := types.OrderCloseLong
	if pos.Type == types.PositionShort {
		closeType = types.OrderCloseShort
	}

	info, err := d.Router.GetPerpetualInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := d.Perpetuals[id]

	desc, err := buildMarketOrder(d, id, closeType, wire.LNSToLot(pos.LotLNS, meta.LotDecimals), 1, info.MarkPNS, meta)
	if err != nil {
		return nil, err
	}
	if err := d.Router.ExecOrder(ctx, desc); err != nil {
		return nil, err
	}
	return map[string]any{"perpetual_id": id, "submitted": true}, nil
}

func toolCancelOrder(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	v, ok := input["order_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing order_id")
	}
	orderID := int64(v)

	var target *types.Order
	for _, o := range d.Tracker.Orders() {
		if o.ID == orderID {
			o := o
			target = &o
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("order %d not found among open orders", orderID)
	}

	order := types.Order{
		PerpetualID: target.PerpetualID,
		AccountID:   d.AccountID,
		Type:        types.OrderCancel,
		ID:          orderID,
		Status:      types.StatusPending,
	}
	desc, err := wire.EncodeOrderDescriptor(nextDescriptorID(), order, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	if err := d.Router.ExecOrder(ctx, desc); err != nil {
		return nil, err
	}
	return map[string]any{"order_id": orderID, "cancelled": true}, nil
}
