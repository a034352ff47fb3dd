package agentloop

import (
	"context"
	"fmt"
	"math"

	"github.com/perplbot/perplbot/internal/wire"
	"github.com/perplbot/perplbot/pkg/types"
)

// quoteLevel is one simulated resting order.
type quoteLevel struct {
	Side  string  `json:"side"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// simulateGrid lays perLevelSize on `levels` evenly spaced rungs each side
// of mid, spaced stepPct apart — the simplest market-making ladder, used as
// the baseline the Avellaneda-Stoikov quotes are compared against.
func simulateGrid(mid float64, perLevelSize float64, levels int, stepPct float64) []quoteLevel {
	out := make([]quoteLevel, 0, levels*2)
	for i := 1; i <= levels; i++ {
		offset := mid * stepPct * float64(i)
		out = append(out, quoteLevel{Side: "bid", Price: mid - offset, Size: perLevelSize})
		out = append(out, quoteLevel{Side: "ask", Price: mid + offset, Size: perLevelSize})
	}
	return out
}

// avellanedaStoikovParams are the inputs to the reservation-price model.
// gamma (risk aversion), sigma (volatility), k (order-arrival intensity),
// and T (time horizon) follow the same formulas the teacher's maker used
// for Polymarket's binary books; here mid/size are perpetual-market display
// units rather than a [0,1]-bounded token price.
type avellanedaStoikovParams struct {
	Gamma float64
	Sigma float64
	K     float64
	T     float64
}

func defaultASParams() avellanedaStoikovParams {
	return avellanedaStoikovParams{Gamma: 0.1, Sigma: 0.02, K: 1.5, T: 1.0}
}

// simulateAvellanedaStoikov computes one reservation-price quote pair.
// inventorySkew is in [-1, 1]: positive means net long, which pulls both
// quotes down to attract buyers; negative pulls them up.
//
//	reservation_price = mid - q * gamma * sigma^2 * T
//	optimal_spread     = gamma * sigma^2 * T + (2/gamma) * ln(1 + gamma/k)
func simulateAvellanedaStoikov(mid, size, inventorySkew float64, p avellanedaStoikovParams) (bid, ask quoteLevel) {
	reservation := mid - inventorySkew*p.Gamma*p.Sigma*p.Sigma*p.T
	spread := p.Gamma*p.Sigma*p.Sigma*p.T + (2.0/p.Gamma)*math.Log(1+p.Gamma/p.K)

	bidPrice := reservation - spread/2
	askPrice := reservation + spread/2
	if bidPrice < 0 {
		bidPrice = 0
	}
	return quoteLevel{Side: "bid", Price: bidPrice, Size: size}, quoteLevel{Side: "ask", Price: askPrice, Size: size}
}

// inventorySkewFor reads the account's current position in perpID (if any)
// and expresses it as a [-1, 1] fraction of maxSize, the same role the
// teacher's Inventory.NetDelta played for the live reconciliation loop.
func inventorySkewFor(d *Deps, perpID int64, maxSize float64, meta PerpetualMeta) float64 {
	for _, p := range d.Tracker.Positions() {
		if p.PerpetualID != perpID {
			continue
		}
		lots := wire.LNSToLot(p.LotLNS, meta.LotDecimals)
		if p.Type == types.PositionShort {
			lots = -lots
		}
		if maxSize <= 0 {
			return 0
		}
		skew := lots / maxSize
		return math.Max(-1, math.Min(1, skew))
	}
	return 0
}

func toolSimulateStrategy(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	id, err := perpID(input)
	if err != nil {
		return nil, err
	}
	strategyName, err := requireString(input, "strategy")
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
	mid := wire.PNSToPrice(info.MarkPNS, meta.PriceDecimals)

	switch strategyName {
	case "grid":
		levels := 5
		if v, ok := input["levels"].(float64); ok && v > 0 {
			levels = int(v)
		}
		return map[string]any{
			"strategy": "grid",
			"mid":      mid,
			"levels":   simulateGrid(mid, size, levels, 0.002),
		}, nil

	case "mm":
		maxSize := size * leverage * 10
		skew := inventorySkewFor(d, id, maxSize, meta)
		bid, ask := simulateAvellanedaStoikov(mid, size, skew, defaultASParams())
		return map[string]any{
			"strategy":       "mm",
			"mid":            mid,
			"inventory_skew": skew,
			"quotes":         []quoteLevel{bid, ask},
		}, nil

	default:
		return nil, fmt.Errorf("strategy must be \"grid\" or \"mm\", got %q", strategyName)
	}
}
