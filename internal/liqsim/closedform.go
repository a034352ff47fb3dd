// Package liqsim estimates and verifies liquidation prices for an open
// position (spec.md §4.7). It combines a fast closed-form estimate with an
// optional fork-based verification pass run against a local Anvil node.
package liqsim

import (
	"math/big"

	"github.com/perplbot/perplbot/pkg/types"
)

// ClosedFormResult is the fast, always-available liquidation estimate.
type ClosedFormResult struct {
	LiquidationPrice float64
	Side             types.PositionType
}

// ClosedForm computes the liquidation price solving equity(L) = m *
// |position_value(L)|, ignoring funding accrual and taker fees on close
// (spec.md §4.7). entry and collateral are display-unit floats; size is the
// absolute position size in display units.
func ClosedForm(entry, size, collateral, maintenanceMargin float64, side types.PositionType) ClosedFormResult {
	var l float64
	switch side {
	case types.PositionShort:
		l = (entry*size + collateral) / (size * (1 + maintenanceMargin))
	default: // long
		l = (entry*size - collateral) / (size * (1 - maintenanceMargin))
	}
	return ClosedFormResult{LiquidationPrice: l, Side: side}
}

// ClosedFormFromPNS is ClosedForm applied directly to scaled-integer inputs,
// converting to float64 for the estimate (the closed form is advisory, not
// wire-exact, so float precision here is acceptable).
func ClosedFormFromPNS(entryPNS *big.Int, lotLNS *big.Int, depositCNS *big.Int, priceDecimals, lotDecimals uint8, maintenanceMargin float64, side types.PositionType) ClosedFormResult {
	entry := scaledToFloat(entryPNS, priceDecimals)
	size := scaledToFloat(lotLNS, lotDecimals)
	collateral := scaledToFloat(depositCNS, 6)
	return ClosedForm(entry, size, collateral, maintenanceMargin, side)
}

func scaledToFloat(n *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(n)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// IsLiquidatable reports whether equity has already fallen below the
// maintenance requirement at the given mark price (spec.md §4.7 step 4).
func IsLiquidatable(equityCNS, positionValueCNS *big.Int, maintenanceMargin float64) bool {
	maintenance := new(big.Float).Mul(new(big.Float).SetInt(positionValueCNS), big.NewFloat(maintenanceMargin))
	equity := new(big.Float).SetInt(equityCNS)
	return equity.Cmp(maintenance) < 0
}
