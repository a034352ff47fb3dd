package agentloop

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// formatAmount renders a display-unit float as a fixed 6-decimal string for
// the human-facing "_report" field, the same precision-over-float-printf
// approach the pack's currency-statistics code uses for money values —
// fmt's default float formatting rounds unpredictably across magnitudes.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(6)
}

func accountSummaryReport(balance, available, equity, pnl float64) string {
	return fmt.Sprintf("balance %s, available %s, equity %s, unrealized PnL %s",
		formatAmount(balance), formatAmount(available), formatAmount(equity), formatAmount(pnl))
}

func liquidationReport(closedFormPrice float64, alreadyLiquidatable, forkVerified bool, confidence string) string {
	if alreadyLiquidatable {
		return fmt.Sprintf("position is already past its liquidation price (%s)", formatAmount(closedFormPrice))
	}
	if forkVerified {
		return fmt.Sprintf("closed-form estimate %s, fork-verified, confidence %s", formatAmount(closedFormPrice), confidence)
	}
	return fmt.Sprintf("closed-form estimate %s (not fork-verified)", formatAmount(closedFormPrice))
}
