package agentloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/perplbot/perplbot/internal/liqsim"
	"github.com/perplbot/perplbot/internal/wire"
)

// RiskAlert reports that a position's distance to its estimated liquidation
// price has fallen under the configured threshold. It mirrors the
// teacher's KillSignal in spirit — a background watcher surfacing a
// breach — but carries analysis instead of halting trading outright: the
// agent loop surfaces it to the model/user rather than cancelling orders
// itself (no matching engine exists to cancel into).
type RiskAlert struct {
	PerpetualID int64
	Distance    float64 // |mark - liquidation| / mark
	Result      liqsim.ClosedFormResult
	At          time.Time
}

// RiskMonitor periodically checks every open position's distance to its
// closed-form liquidation price and emits a RiskAlert when any position
// crosses atRiskThreshold (fractional distance, e.g. 0.1 for 10%).
type RiskMonitor struct {
	deps            *Deps
	atRiskThreshold float64
	interval        time.Duration
	logger          *slog.Logger
	alerts          chan RiskAlert
}

func NewRiskMonitor(deps *Deps, atRiskThreshold float64, interval time.Duration, logger *slog.Logger) *RiskMonitor {
	return &RiskMonitor{
		deps:            deps,
		atRiskThreshold: atRiskThreshold,
		interval:        interval,
		logger:          logger.With("component", "agentloop.riskmonitor"),
		alerts:          make(chan RiskAlert, 16),
	}
}

// Alerts is the channel risk breaches are published on. The agent loop's
// HTTP layer may drain it into a dedicated SSE stream independent of any
// single chat session.
func (m *RiskMonitor) Alerts() <-chan RiskAlert {
	return m.alerts
}

// Run polls every position on m.interval until ctx is cancelled. It never
// calls a write tool itself — spec.md's agent loop is the only place order
// cancellation/closing is policy-gated behind user confirmation.
func (m *RiskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(m.alerts)
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *RiskMonitor) checkAll(ctx context.Context) {
	for _, pos := range m.deps.Tracker.Positions() {
		meta := m.deps.Perpetuals[pos.PerpetualID]
		info, err := m.deps.Router.GetPerpetualInfo(ctx, pos.PerpetualID)
		if err != nil {
			m.logger.Warn("risk monitor: perpetual info fetch failed", "perpetual_id", pos.PerpetualID, "error", err)
			continue
		}

		result := liqsim.ClosedFormFromPNS(pos.EntryPricePNS, pos.LotLNS, pos.DepositCNS, meta.PriceDecimals, meta.LotDecimals, 0.05, pos.Type)
		mark := wire.PNSToPrice(info.MarkPNS, meta.PriceDecimals)
		if mark == 0 {
			continue
		}

		distance := (mark - result.LiquidationPrice) / mark
		if distance < 0 {
			distance = -distance
		}
		if distance > m.atRiskThreshold {
			continue
		}

		alert := RiskAlert{PerpetualID: pos.PerpetualID, Distance: distance, Result: result, At: time.Now()}
		select {
		case m.alerts <- alert:
		default:
			m.logger.Warn("risk alert channel full, dropping alert", "perpetual_id", pos.PerpetualID)
		}
	}
}
