package liqsim

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/internal/config"
	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/pkg/types"
)

// Result is the outcome of one Verify call: the closed-form estimate, the
// fork-verified boundary (when a fork was run), and the divergence between
// the two (spec.md §4.7 step 8).
type Result struct {
	ClosedForm ClosedFormResult

	AlreadyLiquidatable bool

	ForkVerified      bool
	ForkBoundaryPNS   *big.Int
	DivergenceAbs     float64 // fork boundary - closed-form estimate, display units
	DivergencePct     float64 // divergence as a percentage of the closed-form estimate
	Confidence        string  // "high" | "low" | "" (no fork run)
}

// Simulator estimates and, when an Anvil binary is configured, verifies
// liquidation prices by forking the chain and sweeping mark prices against
// the exchange's own liquidatability check (spec.md §4.7).
type Simulator struct {
	cfg             config.SimulatorConfig
	exchangeAddress common.Address
	forkRPCURL      string
}

// New builds a Simulator. forkRPCURL is the upstream endpoint Anvil forks
// from (typically the same RPC the live contractclient.Client dials).
func New(cfg config.SimulatorConfig, exchangeAddress common.Address, forkRPCURL string) *Simulator {
	return &Simulator{cfg: cfg, exchangeAddress: exchangeAddress, forkRPCURL: forkRPCURL}
}

// Verify returns the closed-form liquidation estimate for pos, and — if
// s.cfg.AnvilPath is set — additionally forks the chain to verify it
// against the exchange contract's own storage, per spec.md §4.7's 8-step
// algorithm. A panic anywhere during the fork pass (including inside the
// go-ethereum client) is recovered and turned into an error, with every
// outstanding snapshot reverted first.
func (s *Simulator) Verify(ctx context.Context, pos types.Position, perp types.Perpetual) (result *Result, err error) {
	closedForm := ClosedFormFromPNS(pos.EntryPricePNS, pos.LotLNS, pos.DepositCNS, perp.PriceDecimals, perp.LotDecimals, s.cfg.MaintenanceMargin, pos.Type)
	result = &Result{ClosedForm: closedForm}

	if isLiquidatableAtPrice(pos, perp.MarkPNS, perp.PriceDecimals, perp.LotDecimals, s.cfg.MaintenanceMargin) {
		result.AlreadyLiquidatable = true
		result.ForkBoundaryPNS = perp.MarkPNS
		result.ForkVerified = true
		result.Confidence = "high"
		return result, nil
	}

	if s.cfg.AnvilPath == "" {
		return result, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("liqsim: recovered panic during fork verification: %v", r)
		}
	}()

	if verr := s.verifyOnFork(ctx, pos, perp, result); verr != nil {
		// The fork pass is a best-effort supplement to the closed-form
		// estimate; a failed fork never invalidates the estimate itself.
		result.ForkVerified = false
		return result, fmt.Errorf("liqsim: fork verification failed, closed-form estimate still valid: %w", verr)
	}
	return result, nil
}

func (s *Simulator) verifyOnFork(ctx context.Context, pos types.Position, perp types.Perpetual, result *Result) error {
	timeout := s.cfg.AnvilTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	fork, err := startAnvilFork(ctx, s.cfg.AnvilPath, s.forkRPCURL, timeout)
	if err != nil {
		return err
	}
	defer fork.close()

	rpc := fork.client.Client()
	stack := newSnapshotStack(rpc)
	defer stack.unwindAll(ctx)

	exchangeABI := contractclient.ExchangeABI()
	callData, err := exchangeABI.Pack("getPerpetualInfo", big.NewInt(perp.ID))
	if err != nil {
		return fmt.Errorf("liqsim: pack getPerpetualInfo calldata: %w", err)
	}

	forkExchange := bind.NewBoundContract(s.exchangeAddress, exchangeABI, fork.client, fork.client, fork.client)
	forkContract := contractclient.NewForTesting(0, forkExchange, nil)

	getInfo := func(ctx context.Context) (markPNS, oraclePNS, markTimestamp *big.Int, err error) {
		info, err := forkContract.GetPerpetualInfo(ctx, perp.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		return info.MarkPNS, info.OraclePNS, big.NewInt(info.MarkTimestamp.Unix()), nil
	}

	layout, err := discoverLayout(ctx, rpc, s.exchangeAddress, callData, getInfo)
	if err != nil {
		return err
	}

	rangePct := s.cfg.PriceRangePct
	if rangePct <= 0 {
		rangePct = 30
	}
	steps := s.cfg.PriceSteps
	if steps <= 0 {
		steps = 20
	}
	iterations := s.cfg.BinarySearchIterations
	if iterations <= 0 {
		iterations = 10
	}

	checkAtPrice := func(pricePNS *big.Int) (bool, error) {
		if _, err := stack.push(ctx); err != nil {
			return false, err
		}
		defer stack.pop(ctx)

		if err := writeMarkPrice(ctx, rpc, s.exchangeAddress, layout, pricePNS, time.Now().Unix()); err != nil {
			return false, err
		}

		position, _, _, err := forkContract.GetPosition(ctx, perp.ID, pos.AccountID)
		if err != nil {
			return false, err
		}
		return isLiquidatableAtPrice(position, pricePNS, perp.PriceDecimals, perp.LotDecimals, s.cfg.MaintenanceMargin), nil
	}

	candidates := sweepPrices(perp.MarkPNS, rangePct, steps)
	samples := make([]samplePoint, 0, len(candidates))
	for _, price := range candidates {
		liq, err := checkAtPrice(price)
		if err != nil {
			return fmt.Errorf("liqsim: liquidatability check at %s: %w", price, err)
		}
		samples = append(samples, samplePoint{pricePNS: price, liquidatable: liq})
	}

	safe, liquidatable, crossings := findBoundary(samples)
	if crossings == 0 {
		return fmt.Errorf("liqsim: coarse sweep found no safe/liquidatable boundary within ±%.1f%% of mark", rangePct)
	}

	boundary := binarySearchBoundary(safe, liquidatable, iterations, func(price *big.Int) bool {
		liq, err := checkAtPrice(price)
		return err == nil && liq
	})

	result.ForkVerified = true
	result.ForkBoundaryPNS = boundary
	if crossings == 1 {
		result.Confidence = "high"
	} else {
		result.Confidence = "low"
	}

	boundaryFloat := scaledToFloat(boundary, perp.PriceDecimals)
	result.DivergenceAbs = boundaryFloat - result.ClosedForm.LiquidationPrice
	if result.ClosedForm.LiquidationPrice != 0 {
		result.DivergencePct = result.DivergenceAbs / result.ClosedForm.LiquidationPrice * 100
	}

	return nil
}
