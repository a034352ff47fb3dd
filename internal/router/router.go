// Package router implements PerplBot's hybrid read/write policy (spec.md
// §4.5): each operation is pinned to the contract, to the API, or — for
// positions — tried on the API first with a contract fallback. Order ids
// are never resolved anywhere but the contract; a fallback from API to
// contract never substitutes an API-issued id for a contract one.
package router

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"

	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/internal/restclient"
	"github.com/perplbot/perplbot/internal/wire"
	"github.com/perplbot/perplbot/pkg/types"
)

// Router resolves each read/write operation to the API or the contract per
// spec.md §4.5's policy table.
type Router struct {
	rest          *restclient.Client
	contract      *contractclient.Client
	authenticated func() bool

	logger *slog.Logger

	positionsBreaker *gobreaker.CircuitBreaker[[]types.Position]
}

// New builds a Router. authenticated reports whether the REST session is
// currently valid, which gates the "positions (read): API if authenticated,
// else contract" branch.
func New(rest *restclient.Client, contract *contractclient.Client, authenticated func() bool, logger *slog.Logger) *Router {
	r := &Router{
		rest:          rest,
		contract:      contract,
		authenticated: authenticated,
		logger:        logger,
	}

	r.positionsBreaker = gobreaker.NewCircuitBreaker[[]types.Position](gobreaker.Settings{
		Name:        "router.positions",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("router: circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})

	return r
}

// ExecOrder always routes through the contract (spec.md §4.5: "order ids
// must be authoritative"). Used for open, close, and cancel alike — cancel
// is expressed as an OrderDescriptor with TypeCode OrderCancel.
func (r *Router) ExecOrder(ctx context.Context, desc wire.OrderDescriptor) error {
	_, err := r.contract.ExecOrder(ctx, desc)
	return err
}

// ExecOrders submits descs as a single batch transaction and, if the batch
// reverts, treats the batch path as unavailable for this call and falls
// back to sequential ExecOrder calls (Open Question (b)) — contractclient
// stays a thin ABI wrapper; the batch-vs-sequential decision lives here.
func (r *Router) ExecOrders(ctx context.Context, descs []wire.OrderDescriptor) error {
	tx, submitErr := r.contract.ExecOrders(ctx, descs, true)
	var receipt *gethtypes.Receipt
	var waitErr error
	if submitErr == nil {
		receipt, waitErr = r.contract.WaitMined(ctx, tx)
	}

	if shouldFallbackToSequential(submitErr, waitErr, receipt) {
		r.logger.Warn("router: execOrders batch unavailable, falling back to sequential execOrder",
			"count", len(descs), "submit_err", submitErr, "wait_err", waitErr)
		return r.execOrdersSequentially(ctx, descs)
	}
	return nil
}

// shouldFallbackToSequential decides whether the batch path failed in a way
// that warrants falling back to sequential ExecOrder calls: the submission
// itself erroring, the wait-for-receipt erroring, or the batch mining but
// reverting.
func shouldFallbackToSequential(submitErr, waitErr error, receipt *gethtypes.Receipt) bool {
	if submitErr != nil || waitErr != nil {
		return true
	}
	return receipt.Status != gethtypes.ReceiptStatusSuccessful
}

func (r *Router) execOrdersSequentially(ctx context.Context, descs []wire.OrderDescriptor) error {
	for _, desc := range descs {
		if err := r.ExecOrder(ctx, desc); err != nil {
			return err
		}
	}
	return nil
}

// GetOpenOrders always routes through the contract — it is the only source
// that can hand back authoritative order ids.
func (r *Router) GetOpenOrders(ctx context.Context, perpID, accountID int64) ([]types.Order, error) {
	return r.contract.GetOpenOrders(ctx, perpID, accountID)
}

// GetPositions reads positions from the API when authenticated (one call
// batches over every perpetual), logging a warning and falling back to the
// contract on failure, open breaker, or when unauthenticated. The contract
// view is never merged with a stale API view of the same positions — a
// fallback always returns the contract's own position set in full.
func (r *Router) GetPositions(ctx context.Context, accountID int64, perpIDs []int64) ([]types.Position, error) {
	if !r.authenticated() {
		return r.getPositionsFromContract(ctx, accountID, perpIDs)
	}

	positions, err := r.positionsBreaker.Execute(func() ([]types.Position, error) {
		return r.getPositionsFromAPI(ctx)
	})
	if err == nil {
		return positions, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) {
		r.logger.Warn("router: positions breaker open, using contract", "account_id", accountID)
	} else {
		r.logger.Warn("router: positions API read failed, falling back to contract", "account_id", accountID, "err", err)
	}
	return r.getPositionsFromContract(ctx, accountID, perpIDs)
}

func (r *Router) getPositionsFromAPI(ctx context.Context) ([]types.Position, error) {
	records, err := r.rest.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, len(records))
	for i, rec := range records {
		entry, ok := new(big.Int).SetString(rec.EntryPNS, 10)
		if !ok {
			return nil, errors.New("router: malformed entry_pns in positions response")
		}
		lot, ok := new(big.Int).SetString(rec.LotLNS, 10)
		if !ok {
			return nil, errors.New("router: malformed lot in positions response")
		}
		deposit, ok := new(big.Int).SetString(rec.DepositCNS, 10)
		if !ok {
			return nil, errors.New("router: malformed deposit in positions response")
		}

		positions[i] = types.Position{
			ID:            rec.PositionID,
			PerpetualID:   rec.PerpetualID,
			AccountID:     rec.AccountID,
			Type:          positionTypeFromString(rec.Type),
			EntryPricePNS: entry,
			LotLNS:        lot,
			DepositCNS:    deposit,
		}
	}
	return positions, nil
}

func (r *Router) getPositionsFromContract(ctx context.Context, accountID int64, perpIDs []int64) ([]types.Position, error) {
	positions := make([]types.Position, 0, len(perpIDs))
	for _, perpID := range perpIDs {
		pos, _, _, err := r.contract.GetPosition(ctx, perpID, accountID)
		if err != nil {
			return nil, err
		}
		if pos.Type == types.PositionNone {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
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

// GetPerpetualInfo always routes through the contract — canonical, no
// freshness ambiguity.
func (r *Router) GetPerpetualInfo(ctx context.Context, perpID int64) (types.Perpetual, error) {
	return r.contract.GetPerpetualInfo(ctx, perpID)
}

// GetLiquidationInputs reads the current mark/oracle state used to drive the
// liquidation simulator. Always contract — authoritative.
func (r *Router) GetLiquidationInputs(ctx context.Context, perpID int64) (types.Perpetual, error) {
	return r.contract.GetPerpetualInfo(ctx, perpID)
}

// History endpoints offer no contract equivalent, so these always go to the
// API. maxPages bounds the number of pages fetched; 0 means unbounded.

func (r *Router) GetFillHistory(ctx context.Context, maxPages int) ([]restclient.FillRecord, error) {
	return r.rest.GetAllFills(ctx, maxPages)
}

func (r *Router) GetOrderHistory(ctx context.Context, maxPages int) ([]restclient.OrderHistoryRecord, error) {
	return r.rest.GetAllOrderHistory(ctx, maxPages)
}

func (r *Router) GetPositionHistory(ctx context.Context, maxPages int) ([]restclient.PositionHistoryRecord, error) {
	return r.rest.GetAllPositionHistory(ctx, maxPages)
}

func (r *Router) GetAccountHistory(ctx context.Context, maxPages int) ([]restclient.AccountHistoryRecord, error) {
	return r.rest.GetAllAccountHistory(ctx, maxPages)
}
