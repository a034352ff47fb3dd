package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/perplbot/perplbot/internal/wire"
)

// descriptorArg is the ABI tuple argument shape for execOrder/execOrders,
// matching exchangeABIJSON's "desc" component order exactly.
type descriptorArg struct {
	DescriptorId        uint64
	PerpetualId         *big.Int
	TypeCode            uint8
	OrderId             *big.Int
	PricePNS            *big.Int
	LotLNS              *big.Int
	ExpiryBlock         uint64
	PostOnly            bool
	FillOrKill          bool
	ImmediateOrCancel   bool
	MaxMatches          uint32
	LeverageHundredths  int64
	LastExecutionBlock  uint64
	AmountCNS           *big.Int
}

func toDescriptorArg(d wire.OrderDescriptor) descriptorArg {
	return descriptorArg{
		DescriptorId:       d.DescriptorID,
		PerpetualId:        big.NewInt(d.PerpetualID),
		TypeCode:           d.TypeCode,
		OrderId:            big.NewInt(d.OrderID),
		PricePNS:           d.PricePNS,
		LotLNS:             d.LotLNS,
		ExpiryBlock:        d.ExpiryBlock,
		PostOnly:           d.PostOnly,
		FillOrKill:         d.FillOrKill,
		ImmediateOrCancel:  d.ImmediateOrCancel,
		MaxMatches:         d.MaxMatches,
		LeverageHundredths: int64(d.LeverageHundredths),
		LastExecutionBlock: d.LastExecutionBlock,
		AmountCNS:          d.AmountCNS,
	}
}

// ExecOrder submits a single order descriptor through the proxy, which
// forwards the allowlisted selector to the exchange (spec.md §4.4).
func (c *Client) ExecOrder(ctx context.Context, desc wire.OrderDescriptor) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.proxy.Transact(opts, "execOrder", toDescriptorArg(desc))
	if err != nil {
		return nil, fmt.Errorf("contractclient: execOrder: %w", err)
	}
	return tx, nil
}

// ExecOrders submits a batch of order descriptors in one transaction.
// revertOnFail controls whether a single failing descriptor reverts the
// whole batch or is skipped.
func (c *Client) ExecOrders(ctx context.Context, descs []wire.OrderDescriptor, revertOnFail bool) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	args := make([]descriptorArg, len(descs))
	for i, d := range descs {
		args[i] = toDescriptorArg(d)
	}
	tx, err := c.proxy.Transact(opts, "execOrders", args, revertOnFail)
	if err != nil {
		return nil, fmt.Errorf("contractclient: execOrders: %w", err)
	}
	return tx, nil
}

// DepositCollateral moves collateral from the wallet into the account.
func (c *Client) DepositCollateral(ctx context.Context, accountID int64, amountCNS *big.Int) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.proxy.Transact(opts, "depositCollateral", big.NewInt(accountID), amountCNS)
	if err != nil {
		return nil, fmt.Errorf("contractclient: depositCollateral: %w", err)
	}
	return tx, nil
}

// IncreasePositionCollateral adds margin to an open position.
func (c *Client) IncreasePositionCollateral(ctx context.Context, perpID, accountID int64, amountCNS *big.Int) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.proxy.Transact(opts, "increasePositionCollateral", big.NewInt(perpID), big.NewInt(accountID), amountCNS)
	if err != nil {
		return nil, fmt.Errorf("contractclient: increasePositionCollateral: %w", err)
	}
	return tx, nil
}

// RequestDecreasePositionCollateral starts the withdrawal of margin from an
// open position; the exchange enforces its own cooldown before the matching
// decreasePositionCollateral call succeeds.
func (c *Client) RequestDecreasePositionCollateral(ctx context.Context, perpID, accountID int64, amountCNS *big.Int) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.proxy.Transact(opts, "requestDecreasePositionCollateral", big.NewInt(perpID), big.NewInt(accountID), amountCNS)
	if err != nil {
		return nil, fmt.Errorf("contractclient: requestDecreasePositionCollateral: %w", err)
	}
	return tx, nil
}

// DecreasePositionCollateral completes a previously requested withdrawal.
// clampToMaximum caps the withdrawal to the maximum the exchange will still
// allow rather than reverting when the requested amount has become too
// large (e.g. after adverse price movement).
func (c *Client) DecreasePositionCollateral(ctx context.Context, perpID int64, amountCNS *big.Int, clampToMaximum bool) (*types.Transaction, error) {
	opts, err := c.operatorTransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := c.proxy.Transact(opts, "decreasePositionCollateral", big.NewInt(perpID), amountCNS, clampToMaximum)
	if err != nil {
		return nil, fmt.Errorf("contractclient: decreasePositionCollateral: %w", err)
	}
	return tx, nil
}
