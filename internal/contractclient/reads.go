package contractclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/pkg/types"
)

func (c *Client) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// GetAccountByID reads an account by its contract-assigned id.
func (c *Client) GetAccountByID(ctx context.Context, accountID int64) (types.Account, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getAccountById", big.NewInt(accountID)); err != nil {
		return types.Account{}, fmt.Errorf("contractclient: getAccountById: %w", err)
	}
	addr := out[0].(common.Address)
	return types.Account{
		ID:               accountID,
		Address:          addr.Hex(),
		BalanceCNS:       out[1].(*big.Int),
		LockedBalanceCNS: out[2].(*big.Int),
	}, nil
}

// GetAccountByAddress reads an account by its owning wallet address.
func (c *Client) GetAccountByAddress(ctx context.Context, address string) (types.Account, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getAccountByAddress", common.HexToAddress(address)); err != nil {
		return types.Account{}, fmt.Errorf("contractclient: getAccountByAddress: %w", err)
	}
	return types.Account{
		ID:               out[0].(*big.Int).Int64(),
		Address:          address,
		BalanceCNS:       out[1].(*big.Int),
		LockedBalanceCNS: out[2].(*big.Int),
	}, nil
}

// GetPerpetualInfo reads market metadata and the current mark/oracle state.
func (c *Client) GetPerpetualInfo(ctx context.Context, perpID int64) (types.Perpetual, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getPerpetualInfo", big.NewInt(perpID)); err != nil {
		return types.Perpetual{}, fmt.Errorf("contractclient: getPerpetualInfo: %w", err)
	}

	markTS := out[3].(*big.Int).Int64()
	return types.Perpetual{
		ID:                   perpID,
		BasePricePNS:         out[0].(*big.Int),
		MarkPNS:              out[1].(*big.Int),
		OraclePNS:            out[2].(*big.Int),
		MarkTimestamp:        time.Unix(markTS, 0),
		OracleTimestamp:      time.Unix(markTS, 0),
		FundingRatePer100k:   out[4].(*big.Int).Int64(),
		OpenInterestLongLNS:  out[5].(*big.Int),
		OpenInterestShortLNS: out[6].(*big.Int),
		MaxBidPriceONS:       out[7].(*big.Int),
		MaxAskPriceONS:       out[8].(*big.Int),
		Paused:               out[9].(bool),
	}, nil
}

// GetPosition reads a position along with whether the returned mark price
// is currently valid (spec.md §4.4: "(position, markPrice, markPriceValid)").
func (c *Client) GetPosition(ctx context.Context, perpID, accountID int64) (types.Position, *big.Int, bool, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getPosition", big.NewInt(perpID), big.NewInt(accountID)); err != nil {
		return types.Position{}, nil, false, fmt.Errorf("contractclient: getPosition: %w", err)
	}

	pos := types.Position{
		PerpetualID:   perpID,
		AccountID:     accountID,
		Type:          types.PositionType(out[0].(uint8)),
		EntryPricePNS: out[1].(*big.Int),
		LotLNS:        out[2].(*big.Int),
		DepositCNS:    out[3].(*big.Int),
	}
	markPNS := out[4].(*big.Int)
	markValid := out[5].(bool)
	return pos, markPNS, markValid, nil
}

// GetOpenOrders reads the authoritative set of open orders for an account in
// one perpetual; per the hybrid router's policy (spec.md §4.5) this is the
// only source of truth for order ids.
func (c *Client) GetOpenOrders(ctx context.Context, perpID, accountID int64) ([]types.Order, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getOpenOrders", big.NewInt(perpID), big.NewInt(accountID)); err != nil {
		return nil, fmt.Errorf("contractclient: getOpenOrders: %w", err)
	}

	ids := out[0].([]*big.Int)
	typeCodes := out[1].([]uint8)
	prices := out[2].([]*big.Int)
	lots := out[3].([]*big.Int)

	orders := make([]types.Order, len(ids))
	for i := range ids {
		ot, err := orderTypeFromCode(typeCodes[i])
		if err != nil {
			return nil, err
		}
		orders[i] = types.Order{
			ID:          ids[i].Int64(),
			PerpetualID: perpID,
			AccountID:   accountID,
			Type:        ot,
			PricePNS:    prices[i],
			LotLNS:      lots[i],
			Status:      types.StatusOpen,
		}
	}
	return orders, nil
}

// GetVolumeAtBookPrice reads the resting volume at one price level.
func (c *Client) GetVolumeAtBookPrice(ctx context.Context, perpID int64, priceONS *big.Int) (*big.Int, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getVolumeAtBookPrice", big.NewInt(perpID), priceONS); err != nil {
		return nil, fmt.Errorf("contractclient: getVolumeAtBookPrice: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetNextPriceBelowWithOrders reads the next resting price level below
// priceONS that has orders, or zero when the walk is exhausted.
func (c *Client) GetNextPriceBelowWithOrders(ctx context.Context, perpID int64, priceONS *big.Int) (*big.Int, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getNextPriceBelowWithOrders", big.NewInt(perpID), priceONS); err != nil {
		return nil, fmt.Errorf("contractclient: getNextPriceBelowWithOrders: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetTakerFee reads the taker fee, in basis points, for a perpetual.
func (c *Client) GetTakerFee(ctx context.Context, perpID int64) (*big.Int, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getTakerFee", big.NewInt(perpID)); err != nil {
		return nil, fmt.Errorf("contractclient: getTakerFee: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetMakerFee reads the maker fee, in basis points, for a perpetual.
func (c *Client) GetMakerFee(ctx context.Context, perpID int64) (*big.Int, error) {
	var out []any
	if err := c.exchange.Call(c.callOpts(ctx), &out, "getMakerFee", big.NewInt(perpID)); err != nil {
		return nil, fmt.Errorf("contractclient: getMakerFee: %w", err)
	}
	return out[0].(*big.Int), nil
}

func orderTypeFromCode(code uint8) (types.OrderType, error) {
	switch code {
	case 0:
		return types.OrderOpenLong, nil
	case 1:
		return types.OrderOpenShort, nil
	case 2:
		return types.OrderCloseLong, nil
	case 3:
		return types.OrderCloseShort, nil
	case 4:
		return types.OrderCancel, nil
	case 5:
		return types.OrderChange, nil
	case 6:
		return types.OrderIncreasePositionCollateral, nil
	default:
		return 0, fmt.Errorf("contractclient: unknown order type code %d", code)
	}
}
