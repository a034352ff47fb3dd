// Package wire implements the exchange's fixed-point wire codec: conversion
// between human-readable price/lot/collateral/leverage values and the
// integer-scaled representations (PNS, LNS, CNS, ONS, leverage hundredths)
// the protocol actually carries on the wire and on chain.
//
// Every conversion here is pure and total; the only place floats appear is
// at the display boundary (the *ToPNS/*FromPNS pairs round-trip a price to
// within one unit of the last decimal place). Order math upstream of the
// codec stays on *big.Int throughout, per spec.md §9.
package wire

import (
	"fmt"
	"math"
	"math/big"

	"github.com/perplbot/perplbot/pkg/types"
)

var ten = big.NewInt(10)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// PriceToPNS scales a human-readable price by 10^priceDecimals.
func PriceToPNS(price float64, priceDecimals uint8) types.PNS {
	return floatToScaledInt(price, priceDecimals)
}

// PNSToPrice recovers a human-readable price from its PNS representation.
func PNSToPrice(pns types.PNS, priceDecimals uint8) float64 {
	return scaledIntToFloat(pns, priceDecimals)
}

// LotToLNS scales a human-readable lot size by 10^lotDecimals.
func LotToLNS(lot float64, lotDecimals uint8) types.LNS {
	return floatToScaledInt(lot, lotDecimals)
}

// LNSToLot recovers a human-readable lot size from its LNS representation.
func LNSToLot(lns types.LNS, lotDecimals uint8) float64 {
	return scaledIntToFloat(lns, lotDecimals)
}

// collateralDecimals is fixed: CNS always uses the collateral token's 6
// decimal places, independent of any perpetual's own scaling (§3).
const collateralDecimals uint8 = 6

// AmountToCNS scales a human-readable collateral amount to CNS (10^6).
func AmountToCNS(amount float64) types.CNS {
	return floatToScaledInt(amount, collateralDecimals)
}

// CNSToAmount recovers a human-readable collateral amount from CNS.
func CNSToAmount(cns types.CNS) float64 {
	return scaledIntToFloat(cns, collateralDecimals)
}

// LeverageToHundredths rounds leverage*100 to the nearest integer.
func LeverageToHundredths(leverage float64) types.LeverageHundredths {
	return types.LeverageHundredths(math.Round(leverage * 100))
}

// HundredthsToLeverage converts hundredths back to a display leverage.
func HundredthsToLeverage(h types.LeverageHundredths) float64 {
	return float64(h) / 100
}

// OnsFromPNS computes a price offset from a perpetual's base price.
func OnsFromPNS(pns types.PNS, basePricePNS types.PNS) types.ONS {
	return new(big.Int).Sub(pns, basePricePNS)
}

// PNSFromOns reconstructs an absolute price from an offset.
func PNSFromOns(ons types.ONS, basePricePNS types.PNS) types.PNS {
	return new(big.Int).Add(basePricePNS, ons)
}

// PositionValueCNS computes PNS * LNS, which is exact integer collateral
// value given the platform's decimal choices (spec.md §3: "PNS x LNS = CNS").
//
// Callers must ensure priceDecimals + lotDecimals == 6 + the perpetual's
// own scaling offset; the exchange's listed markets are chosen so this
// holds, and this function does not itself re-derive scaling — it performs
// the multiplication the spec declares exact.
func PositionValueCNS(pricePNS types.PNS, lotLNS types.LNS) types.CNS {
	return new(big.Int).Mul(pricePNS, lotLNS)
}

func floatToScaledInt(v float64, decimals uint8) *big.Int {
	scale := new(big.Float).SetInt(pow10(decimals))
	scaled := new(big.Float).Mul(big.NewFloat(v), scale)
	if scaled.Sign() >= 0 {
		scaled.Add(scaled, big.NewFloat(0.5))
	} else {
		scaled.Sub(scaled, big.NewFloat(0.5))
	}
	i, _ := scaled.Int(nil)
	return i
}

func scaledIntToFloat(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetInt(pow10(decimals))
	f := new(big.Float).Quo(new(big.Float).SetInt(v), scale)
	out, _ := f.Float64()
	return out
}

// ————————————————————————————————————————————————————————————————————————
// Order-descriptor encoding (§4.1)
// ————————————————————————————————————————————————————————————————————————

// DescriptorTypeCode maps an OrderType to the contract's execOrder type
// code. These codes are distinct from the WebSocket's own order-type
// numbering (types.WSOrderType) — the two must never be confused.
func DescriptorTypeCode(t types.OrderType) uint8 {
	switch t {
	case types.OrderOpenLong:
		return 0
	case types.OrderOpenShort:
		return 1
	case types.OrderCloseLong:
		return 2
	case types.OrderCloseShort:
		return 3
	case types.OrderCancel:
		return 4
	case types.OrderChange:
		return 5
	case types.OrderIncreasePositionCollateral:
		return 6
	default:
		return 0xff
	}
}

// OrderTypeFromDescriptorCode is the inverse of DescriptorTypeCode.
func OrderTypeFromDescriptorCode(code uint8) (types.OrderType, error) {
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
		return 0, fmt.Errorf("wire: unknown descriptor type code %d", code)
	}
}

// closeSentinelLeverage is the leverage value closes must carry; it is
// ignored by the matching engine but must still be well-formed (§4.1).
const closeSentinelLeverage types.LeverageHundredths = 100

// OrderDescriptor is the tuple expected by the on-chain execOrder /
// execOrders entry points (§4.1).
type OrderDescriptor struct {
	DescriptorID      uint64
	PerpetualID       int64
	TypeCode          uint8
	OrderID           int64
	PricePNS          types.PNS
	LotLNS            types.LNS
	ExpiryBlock       uint64
	PostOnly          bool
	FillOrKill        bool
	ImmediateOrCancel bool
	MaxMatches        uint32
	LeverageHundredths types.LeverageHundredths
	LastExecutionBlock uint64
	AmountCNS         types.CNS
}

// EncodeOrderDescriptor builds the on-chain descriptor tuple for an order.
// Prices must be non-negative, lot must be strictly positive for
// open/close, and leverage must be >= 100 (1x) for opens; closes are
// assigned the sentinel leverage the matching engine ignores.
func EncodeOrderDescriptor(descriptorID uint64, o types.Order, maxMatches uint32, lastExecBlock uint64, amountCNS types.CNS) (OrderDescriptor, error) {
	if o.PricePNS != nil && o.PricePNS.Sign() < 0 {
		return OrderDescriptor{}, fmt.Errorf("wire: price must be non-negative")
	}

	isOpen := o.Type == types.OrderOpenLong || o.Type == types.OrderOpenShort
	isClose := o.Type == types.OrderCloseLong || o.Type == types.OrderCloseShort

	if (isOpen || isClose) && (o.LotLNS == nil || o.LotLNS.Sign() <= 0) {
		return OrderDescriptor{}, fmt.Errorf("wire: lot must be strictly positive for open/close orders")
	}

	leverage := o.Leverage
	if isClose {
		leverage = closeSentinelLeverage
	} else if isOpen && leverage < 100 {
		return OrderDescriptor{}, fmt.Errorf("wire: leverage hundredths must be >= 100 for opens, got %d", leverage)
	}

	price := o.PricePNS
	if price == nil {
		price = big.NewInt(0)
	}
	lot := o.LotLNS
	if lot == nil {
		lot = big.NewInt(0)
	}
	amount := amountCNS
	if amount == nil {
		amount = big.NewInt(0)
	}

	return OrderDescriptor{
		DescriptorID:       descriptorID,
		PerpetualID:        o.PerpetualID,
		TypeCode:           DescriptorTypeCode(o.Type),
		OrderID:            o.ID,
		PricePNS:           price,
		LotLNS:             lot,
		ExpiryBlock:        o.ExpiryBlock,
		PostOnly:           o.PostOnly,
		FillOrKill:         o.FillOrKill,
		ImmediateOrCancel:  o.ImmediateOrCancel,
		MaxMatches:         maxMatches,
		LeverageHundredths: leverage,
		LastExecutionBlock: lastExecBlock,
		AmountCNS:          amount,
	}, nil
}

// DecodeOrderDescriptor reconstructs the logical order fields from an
// on-chain descriptor tuple. Used by tests to assert the round-trip
// property in spec.md §8, and by the contract client when parsing
// getOpenOrders results.
func DecodeOrderDescriptor(d OrderDescriptor) (types.Order, error) {
	ot, err := OrderTypeFromDescriptorCode(d.TypeCode)
	if err != nil {
		return types.Order{}, err
	}
	return types.Order{
		ID:                d.OrderID,
		PerpetualID:       d.PerpetualID,
		Type:              ot,
		PricePNS:          d.PricePNS,
		LotLNS:            d.LotLNS,
		Leverage:          d.LeverageHundredths,
		PostOnly:          d.PostOnly,
		FillOrKill:        d.FillOrKill,
		ImmediateOrCancel: d.ImmediateOrCancel,
		ExpiryBlock:       d.ExpiryBlock,
	}, nil
}

// SafeDiv returns a/b as a float64, or 0 when b is zero, matching spec.md
// §9 ("Division by zero... returns zero, not infinity").
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
