package wire

import (
	"math/big"
	"testing"

	"github.com/perplbot/perplbot/pkg/types"
)

func TestPriceToPNSRoundTrip(t *testing.T) {
	t.Parallel()

	pns := PriceToPNS(95000.0, 1)
	if pns.Cmp(big.NewInt(950000)) != 0 {
		t.Fatalf("PriceToPNS(95000.0, 1) = %s, want 950000", pns)
	}

	price := PNSToPrice(big.NewInt(950000), 1)
	if price != 95000.0 {
		t.Fatalf("PNSToPrice(950000, 1) = %v, want 95000.0", price)
	}
}

func TestOnsFromPNS(t *testing.T) {
	t.Parallel()

	pns := PriceToPNS(94900.0, 1)
	if pns.Cmp(big.NewInt(949000)) != 0 {
		t.Fatalf("PriceToPNS(94900.0, 1) = %s, want 949000", pns)
	}

	basePricePNS := big.NewInt(900000)
	ons := OnsFromPNS(pns, basePricePNS)
	if ons.Cmp(big.NewInt(49000)) != 0 {
		t.Fatalf("OnsFromPNS = %s, want 49000", ons)
	}

	back := PNSFromOns(ons, basePricePNS)
	if back.Cmp(pns) != 0 {
		t.Fatalf("PNSFromOns(OnsFromPNS(x)) = %s, want %s", back, pns)
	}
}

func TestAmountToCNSAlwaysSixDecimals(t *testing.T) {
	t.Parallel()

	cns := AmountToCNS(1234.56)
	if cns.Cmp(big.NewInt(1234560000)) != 0 {
		t.Fatalf("AmountToCNS(1234.56) = %s, want 1234560000", cns)
	}

	back := CNSToAmount(cns)
	if back != 1234.56 {
		t.Fatalf("CNSToAmount round trip = %v, want 1234.56", back)
	}
}

func TestLotRoundTrip(t *testing.T) {
	t.Parallel()

	lns := LotToLNS(0.5, 8)
	want := new(big.Int).SetInt64(50000000)
	if lns.Cmp(want) != 0 {
		t.Fatalf("LotToLNS(0.5, 8) = %s, want %s", lns, want)
	}

	lot := LNSToLot(lns, 8)
	if lot != 0.5 {
		t.Fatalf("LNSToLot round trip = %v, want 0.5", lot)
	}
}

func TestLeverageToHundredths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		leverage float64
		want     types.LeverageHundredths
	}{
		{1.0, 100},
		{5.0, 500},
		{10.5, 1050},
		{3.333, 333},
	}

	for _, tt := range tests {
		if got := LeverageToHundredths(tt.leverage); got != tt.want {
			t.Errorf("LeverageToHundredths(%v) = %d, want %d", tt.leverage, got, tt.want)
		}
		if back := HundredthsToLeverage(tt.want); back != float64(tt.want)/100 {
			t.Errorf("HundredthsToLeverage(%d) = %v", tt.want, back)
		}
	}
}

func TestPositionValueCNS(t *testing.T) {
	t.Parallel()

	pricePNS := PriceToPNS(95000.0, 1)
	lotLNS := LotToLNS(0.1, 8)
	value := PositionValueCNS(pricePNS, lotLNS)
	if value.Sign() <= 0 {
		t.Fatalf("PositionValueCNS should be positive, got %s", value)
	}
}

func TestOrderDescriptorRoundTrip(t *testing.T) {
	t.Parallel()

	order := types.Order{
		ID:          42,
		PerpetualID: 1,
		Type:        types.OrderOpenLong,
		PricePNS:    PriceToPNS(95000.0, 1),
		LotLNS:      LotToLNS(0.25, 8),
		Leverage:    500,
		PostOnly:    true,
		ExpiryBlock: 123456,
	}

	desc, err := EncodeOrderDescriptor(7, order, 10, 100, AmountToCNS(250))
	if err != nil {
		t.Fatalf("EncodeOrderDescriptor: %v", err)
	}

	if desc.TypeCode != 0 {
		t.Fatalf("TypeCode = %d, want 0 (OpenLong)", desc.TypeCode)
	}

	decoded, err := DecodeOrderDescriptor(desc)
	if err != nil {
		t.Fatalf("DecodeOrderDescriptor: %v", err)
	}

	if decoded.ID != order.ID || decoded.PerpetualID != order.PerpetualID || decoded.Type != order.Type {
		t.Fatalf("decoded order mismatch: %+v", decoded)
	}
	if decoded.PricePNS.Cmp(order.PricePNS) != 0 || decoded.LotLNS.Cmp(order.LotLNS) != 0 {
		t.Fatalf("decoded price/lot mismatch: %+v", decoded)
	}
	if decoded.Leverage != order.Leverage {
		t.Fatalf("decoded leverage = %d, want %d", decoded.Leverage, order.Leverage)
	}
}

func TestEncodeOrderDescriptorCloseSentinelLeverage(t *testing.T) {
	t.Parallel()

	order := types.Order{
		ID:          1,
		PerpetualID: 1,
		Type:        types.OrderCloseLong,
		PricePNS:    PriceToPNS(95000.0, 1),
		LotLNS:      LotToLNS(0.1, 8),
		Leverage:    0,
	}

	desc, err := EncodeOrderDescriptor(1, order, 1, 0, big.NewInt(0))
	if err != nil {
		t.Fatalf("EncodeOrderDescriptor: %v", err)
	}
	if desc.LeverageHundredths != closeSentinelLeverage {
		t.Fatalf("close leverage = %d, want sentinel %d", desc.LeverageHundredths, closeSentinelLeverage)
	}
}

func TestEncodeOrderDescriptorRejectsNegativePrice(t *testing.T) {
	t.Parallel()

	order := types.Order{
		Type:     types.OrderOpenLong,
		PricePNS: big.NewInt(-1),
		LotLNS:   big.NewInt(1),
		Leverage: 100,
	}

	if _, err := EncodeOrderDescriptor(1, order, 1, 0, big.NewInt(0)); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestEncodeOrderDescriptorRejectsZeroLotForOpen(t *testing.T) {
	t.Parallel()

	order := types.Order{
		Type:     types.OrderOpenShort,
		PricePNS: big.NewInt(1),
		LotLNS:   big.NewInt(0),
		Leverage: 100,
	}

	if _, err := EncodeOrderDescriptor(1, order, 1, 0, big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero lot on open")
	}
}

func TestEncodeOrderDescriptorRejectsSubOneLeverageForOpen(t *testing.T) {
	t.Parallel()

	order := types.Order{
		Type:     types.OrderOpenLong,
		PricePNS: big.NewInt(1),
		LotLNS:   big.NewInt(1),
		Leverage: 50,
	}

	if _, err := EncodeOrderDescriptor(1, order, 1, 0, big.NewInt(0)); err == nil {
		t.Fatal("expected error for sub-1x leverage on open")
	}
}

func TestSafeDiv(t *testing.T) {
	t.Parallel()

	if got := SafeDiv(10, 0); got != 0 {
		t.Fatalf("SafeDiv(10, 0) = %v, want 0", got)
	}
	if got := SafeDiv(10, 2); got != 5 {
		t.Fatalf("SafeDiv(10, 2) = %v, want 5", got)
	}
}
