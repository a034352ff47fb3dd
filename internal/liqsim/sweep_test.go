package liqsim

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/pkg/types"
)

func TestWriteBitsAtAndReadBitsAtRoundTrip(t *testing.T) {
	var word common.Hash
	for _, offset := range candidateBitOffsets {
		updated := writeBitsAt(word, offset, probeValue)
		got := readBitsAt(updated, offset)
		if got != probeValue {
			t.Fatalf("offset %d: round-trip got %#x, want %#x", offset, got, probeValue)
		}
	}
}

func TestWriteBitsAtDoesNotDisturbOtherWindows(t *testing.T) {
	var word common.Hash
	word = writeBitsAt(word, 0, 0x11111111)
	word = writeBitsAt(word, 32, 0x22222222)

	if got := readBitsAt(word, 0); got != 0x11111111 {
		t.Fatalf("offset 0 disturbed: got %#x", got)
	}
	if got := readBitsAt(word, 32); got != 0x22222222 {
		t.Fatalf("offset 32 disturbed: got %#x", got)
	}
}

func TestSweepPricesSpansConfiguredRange(t *testing.T) {
	center := big.NewInt(1_000_000)
	prices := sweepPrices(center, 30, 20)
	if len(prices) != 20 {
		t.Fatalf("got %d prices, want 20", len(prices))
	}
	if prices[0].Cmp(big.NewInt(700_000)) > 0 {
		t.Fatalf("lowest price %s is not near the bottom of the range", prices[0])
	}
	if prices[len(prices)-1].Cmp(big.NewInt(1_300_000)) < 0 {
		t.Fatalf("highest price %s is not near the top of the range", prices[len(prices)-1])
	}
}

func TestFindBoundarySingleCrossing(t *testing.T) {
	samples := []samplePoint{
		{pricePNS: big.NewInt(900_000), liquidatable: true},
		{pricePNS: big.NewInt(1_000_000), liquidatable: false},
		{pricePNS: big.NewInt(1_100_000), liquidatable: false},
	}
	safe, liq, crossings := findBoundary(samples)
	if crossings != 1 {
		t.Fatalf("crossings = %d, want 1", crossings)
	}
	if safe.Cmp(big.NewInt(1_000_000)) != 0 || liq.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("unexpected bracket: safe=%s liquidatable=%s", safe, liq)
	}
}

func TestFindBoundaryMultipleCrossingsReportsLowConfidence(t *testing.T) {
	samples := []samplePoint{
		{pricePNS: big.NewInt(800_000), liquidatable: true},
		{pricePNS: big.NewInt(900_000), liquidatable: false},
		{pricePNS: big.NewInt(1_000_000), liquidatable: true},
		{pricePNS: big.NewInt(1_100_000), liquidatable: false},
	}
	_, _, crossings := findBoundary(samples)
	if crossings != 3 {
		t.Fatalf("crossings = %d, want 3", crossings)
	}
}

func TestBinarySearchBoundaryConverges(t *testing.T) {
	trueBoundary := big.NewInt(950_000)
	check := func(price *big.Int) bool {
		return price.Cmp(trueBoundary) <= 0
	}

	got := binarySearchBoundary(big.NewInt(1_000_000), big.NewInt(900_000), 20, check)

	diff := new(big.Int).Sub(got, trueBoundary)
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(10)) > 0 {
		t.Fatalf("binary search converged to %s, want within 10 of %s", got, trueBoundary)
	}
}

func TestIsLiquidatableAtPriceLongPosition(t *testing.T) {
	pos := types.Position{
		Type:       types.PositionLong,
		EntryPricePNS: big.NewInt(1_000_000),
		LotLNS:     big.NewInt(10_000_000),
		DepositCNS: big.NewInt(5_000_000),
	}

	if isLiquidatableAtPrice(pos, big.NewInt(1_000_000), 6, 6, 0.05) {
		t.Fatalf("position should be safe at entry price")
	}
	if !isLiquidatableAtPrice(pos, big.NewInt(400_000), 6, 6, 0.05) {
		t.Fatalf("position should be liquidatable after a steep drop")
	}
}

func TestIsLiquidatableAtPriceShortPosition(t *testing.T) {
	pos := types.Position{
		Type:       types.PositionShort,
		EntryPricePNS: big.NewInt(1_000_000),
		LotLNS:     big.NewInt(10_000_000),
		DepositCNS: big.NewInt(5_000_000),
	}

	if isLiquidatableAtPrice(pos, big.NewInt(1_000_000), 6, 6, 0.05) {
		t.Fatalf("position should be safe at entry price")
	}
	if !isLiquidatableAtPrice(pos, big.NewInt(1_600_000), 6, 6, 0.05) {
		t.Fatalf("short position should be liquidatable after a steep rise")
	}
}
