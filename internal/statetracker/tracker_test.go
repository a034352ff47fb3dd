package statetracker

import (
	"log/slog"
	"math/big"
	"os"
	"testing"

	"github.com/perplbot/perplbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestApplyWalletUpdatesAccount(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyWallet(types.WSWalletEvent{AccountID: 1, BalanceCNS: "1000000", LockedBalanceCNS: "200000"})

	avail := tr.Available()
	if avail.Cmp(big.NewInt(800000)) != 0 {
		t.Fatalf("Available = %v, want 800000", avail)
	}
}

func TestApplyOrderRemovesOnTerminalStatus(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyOrder(types.WSOrderEvent{OrderID: 42, Status: "open", PriceONS: "1000", LotLNS: "5"})

	if len(tr.Orders()) != 1 {
		t.Fatalf("expected 1 tracked order after open, got %d", len(tr.Orders()))
	}

	tr.applyOrder(types.WSOrderEvent{OrderID: 42, Status: "filled"})
	if len(tr.Orders()) != 0 {
		t.Fatalf("expected order removed after filled, got %d", len(tr.Orders()))
	}
}

func TestApplyOrderRemovesOnRemoveFlag(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyOrder(types.WSOrderEvent{OrderID: 7, Status: "open"})
	tr.applyOrder(types.WSOrderEvent{OrderID: 7, Status: "open", Remove: true})

	if len(tr.Orders()) != 0 {
		t.Fatal("expected order removed when r=true even with an open-looking status")
	}
}

func TestApplyPositionDeletesOnNonOpenStatus(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyPosition(types.WSPositionEvent{PositionID: 3, Status: "open", Type: "LONG", EntryPNS: "950000", LotLNS: "10", DepositCNS: "100000"})

	if len(tr.Positions()) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(tr.Positions()))
	}

	tr.applyPosition(types.WSPositionEvent{PositionID: 3, Status: "closed"})
	if len(tr.Positions()) != 0 {
		t.Fatalf("expected position removed on close, got %d", len(tr.Positions()))
	}
}

func TestSetMarkPriceComputesUnrealizedPnLForLong(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyPosition(types.WSPositionEvent{PositionID: 1, Status: "open", Type: "LONG", EntryPNS: "950000", LotLNS: "10", DepositCNS: "100000"})

	tr.SetMarkPrice(1, big.NewInt(960000))

	pnl := tr.TotalUnrealizedPnL()
	want := big.NewInt(100000) // (960000-950000) * 10
	if pnl.Cmp(want) != 0 {
		t.Fatalf("TotalUnrealizedPnL = %v, want %v", pnl, want)
	}
}

func TestSetMarkPriceComputesUnrealizedPnLForShort(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.applyPosition(types.WSPositionEvent{PositionID: 2, Status: "open", Type: "SHORT", EntryPNS: "950000", LotLNS: "10", DepositCNS: "100000"})

	tr.SetMarkPrice(2, big.NewInt(960000))

	pnl := tr.TotalUnrealizedPnL()
	want := big.NewInt(-100000) // short loses when price rises
	if pnl.Cmp(want) != 0 {
		t.Fatalf("TotalUnrealizedPnL = %v, want %v", pnl, want)
	}
}

func TestIsStaleBeforeAnyUpdate(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	if !tr.IsStale(1000) {
		t.Fatal("expected stale before any update has been recorded")
	}
}

func TestIsStaleFalseImmediatelyAfterUpdate(t *testing.T) {
	t.Parallel()

	tr := New(0.05, testLogger())
	tr.touch()
	if tr.IsStale(60_000) {
		t.Fatal("expected fresh immediately after touch")
	}
}
