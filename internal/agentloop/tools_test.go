package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/internal/restclient"
	"github.com/perplbot/perplbot/internal/router"
	"github.com/perplbot/perplbot/internal/statetracker"
	"github.com/perplbot/perplbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// bookStubCaller answers getPerpetualInfo/getVolumeAtBookPrice/
// getNextPriceBelowWithOrders against the exchange ABI from canned, per-method
// response queues, mirroring contractclient's own bookwalk_test.go stub so
// GetBookView can be exercised without a live chain.
type bookStubCaller struct {
	perpInfo   []any
	volumes    []*big.Int
	nextPrices []*big.Int

	volCalls  int
	nextCalls int
}

func (s *bookStubCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (s *bookStubCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	abiDef := contractclient.ExchangeABI()
	method, err := abiDef.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getPerpetualInfo":
		return method.Outputs.Pack(s.perpInfo...)
	case "getVolumeAtBookPrice":
		if s.volCalls >= len(s.volumes) {
			return nil, fmt.Errorf("bookStubCaller: no more volume responses queued")
		}
		v := s.volumes[s.volCalls]
		s.volCalls++
		return method.Outputs.Pack(v)
	case "getNextPriceBelowWithOrders":
		if s.nextCalls >= len(s.nextPrices) {
			return nil, fmt.Errorf("bookStubCaller: no more next-price responses queued")
		}
		n := s.nextPrices[s.nextCalls]
		s.nextCalls++
		return method.Outputs.Pack(n)
	default:
		return nil, fmt.Errorf("bookStubCaller: unexpected method %s", method.Name)
	}
}

func perpInfoFixture(basePricePNS, maxBidONS, maxAskONS *big.Int) []any {
	return []any{
		basePricePNS,
		big.NewInt(0), // markPNS
		big.NewInt(0), // oraclePNS
		big.NewInt(1_700_000_000),
		big.NewInt(0), // fundingRatePer100k
		big.NewInt(0), // openInterestLongLNS
		big.NewInt(0), // openInterestShortLNS
		maxBidONS,
		maxAskONS,
		false,
	}
}

func newTestDeps(stub *bookStubCaller) *Deps {
	exchange := bind.NewBoundContract(common.Address{}, contractclient.ExchangeABI(), stub, nil, nil)
	contract := contractclient.NewForTesting(1, exchange, nil)
	rest := restclient.NewClient("http://unused.invalid", testLogger())
	r := router.New(rest, contract, func() bool { return false }, testLogger())
	return &Deps{
		Router:     r,
		Tracker:    statetracker.New(0.05, testLogger()),
		Contract:   contract,
		Perpetuals: map[int64]PerpetualMeta{1: {Symbol: "TEST", PriceDecimals: 0, LotDecimals: 0}},
	}
}

// TestToolOrderBookRendersAsksNearestToSpreadFirst exercises spec.md §8's
// order-book depth test vector directly: GetBookView returns asks
// farthest-from-spread first, and the tool must present them nearest-first
// after truncating to depth.
func TestToolOrderBookRendersAsksNearestToSpreadFirst(t *testing.T) {
	t.Parallel()

	stub := &bookStubCaller{
		perpInfo: perpInfoFixture(big.NewInt(0), big.NewInt(10000), big.NewInt(60000)),
		volumes: []*big.Int{
			big.NewInt(1), big.NewInt(2), big.NewInt(3), // bids: 10000, 9500, 9000
			big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1), // asks: 60000..51000
		},
		nextPrices: []*big.Int{
			big.NewInt(9500), big.NewInt(9000), big.NewInt(0), // bid walk exhausts at 9000
			big.NewInt(58000), big.NewInt(55000), big.NewInt(53000), big.NewInt(51000), big.NewInt(0),
		},
	}
	deps := newTestDeps(stub)

	out, err := toolOrderBook(context.Background(), deps, map[string]any{
		"perpetual_id": float64(1),
		"depth":        float64(3),
	})
	if err != nil {
		t.Fatalf("toolOrderBook: %v", err)
	}
	result := out.(map[string]any)

	asks := result["asks"].([]map[string]any)
	if len(asks) != 3 {
		t.Fatalf("len(asks) = %d, want 3", len(asks))
	}
	wantAsks := []float64{51000, 53000, 55000}
	for i, want := range wantAsks {
		if got := asks[i]["price"].(float64); got != want {
			t.Errorf("asks[%d].price = %v, want %v", i, got, want)
		}
	}

	bids := result["bids"].([]map[string]any)
	if len(bids) != 3 {
		t.Fatalf("len(bids) = %d, want 3", len(bids))
	}
	wantBids := []float64{10000, 9500, 9000}
	for i, want := range wantBids {
		if got := bids[i]["price"].(float64); got != want {
			t.Errorf("bids[%d].price = %v, want %v", i, got, want)
		}
	}
}

// TestOrderTypeNamesCoversEveryOrderType guards against the silent
// empty-string rendering toolOpenOrders would otherwise produce for any
// types.OrderType missing from the map.
func TestOrderTypeNamesCoversEveryOrderType(t *testing.T) {
	t.Parallel()

	all := []types.OrderType{
		types.OrderOpenLong,
		types.OrderOpenShort,
		types.OrderCloseLong,
		types.OrderCloseShort,
		types.OrderCancel,
		types.OrderChange,
		types.OrderIncreasePositionCollateral,
	}
	for _, ot := range all {
		name, ok := orderTypeNames[ot]
		if !ok || name == "" {
			t.Errorf("orderTypeNames has no entry for OrderType(%d)", ot)
		}
	}
}

func pushOrder(tr *statetracker.Tracker, evt types.WSOrderEvent) {
	orderCh := make(chan types.WSOrderEvent, 1)
	orderCh <- evt
	close(orderCh)
	tr.Run(nil, orderCh, nil, nil, nil, nil)
}

// TestToolOpenOrdersRendersKnownOrderType exercises toolOpenOrders end to
// end against a real Tracker fed a live order event, guarding the handler
// itself (not just the lookup map) against a blank "type" field.
func TestToolOpenOrdersRendersKnownOrderType(t *testing.T) {
	t.Parallel()

	tr := statetracker.New(0.05, testLogger())
	pushOrder(tr, types.WSOrderEvent{
		OrderID:     1,
		PerpetualID: 1,
		AccountID:   1,
		Status:      "open",
		PriceONS:    "1000",
		LotLNS:      "1",
	})

	deps := &Deps{Tracker: tr, Perpetuals: map[int64]PerpetualMeta{1: {PriceDecimals: 0, LotDecimals: 0}}}
	out, err := toolOpenOrders(context.Background(), deps, map[string]any{})
	if err != nil {
		t.Fatalf("toolOpenOrders: %v", err)
	}
	orders := out.([]map[string]any)
	if len(orders) != 1 {
		t.Fatalf("len(orders) = %d, want 1", len(orders))
	}
	if orders[0]["type"] == "" {
		t.Error(`orders[0]["type"] is empty; order type missing from orderTypeNames`)
	}
}
