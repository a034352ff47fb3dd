package router

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/internal/restclient"
	"github.com/perplbot/perplbot/internal/wire"
	"github.com/perplbot/perplbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// emptyPositionCaller answers every getPosition call with PositionType 0
// (none) and zeroed fields, so the contract fallback path has something
// deterministic to read without a live chain.
type emptyPositionCaller struct{}

func (emptyPositionCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (emptyPositionCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	abiDef := contractclient.ExchangeABI()
	method, err := abiDef.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != "getPosition" {
		return nil, nil
	}
	return method.Outputs.Pack(
		uint8(0),          // positionType: none
		big.NewInt(0),     // entryPricePNS
		big.NewInt(0),     // lotLNS
		big.NewInt(0),     // depositCNS
		big.NewInt(0),     // markPNS
		false,              // markPriceValid
	)
}

func newContractStub() *contractclient.Client {
	exchange := bind.NewBoundContract(common.Address{}, contractclient.ExchangeABI(), emptyPositionCaller{}, nil, nil)
	return contractclient.NewForTesting(1, exchange, nil)
}

func TestGetPositionsFallsBackToContractWhenUnauthenticated(t *testing.T) {
	t.Parallel()

	rest := restclient.NewClient("http://unused.invalid", testLogger())
	contract := newContractStub()

	r := New(rest, contract, func() bool { return false }, testLogger())

	positions, err := r.GetPositions(context.Background(), 100, []int64{7})
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected no open positions from the stub, got %d", len(positions))
	}
}

func TestGetPositionsFallsBackOnAPIError(t *testing.T) {
	t.Parallel()

	rest := restclient.NewClient("http://unused.invalid", testLogger())
	contract := newContractStub()

	r := New(rest, contract, func() bool { return true }, testLogger())

	// rest has no valid session, so the API path fails immediately with
	// ErrNotAuthenticated, exercising the same record-failure-then-fallback
	// path a live 5xx would.
	if _, err := r.GetPositions(context.Background(), 100, []int64{7}); err != nil {
		t.Fatalf("GetPositions should fall back rather than propagate the API error: %v", err)
	}
}

func TestPositionTypeFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]types.PositionType{
		"LONG":  types.PositionLong,
		"SHORT": types.PositionShort,
		"":      types.PositionNone,
		"x":     types.PositionNone,
	}
	for in, want := range cases {
		if got := positionTypeFromString(in); got != want {
			t.Errorf("positionTypeFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestShouldFallbackToSequential(t *testing.T) {
	t.Parallel()

	successReceipt := &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}
	failedReceipt := &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed}
	submitErr := context.DeadlineExceeded

	cases := []struct {
		name      string
		submitErr error
		waitErr   error
		receipt   *gethtypes.Receipt
		want      bool
	}{
		{"submit error falls back", submitErr, nil, nil, true},
		{"wait error falls back", nil, submitErr, nil, true},
		{"reverted receipt falls back", nil, nil, failedReceipt, true},
		{"successful receipt does not fall back", nil, nil, successReceipt, false},
	}
	for _, c := range cases {
		if got := shouldFallbackToSequential(c.submitErr, c.waitErr, c.receipt); got != c.want {
			t.Errorf("%s: shouldFallbackToSequential = %v, want %v", c.name, got, c.want)
		}
	}
}

func testOrderDescriptor(descriptorID uint64) wire.OrderDescriptor {
	return wire.OrderDescriptor{
		DescriptorID:       descriptorID,
		PerpetualID:        7,
		TypeCode:           1,
		PricePNS:           big.NewInt(1000),
		LotLNS:             big.NewInt(1),
		MaxMatches:         1,
		LeverageHundredths: 100,
	}
}

// TestExecOrdersFallsBackToSequentialWhenBatchUnavailable exercises the
// full ExecOrders path against a stub contract client with no operator key
// configured: the batch submission fails immediately, which must trigger
// the sequential fallback rather than surface the batch's raw submission
// error as something other than an ExecOrder-shaped failure.
func TestExecOrdersFallsBackToSequentialWhenBatchUnavailable(t *testing.T) {
	t.Parallel()

	rest := restclient.NewClient("http://unused.invalid", testLogger())
	contract := newContractStub()

	r := New(rest, contract, func() bool { return true }, testLogger())

	descs := []wire.OrderDescriptor{testOrderDescriptor(1), testOrderDescriptor(2)}
	err := r.ExecOrders(context.Background(), descs)
	if err == nil {
		t.Fatal("expected an error since the stub contract has no operator key")
	}
	if !strings.Contains(err.Error(), "operator key") {
		t.Fatalf("expected the sequential ExecOrder path's error to surface, got: %v", err)
	}
}
