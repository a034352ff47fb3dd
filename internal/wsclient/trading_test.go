package wsclient

import (
	"encoding/json"
	"testing"

	"github.com/perplbot/perplbot/pkg/types"
)

func TestNewOrderRequestMarketIOC(t *testing.T) {
	t.Parallel()

	// spec.md §8 #4: openLong(marketId=16, accountId=100, size=1000,
	// price=undefined, leverage=1000, lastBlock=50000) emits mt=22, t=1, fl=4.
	req := NewOrderRequest(types.WSOpenLong, 16, 100, "1000", nil, 1000, 50000)

	if req.T != types.WSOpenLong {
		t.Fatalf("T = %v, want WSOpenLong", req.T)
	}
	if req.FL != types.FlagImmediateOrCancel {
		t.Fatalf("FL = %v, want FlagImmediateOrCancel (4)", req.FL)
	}
	if req.P != nil {
		t.Fatalf("P = %v, want nil for market order", req.P)
	}
}

func TestNewOrderRequestLimitGTC(t *testing.T) {
	t.Parallel()

	price := priceString(50000)
	req := NewOrderRequest(types.WSOpenLong, 16, 100, "1000", &price, 1000, 50000)

	if req.FL != types.FlagGTC {
		t.Fatalf("FL = %v, want FlagGTC (0)", req.FL)
	}
	if req.P == nil || *req.P != "50000" {
		t.Fatalf("P = %v, want \"50000\"", req.P)
	}
}

func TestTradingFeedConfirmAuthUnblocksOnWalletSnapshot(t *testing.T) {
	t.Parallel()

	f := NewTradingFeed("wss://unused.invalid/ws/v1/trading", 1, func() types.Session {
		return types.Session{Nonce: "n", Cookie: "c", Authenticated: true}
	}, testLogger())

	f.authMu.Lock()
	f.authCh = make(chan struct{})
	f.authMu.Unlock()

	walletRaw, _ := json.Marshal(struct {
		MT types.MessageType `json:"mt"`
		types.WSWalletEvent
	}{MT: types.MTWalletSnapshot, WSWalletEvent: types.WSWalletEvent{AccountID: 1, BalanceCNS: "1000000"}})

	f.dispatchMessage(walletRaw)

	select {
	case <-f.authChannel():
	default:
		t.Fatal("expected auth channel to be closed after wallet snapshot")
	}

	select {
	case evt := <-f.walletCh:
		if evt.AccountID != 1 {
			t.Fatalf("AccountID = %d, want 1", evt.AccountID)
		}
	default:
		t.Fatal("expected wallet event delivered")
	}
}

func TestTradingFeedSubmitOrderAssignsIncreasingRQ(t *testing.T) {
	t.Parallel()

	f := NewTradingFeed("wss://unused.invalid/ws/v1/trading", 1, func() types.Session {
		return types.Session{}
	}, testLogger())

	// The feed is not connected, so each write fails, but SubmitOrder still
	// returns the rq it assigned.
	first, _ := f.SubmitOrder(types.WSOrderRequest{})
	second, _ := f.SubmitOrder(types.WSOrderRequest{})
	if second <= first {
		t.Fatalf("rq not strictly increasing: %d then %d", first, second)
	}
}

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	want := []int{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for i, w := range want {
		if got := backoffFor(i).Seconds(); int(got) != w {
			t.Errorf("backoffFor(%d) = %vs, want %ds", i, got, w)
		}
	}
}
