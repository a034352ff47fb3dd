package wsclient

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/perplbot/perplbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMarketFeedDispatchesBookEvent(t *testing.T) {
	t.Parallel()

	f := NewMarketFeed("wss://unused.invalid/ws/v1/market-data", testLogger())

	raw, _ := json.Marshal(struct {
		MT     types.MessageType `json:"mt"`
		PerpID int64             `json:"perp_id"`
	}{MT: types.MTBookSnapshot, PerpID: 42})

	f.dispatchMessage(raw)

	select {
	case evt := <-f.bookCh:
		if evt.PerpetualID != 42 {
			t.Fatalf("PerpetualID = %d, want 42", evt.PerpetualID)
		}
	default:
		t.Fatal("expected a book event")
	}
}

func TestMarketFeedSilentlyDropsUnknownMT(t *testing.T) {
	t.Parallel()

	f := NewMarketFeed("wss://unused.invalid/ws/v1/market-data", testLogger())
	raw, _ := json.Marshal(struct {
		MT types.MessageType `json:"mt"`
	}{MT: types.MessageType(9999)})

	f.dispatchMessage(raw) // must not panic

	select {
	case <-f.bookCh:
		t.Fatal("unexpected event delivered for unknown mt")
	default:
	}
}

func TestMarketFeedSubscribeResponseTracksSID(t *testing.T) {
	t.Parallel()

	f := NewMarketFeed("wss://unused.invalid/ws/v1/market-data", testLogger())
	f.subMu.Lock()
	f.subs["order-book@42"] = 0
	f.subMu.Unlock()

	resp := types.WSSubscribeResponse{
		MT:   types.MTSubscribeResponse,
		Subs: []types.WSSubResponseItem{{Stream: "order-book@42", SID: 7}},
	}
	raw, _ := json.Marshal(resp)
	f.dispatchMessage(raw)

	f.subMu.RLock()
	sid := f.subs["order-book@42"]
	f.subMu.RUnlock()
	if sid != 7 {
		t.Fatalf("sid = %d, want 7", sid)
	}
}

func TestMarketFeedIgnoresPong(t *testing.T) {
	t.Parallel()

	f := NewMarketFeed("wss://unused.invalid/ws/v1/market-data", testLogger())
	raw, _ := json.Marshal(types.WSEnvelope{MT: types.MTPong})
	f.dispatchMessage(raw) // must not panic, no channel affected
}
