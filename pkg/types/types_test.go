package types

import (
	"math/big"
	"testing"
)

func TestAccountAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		balance int64
		locked  int64
		want    int64
	}{
		{"normal", 1000, 400, 600},
		{"fully locked", 1000, 1000, 0},
		{"locked exceeds balance never goes negative", 1000, 1500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Account{
				BalanceCNS:       big.NewInt(tt.balance),
				LockedBalanceCNS: big.NewInt(tt.locked),
			}
			if got := a.Available(); got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("Available() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusOpen, false},
		{StatusPartiallyFilled, false},
		{StatusFilled, true},
		{StatusCancelled, true},
		{StatusRejected, true},
		{StatusExpired, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("status %v IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSessionValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{"fully authenticated", Session{Nonce: "n", Cookie: "c", Authenticated: true}, true},
		{"missing cookie", Session{Nonce: "n", Authenticated: true}, false},
		{"missing nonce", Session{Cookie: "c", Authenticated: true}, false},
		{"not authenticated despite both present", Session{Nonce: "n", Cookie: "c"}, false},
		{"zero value", Session{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPositionTypeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pt   PositionType
		want string
	}{
		{PositionNone, "NONE"},
		{PositionLong, "LONG"},
		{PositionShort, "SHORT"},
	}

	for _, tt := range tests {
		if got := tt.pt.String(); got != tt.want {
			t.Errorf("PositionType(%d).String() = %q, want %q", tt.pt, got, tt.want)
		}
	}
}
