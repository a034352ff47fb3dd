package wsclient

import "time"

// reconnectBackoff is the fixed sequence from spec.md §4.3: on an
// unexpected close, reconnect with exponential backoff over this sequence,
// up to maxReconnectAttempts; the close code 3401 case never reaches this
// (spec.md: "code 3401 → emit auth-expired, do not reconnect").
var reconnectBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
	60 * time.Second,
}

const maxReconnectAttempts = 10

// backoffFor returns the wait duration before reconnect attempt n (0-indexed),
// clamping to the last entry once the sequence is exhausted.
func backoffFor(attempt int) time.Duration {
	if attempt >= len(reconnectBackoff) {
		return reconnectBackoff[len(reconnectBackoff)-1]
	}
	return reconnectBackoff[attempt]
}

// authExpiredCloseCode is the close code signalling the session can no
// longer be resumed; per spec.md §4.3 it must not trigger a reconnect.
const authExpiredCloseCode = 3401
