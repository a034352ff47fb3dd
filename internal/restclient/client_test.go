package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/perplbot/perplbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pub/context" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Context{
			ChainID: 42161,
			Markets: []MarketConfig{{ID: 1, Symbol: "BTC-PERP", PriceDecimals: 1, LotDecimals: 8}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	ctx, err := c.GetContext(context.Background())
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if ctx.ChainID != 42161 || len(ctx.Markets) != 1 {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestAuthenticateCapturesSessionOnSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/payload":
			json.NewEncoder(w).Encode(AuthPayload{Message: "sign-me", Nonce: "n1", IssuedAt: "t1", MAC: "mac1"})
		case "/v1/auth/connect":
			w.Header().Set("Set-Cookie", "sid=abc123")
			json.NewEncoder(w).Encode(AuthConnectResponse{Nonce: "n2"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	sign := func(msg string) (string, error) { return "sig-" + msg, nil }

	if err := c.Authenticate(context.Background(), 42161, "0xabc", sign, ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	sess := c.Session()
	if !sess.Valid() {
		t.Fatalf("expected valid session, got %+v", sess)
	}
	if sess.Nonce != "n2" {
		t.Fatalf("session nonce = %q, want n2", sess.Nonce)
	}
}

func TestAuthenticateFailsWithoutCookieOrNonce(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/payload":
			json.NewEncoder(w).Encode(AuthPayload{Message: "sign-me", Nonce: "n1"})
		case "/v1/auth/connect":
			// no Set-Cookie, no nonce in body: both halves missing.
			json.NewEncoder(w).Encode(AuthConnectResponse{})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	sign := func(msg string) (string, error) { return "sig", nil }

	if err := c.Authenticate(context.Background(), 1, "0xabc", sign, ""); err == nil {
		t.Fatal("expected failure when cookie and nonce are absent")
	}
	if c.Session().Authenticated {
		t.Fatal("session must not be marked authenticated on failure")
	}
}

func TestAuthenticate418ProducesAccessRequired(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/payload":
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(AuthPayload{Message: "sign-me", Nonce: "n1"})
		case "/v1/auth/connect":
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte(`{"error":"wallet not whitelisted"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	sign := func(msg string) (string, error) { return "sig", nil }

	err := c.Authenticate(context.Background(), 1, "0xabc", sign, "")
	if err == nil {
		t.Fatal("expected access-required error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Kind != ErrAccessRequired {
		t.Fatalf("Kind = %v, want ErrAccessRequired", apiErr.Kind)
	}
}

func TestHistoryEndpointsRefuseWhenUnauthenticated(t *testing.T) {
	t.Parallel()

	c := NewClient("http://unused.invalid", testLogger())
	if _, err := c.GetFills(context.Background(), "", 10); err != ErrNotAuthenticated {
		t.Fatalf("GetFills error = %v, want ErrNotAuthenticated", err)
	}
}

func TestAutoPaginateWalksUntilEmptyCursor(t *testing.T) {
	t.Parallel()

	pages := [][]FillRecord{
		{{OrderID: 1}, {OrderID: 2}},
		{{OrderID: 3}},
		{},
	}
	var call int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := call
		if idx >= len(pages) {
			idx = len(pages) - 1
		}
		np := ""
		if idx < len(pages)-1 {
			np = fmt.Sprintf("cursor-%d", idx+1)
		}
		json.NewEncoder(w).Encode(Page[FillRecord]{D: pages[idx], NP: np})
		call++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	c.sess.set(types.Session{Nonce: "n", Cookie: "c", Authenticated: true})

	all, err := c.GetAllFills(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetAllFills: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 concatenated fills, got %d", len(all))
	}
}

func TestAutoPaginateRespectsMaxPages(t *testing.T) {
	t.Parallel()

	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		json.NewEncoder(w).Encode(Page[FillRecord]{
			D:  []FillRecord{{OrderID: int64(call)}},
			NP: fmt.Sprintf("cursor-%d", call),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	c.sess.set(types.Session{Nonce: "n", Cookie: "c", Authenticated: true})

	all, err := c.GetAllFills(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetAllFills: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected exactly 3 pages worth, got %d", len(all))
	}
}

func Test401ClearsSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"session expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	c.sess.set(types.Session{Nonce: "n", Cookie: "c", Authenticated: true})

	_, err := c.GetFills(context.Background(), "", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Kind != ErrSessionExpired {
		t.Fatalf("expected session-expired APIError, got %v", err)
	}
	if c.Session().Authenticated {
		t.Fatal("session must be cleared after 401")
	}
}
