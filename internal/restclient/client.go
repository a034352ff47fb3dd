// Package restclient implements the HTTPS leg of PerplBot's dual-transport
// exchange client (spec.md §4.2): unauthenticated protocol metadata and
// candles, a sign-in-with-wallet session handshake, and auto-paginating
// authenticated history endpoints.
//
// Every request is rate-limited via per-category TokenBuckets and retried
// on 5xx errors, matching the teacher's resty-based exchange client.
package restclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/perplbot/perplbot/pkg/types"
)

// Client is the REST API client.
type Client struct {
	http    *resty.Client
	rl      *RateLimiter
	pagePace *rate.Limiter
	sess    sessionStore
	logger  *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry, pointed at
// baseURL (spec.md §6's apiBaseUrl).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:     httpClient,
		rl:       NewRateLimiter(),
		pagePace: rate.NewLimiter(rate.Limit(5), 5),
		logger:   logger,
	}
}

// Session returns a copy of the current session state.
func (c *Client) Session() types.Session {
	return c.sess.get()
}

// authHeaders attaches the captured nonce and cookie to an authenticated
// request, per spec.md §4.2 ("future authenticated calls attach
// X-Auth-Nonce... and Cookie...").
func (c *Client) authHeaders() map[string]string {
	sess := c.sess.get()
	return map[string]string{
		"X-Auth-Nonce": sess.Nonce,
		"Cookie":       sess.Cookie,
	}
}

func (c *Client) requireAuth() error {
	if !c.sess.get().Valid() {
		return ErrNotAuthenticated
	}
	return nil
}

// GetContext fetches unauthenticated protocol metadata.
func (c *Client) GetContext(ctx context.Context) (*Context, error) {
	if err := c.rl.Context.Wait(ctx); err != nil {
		return nil, err
	}

	var result Context
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/pub/context")
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyStatus("getContext", resp.StatusCode(), resp.String(), ErrNotFound)
	}
	return &result, nil
}

// GetCandles fetches an unauthenticated OHLCV window.
func (c *Client) GetCandles(ctx context.Context, marketID int64, resolutionSeconds int64, fromMs, toMs int64) (*CandlesResponse, error) {
	if err := c.rl.Context.Wait(ctx); err != nil {
		return nil, err
	}

	var result CandlesResponse
	path := fmt.Sprintf("/v1/market-data/%d/candles/%d/%d-%d", marketID, resolutionSeconds, fromMs, toMs)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyStatus("getCandles", resp.StatusCode(), resp.String(), ErrNotFound)
	}
	return &result, nil
}

// Authenticate performs the sign-in-with-wallet handshake: request a
// challenge, have the caller sign it, submit the signature, and capture the
// resulting cookie and session nonce (spec.md §4.2).
func (c *Client) Authenticate(ctx context.Context, chainID int64, address string, sign SignFunc, refCode string) error {
	if err := c.rl.Auth.Wait(ctx); err != nil {
		return err
	}

	var payload AuthPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"chain_id": chainID, "address": address}).
		SetResult(&payload).
		Post("/v1/auth/payload")
	if err != nil {
		return fmt.Errorf("auth payload: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return classifyStatus("authenticate", resp.StatusCode(), resp.String(), ErrNotFound)
	}

	signature, err := sign(payload.Message)
	if err != nil {
		return fmt.Errorf("sign auth message: %w", err)
	}

	body := map[string]any{
		"chain_id":  chainID,
		"address":   address,
		"message":   payload.Message,
		"nonce":     payload.Nonce,
		"issued_at": payload.IssuedAt,
		"mac":       payload.MAC,
		"signature": signature,
	}
	if refCode != "" {
		body["ref_code"] = refCode
	}

	var connectResult AuthConnectResponse
	connectResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&connectResult).
		Post("/v1/auth/connect")
	if err != nil {
		return fmt.Errorf("auth connect: %w", err)
	}
	if connectResp.StatusCode() != http.StatusOK {
		return classifyStatus("authenticate", connectResp.StatusCode(), connectResp.String(), ErrNotFound)
	}

	cookie := connectResp.Header().Get("Set-Cookie")
	if cookie == "" || connectResult.Nonce == "" {
		return fmt.Errorf("restclient: authenticate: incomplete session (cookie present=%v, nonce present=%v)",
			cookie != "", connectResult.Nonce != "")
	}

	c.sess.set(types.Session{
		Nonce:         connectResult.Nonce,
		Cookie:        cookie,
		Authenticated: true,
	})
	c.logger.Info("authenticated", "address", address)
	return nil
}

// ClearAuth resets local session state (spec.md §4.2).
func (c *Client) ClearAuth() {
	c.sess.clear()
}

// GetPositions fetches every currently open position for the authenticated
// account in a single call, batched across perpetuals (spec.md §4.5).
func (c *Client) GetPositions(ctx context.Context) ([]PositionRecord, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	if err := c.rl.History.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		D []PositionRecord `json:"d"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetResult(&result).
		Get("/v1/trading/positions")
	if err != nil {
		return nil, fmt.Errorf("getPositions: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.sess.clear()
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyStatus("getPositions", resp.StatusCode(), resp.String(), ErrNotFound)
	}
	return result.D, nil
}

func (c *Client) historyPage(ctx context.Context, op, path string, page string, count int, out any) error {
	if err := c.requireAuth(); err != nil {
		return err
	}
	if err := c.rl.History.Wait(ctx); err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetQueryParam("count", fmt.Sprintf("%d", count)).
		SetResult(out)
	if page != "" {
		req.SetQueryParam("page", page)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.sess.clear()
	}
	if resp.StatusCode() != http.StatusOK {
		return classifyStatus(op, resp.StatusCode(), resp.String(), ErrNotFound)
	}
	return nil
}

// GetFills fetches one page of fills.
func (c *Client) GetFills(ctx context.Context, page string, count int) (Page[FillRecord], error) {
	var result Page[FillRecord]
	if err := c.historyPage(ctx, "getFills", "/v1/trading/fills", page, count, &result); err != nil {
		return Page[FillRecord]{}, err
	}
	return result, nil
}

// GetOrderHistory fetches one page of historical orders.
func (c *Client) GetOrderHistory(ctx context.Context, page string, count int) (Page[OrderHistoryRecord], error) {
	var result Page[OrderHistoryRecord]
	if err := c.historyPage(ctx, "getOrderHistory", "/v1/trading/order-history", page, count, &result); err != nil {
		return Page[OrderHistoryRecord]{}, err
	}
	return result, nil
}

// GetPositionHistory fetches one page of closed positions.
func (c *Client) GetPositionHistory(ctx context.Context, page string, count int) (Page[PositionHistoryRecord], error) {
	var result Page[PositionHistoryRecord]
	if err := c.historyPage(ctx, "getPositionHistory", "/v1/trading/position-history", page, count, &result); err != nil {
		return Page[PositionHistoryRecord]{}, err
	}
	return result, nil
}

// GetAccountHistory fetches one page of the account ledger.
func (c *Client) GetAccountHistory(ctx context.Context, page string, count int) (Page[AccountHistoryRecord], error) {
	var result Page[AccountHistoryRecord]
	if err := c.historyPage(ctx, "getAccountHistory", "/v1/trading/account-history", page, count, &result); err != nil {
		return Page[AccountHistoryRecord]{}, err
	}
	return result, nil
}
