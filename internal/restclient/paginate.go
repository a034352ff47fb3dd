package restclient

import "context"

// defaultPageSize is the count requested per history page when callers
// don't care about tuning it.
const defaultPageSize = 100

// paginate walks fetchPage forward until np is empty or maxPages pages have
// been fetched (maxPages == 0 means unbounded), concatenating d across
// pages, per spec.md §8 ("the auto-paginator returns the concatenation of d
// across all pages until np is empty; with a maxPages bound, it yields
// exactly maxPages pages' worth").
//
// pacer additionally rate-limits the walk so a deep history pull doesn't
// burst the History token bucket in a tight loop.
func paginate[T any](ctx context.Context, c *Client, maxPages int, fetchPage func(ctx context.Context, page string, count int) (Page[T], error)) ([]T, error) {
	var all []T
	page := ""
	for pages := 0; maxPages == 0 || pages < maxPages; pages++ {
		if err := c.pagePace.Wait(ctx); err != nil {
			return all, err
		}

		result, err := fetchPage(ctx, page, defaultPageSize)
		if err != nil {
			return all, err
		}
		all = append(all, result.D...)

		if result.NP == "" {
			break
		}
		page = result.NP
	}
	return all, nil
}

// GetAllFills auto-paginates GetFills, stopping at maxPages (0 = unbounded).
func (c *Client) GetAllFills(ctx context.Context, maxPages int) ([]FillRecord, error) {
	return paginate(ctx, c, maxPages, c.GetFills)
}

// GetAllOrderHistory auto-paginates GetOrderHistory, stopping at maxPages (0 = unbounded).
func (c *Client) GetAllOrderHistory(ctx context.Context, maxPages int) ([]OrderHistoryRecord, error) {
	return paginate(ctx, c, maxPages, c.GetOrderHistory)
}

// GetAllPositionHistory auto-paginates GetPositionHistory, stopping at maxPages (0 = unbounded).
func (c *Client) GetAllPositionHistory(ctx context.Context, maxPages int) ([]PositionHistoryRecord, error) {
	return paginate(ctx, c, maxPages, c.GetPositionHistory)
}

// GetAllAccountHistory auto-paginates GetAccountHistory, stopping at maxPages (0 = unbounded).
func (c *Client) GetAllAccountHistory(ctx context.Context, maxPages int) ([]AccountHistoryRecord, error) {
	return paginate(ctx, c, maxPages, c.GetAccountHistory)
}
