package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/perplbot/perplbot/pkg/types"
)

// maxBookLevels bounds how many price levels are kept on each side of the
// reconstructed book, closest to the spread (spec.md §4.4).
const maxBookLevels = 20

// maxWalkSteps caps the number of on-chain hops a single-side walk will take
// before giving up, independent of maxBookLevels, so a pathological book
// with many empty price levels between orders cannot run unbounded RPCs.
const maxWalkSteps = 500

// GetBookView reconstructs an L2 book for one perpetual by walking resting
// price levels on-chain, starting from the market's current max bid/ask
// offsets and descending via getNextPriceBelowWithOrders until the walk is
// exhausted (or maxWalkSteps hops have been taken), then keeping the
// maxBookLevels levels closest to the spread on each side.
//
// When both maxBidPriceONS and maxAskPriceONS are zero the book is empty
// and no further RPCs are made (spec.md §8 boundary test).
func (c *Client) GetBookView(ctx context.Context, perpID int64) (types.BookView, error) {
	perp, err := c.GetPerpetualInfo(ctx, perpID)
	if err != nil {
		return types.BookView{}, fmt.Errorf("contractclient: getBookView: %w", err)
	}

	view := types.BookView{PerpetualID: perpID}

	if perp.MaxBidPriceONS.Sign() == 0 && perp.MaxAskPriceONS.Sign() == 0 {
		return view, nil
	}

	bids, err := c.walkSide(ctx, perpID, perp.MaxBidPriceONS)
	if err != nil {
		return types.BookView{}, err
	}
	// Bids start at the best (closest-to-spread) price and descend away
	// from it, so the first maxBookLevels collected are the closest ones.
	if len(bids) > maxBookLevels {
		bids = bids[:maxBookLevels]
	}
	view.Bids = bids
	view.TotalOrders += int64(len(bids))

	asks, err := c.walkSide(ctx, perpID, perp.MaxAskPriceONS)
	if err != nil {
		return types.BookView{}, err
	}
	// Asks start at the worst (farthest-from-spread) price and descend
	// toward it, so the closest levels are the trailing ones collected.
	if len(asks) > maxBookLevels {
		asks = asks[len(asks)-maxBookLevels:]
	}
	view.Asks = asks
	view.TotalOrders += int64(len(asks))

	if len(bids) > 0 && len(asks) > 0 {
		spread := new(big.Int).Sub(asks[len(asks)-1].PriceONS, bids[0].PriceONS)
		view.SpreadONS = spread
	}

	return view, nil
}

// walkSide descends from startONS through resting price levels, reading
// volume at each stop and following getNextPriceBelowWithOrders until it
// returns zero (walk exhausted) or maxWalkSteps hops have been made. The
// caller truncates to maxBookLevels afterward, keeping whichever end of the
// slice is closest to the spread for that side.
func (c *Client) walkSide(ctx context.Context, perpID int64, startONS *big.Int) ([]types.BookLevel, error) {
	if startONS == nil || startONS.Sign() == 0 {
		return nil, nil
	}

	levels := make([]types.BookLevel, 0, maxBookLevels)
	cursor := startONS

	for step := 0; step < maxWalkSteps; step++ {
		vol, err := c.GetVolumeAtBookPrice(ctx, perpID, cursor)
		if err != nil {
			return nil, fmt.Errorf("contractclient: walkSide: getVolumeAtBookPrice: %w", err)
		}
		if vol.Sign() > 0 {
			levels = append(levels, types.BookLevel{
				PriceONS:  new(big.Int).Set(cursor),
				VolumeLNS: vol,
			})
		}

		next, err := c.GetNextPriceBelowWithOrders(ctx, perpID, cursor)
		if err != nil {
			return nil, fmt.Errorf("contractclient: walkSide: getNextPriceBelowWithOrders: %w", err)
		}
		if next.Sign() == 0 {
			break
		}
		cursor = next
	}

	return levels, nil
}
