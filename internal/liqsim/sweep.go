package liqsim

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perplbot/perplbot/pkg/types"
)

// samplePoint is one price tried during the coarse sweep.
type samplePoint struct {
	pricePNS      *big.Int
	liquidatable  bool
}

// bigIntToUint32 packs a scaled-integer price into the 32-bit window the
// storage probe writes into. Prices that overflow 32 bits can't be forced
// through this fork-verification path; the caller falls back to the
// closed-form estimate alone.
func bigIntToUint32(n *big.Int) (uint32, error) {
	if n.Sign() < 0 || n.BitLen() > 32 {
		return 0, fmt.Errorf("liqsim: price %s does not fit the 32-bit storage window", n)
	}
	return uint32(n.Uint64()), nil
}

// writeMarkPrice read-modify-writes the packed storage word so that
// getPerpetualInfo reports pricePNS as both mark and oracle price, stamping
// both timestamps to nowUnix (spec.md §4.7 step 3).
func writeMarkPrice(ctx context.Context, rpc rpcCaller, exchange common.Address, layout *priceSlotLayout, pricePNS *big.Int, nowUnix int64) error {
	priceBits, err := bigIntToUint32(pricePNS)
	if err != nil {
		return err
	}

	word, err := getStorageAt(ctx, rpc, exchange, layout.slot)
	if err != nil {
		return err
	}

	word = writeBitsAt(word, layout.markOffsetBits, priceBits)
	word = writeBitsAt(word, layout.oracleOffsetBits, priceBits)

	tsBits := encodeTimestampProbe(nowUnix)
	word = writeBitsAt(word, layout.timestampOffsetBits, tsBits)
	if layout.oracleTSOffsetBits >= 0 {
		word = writeBitsAt(word, layout.oracleTSOffsetBits, tsBits)
	}

	return setStorageAt(ctx, rpc, exchange, layout.slot, word)
}

func pow10(d uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil)
}

// rescale converts a scaled integer from one decimal scale to another,
// truncating on the way down.
func rescale(n *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(n)
	}
	if fromDecimals > toDecimals {
		return new(big.Int).Quo(n, pow10(fromDecimals-toDecimals))
	}
	return new(big.Int).Mul(n, pow10(toDecimals-fromDecimals))
}

// positionValueCNS is |price * lot|, rescaled into CNS's fixed 1e6 scale.
func positionValueCNS(pricePNS, lotLNS *big.Int, priceDecimals, lotDecimals uint8) *big.Int {
	raw := new(big.Int).Mul(pricePNS, lotLNS)
	raw.Abs(raw)
	return rescale(raw, priceDecimals+lotDecimals, 6)
}

// unrealizedPnLCNS mirrors statetracker's mark-to-market formula (spec.md
// §4.6): (mark - entry) * lot, negated for shorts, rescaled into CNS.
func unrealizedPnLCNS(entryPNS, markPNS, lotLNS *big.Int, side types.PositionType, priceDecimals, lotDecimals uint8) *big.Int {
	diff := new(big.Int).Sub(markPNS, entryPNS)
	if side == types.PositionShort {
		diff.Neg(diff)
	}
	raw := new(big.Int).Mul(diff, lotLNS)
	return rescale(raw, priceDecimals+lotDecimals, 6)
}

// equityAtPriceCNS is the position's collateral plus its mark-to-market
// unrealized PnL at the hypothetical price.
func equityAtPriceCNS(pos types.Position, pricePNS *big.Int, priceDecimals, lotDecimals uint8) *big.Int {
	pnl := unrealizedPnLCNS(pos.EntryPricePNS, pricePNS, pos.LotLNS, pos.Type, priceDecimals, lotDecimals)
	return new(big.Int).Add(pos.DepositCNS, pnl)
}

// isLiquidatableAtPrice answers spec.md §4.7 step 4's liquidatability check
// for a hypothetical mark price, without touching chain state.
func isLiquidatableAtPrice(pos types.Position, pricePNS *big.Int, priceDecimals, lotDecimals uint8, maintenanceMargin float64) bool {
	equity := equityAtPriceCNS(pos, pricePNS, priceDecimals, lotDecimals)
	value := positionValueCNS(pricePNS, pos.LotLNS, priceDecimals, lotDecimals)
	return IsLiquidatable(equity, value, maintenanceMargin)
}

// sweepPrices generates the coarse sweep's candidate prices: priceSteps
// points evenly spaced across [mark*(1-rangePct/100), mark*(1+rangePct/100)]
// (spec.md §4.7 step 5).
func sweepPrices(centerPNS *big.Int, rangePct float64, steps int) []*big.Int {
	if steps < 2 {
		steps = 2
	}
	center := new(big.Float).SetInt(centerPNS)
	lowMul := big.NewFloat(1 - rangePct/100)
	highMul := big.NewFloat(1 + rangePct/100)

	low := new(big.Float).Mul(center, lowMul)
	high := new(big.Float).Mul(center, highMul)
	step := new(big.Float).Sub(high, low)
	step.Quo(step, big.NewFloat(float64(steps-1)))

	prices := make([]*big.Int, steps)
	cur := new(big.Float).Set(low)
	for i := 0; i < steps; i++ {
		p, _ := cur.Int(nil)
		if p.Sign() < 0 {
			p = big.NewInt(0)
		}
		prices[i] = p
		cur.Add(cur, step)
	}
	return prices
}

// findBoundary sorts samples by price and returns the adjacent pair that
// straddles the safe/liquidatable line, plus how many such crossings were
// found (spec.md §4.7 step 6). A count > 1 means the sweep was not
// monotonic in the sampled range, which the caller reports as low
// confidence.
func findBoundary(samples []samplePoint) (safe, liquidatable *big.Int, crossings int) {
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].pricePNS.Cmp(samples[j].pricePNS) < 0
	})

	var lastSafe, lastLiq *big.Int
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if prev.liquidatable != cur.liquidatable {
			crossings++
			if cur.liquidatable {
				lastSafe, lastLiq = prev.pricePNS, cur.pricePNS
			} else {
				lastSafe, lastLiq = cur.pricePNS, prev.pricePNS
			}
		}
	}
	return lastSafe, lastLiq, crossings
}

// binarySearchBoundary refines a (safe, liquidatable) bracket for the given
// number of iterations (default 10, spec.md §4.7 step 7), returning the
// liquidatable-side boundary price.
func binarySearchBoundary(safe, liquidatable *big.Int, iterations int, check func(price *big.Int) bool) *big.Int {
	lo, hi := new(big.Int).Set(safe), new(big.Int).Set(liquidatable)

	for i := 0; i < iterations; i++ {
		mid := new(big.Int).Add(lo, hi)
		mid.Quo(mid, big.NewInt(2))

		if check(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}
