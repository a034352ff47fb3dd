package liqsim

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// discoverLayout implements spec.md §4.7 steps 1-2: find the storage slot
// backing getPerpetualInfo's markPNS/oraclePNS/markTimestamp, then the bit
// offset of each field within that packed word.
//
// getInfo must call getPerpetualInfo(perpId) and return (markPNS,
// oraclePNS, markTimestamp) so the probe can tell which write
// changed which field.
func discoverLayout(ctx context.Context, rpc rpcCaller, exchange common.Address, callData []byte, getInfo func(ctx context.Context) (markPNS, oraclePNS, markTimestamp *big.Int, err error)) (*priceSlotLayout, error) {
	keys, err := traceStorageKeys(ctx, rpc, exchange, callData)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("liqsim: no storage slots observed tracing getPerpetualInfo")
	}

	before, _, _, err := getInfo(ctx)
	if err != nil {
		return nil, err
	}

	stack := newSnapshotStack(rpc)

	var priceSlot common.Hash
	found := false
	for _, slot := range keys {
		if _, err := stack.push(ctx); err != nil {
			return nil, err
		}

		if err := setStorageAt(ctx, rpc, exchange, slot, common.Hash{}); err != nil {
			stack.unwindAll(ctx)
			return nil, err
		}

		after, _, _, err := getInfo(ctx)
		if err != nil {
			stack.unwindAll(ctx)
			return nil, err
		}

		changed := after.Cmp(before) != 0
		if popErr := stack.pop(ctx); popErr != nil {
			return nil, popErr
		}
		if changed {
			priceSlot = slot
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("liqsim: could not identify the price storage slot among %d candidates", len(keys))
	}

	markOffset, err := probeFieldOffset(ctx, rpc, exchange, priceSlot, func(probed uint32) bool {
		mark, _, _, err := getInfo(ctx)
		return err == nil && mark.Cmp(big.NewInt(int64(probed))) == 0
	})
	if err != nil {
		return nil, fmt.Errorf("liqsim: mark price offset probe: %w", err)
	}

	oracleOffset, err := probeFieldOffset(ctx, rpc, exchange, priceSlot, func(probed uint32) bool {
		_, oracle, _, err := getInfo(ctx)
		return err == nil && oracle.Cmp(big.NewInt(int64(probed))) == 0
	})
	if err != nil {
		return nil, fmt.Errorf("liqsim: oracle price offset probe: %w", err)
	}

	now := time.Now().Unix()
	tsOffset, err := probeFieldOffset(ctx, rpc, exchange, priceSlot, func(probed uint32) bool {
		_, _, ts, err := getInfo(ctx)
		return err == nil && ts.Int64() == int64(probed)
	})
	if err != nil {
		return nil, fmt.Errorf("liqsim: timestamp offset probe: %w", err)
	}

	oracleTSOffset := locateOracleTimestamp(ctx, rpc, exchange, priceSlot, tsOffset, now)

	return &priceSlotLayout{
		slot:                priceSlot,
		markOffsetBits:      markOffset,
		oracleOffsetBits:    oracleOffset,
		timestampOffsetBits: tsOffset,
		oracleTSOffsetBits:  oracleTSOffset,
	}, nil
}

// probeFieldOffset writes a distinctive value at each candidate bit offset
// and asks matches whether the contract's view now reflects it, restoring
// the original word between attempts (spec.md §4.7 step 2).
func probeFieldOffset(ctx context.Context, rpc rpcCaller, exchange common.Address, slot common.Hash, matches func(probed uint32) bool) (int, error) {
	original, err := getStorageAt(ctx, rpc, exchange, slot)
	if err != nil {
		return 0, err
	}

	stack := newSnapshotStack(rpc)
	defer stack.unwindAll(ctx)

	for _, offset := range candidateBitOffsets {
		if _, err := stack.push(ctx); err != nil {
			return 0, err
		}

		probed := writeBitsAt(original, offset, probeValue)
		if err := setStorageAt(ctx, rpc, exchange, slot, probed); err != nil {
			stack.unwindAll(ctx)
			return 0, err
		}

		match := matches(probeValue)

		if err := stack.pop(ctx); err != nil {
			return 0, err
		}
		if match {
			return offset, nil
		}
	}
	return 0, fmt.Errorf("liqsim: no candidate offset matched the probe value")
}

// locateOracleTimestamp heuristically places oracleTimestamp at ±32 or ±64
// bits from markTimestamp, filtered by plausibility (within ±1 year of
// wall-clock), per spec.md §4.7 step 2. Returns -1 if nothing plausible is
// found; a missing oracleTimestamp is not fatal to verification.
func locateOracleTimestamp(ctx context.Context, rpc rpcCaller, exchange common.Address, slot common.Hash, markTSOffset int, nowUnix int64) int {
	word, err := getStorageAt(ctx, rpc, exchange, slot)
	if err != nil {
		return -1
	}

	const oneYearSeconds = 365 * 24 * 3600
	for _, delta := range []int{32, -32, 64, -64} {
		offset := markTSOffset + delta
		if offset < 0 || offset > 224 {
			continue
		}
		candidate := int64(readBitsAt(word, offset))
		if candidate == 0 {
			continue
		}
		diff := candidate - nowUnix
		if diff < 0 {
			diff = -diff
		}
		if diff <= oneYearSeconds {
			return offset
		}
	}
	return -1
}
