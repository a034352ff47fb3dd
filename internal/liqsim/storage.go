package liqsim

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// priceSlotLayout records which storage slot holds the perpetual's packed
// markPNS/oraclePNS/markTimestamp word, and each field's bit offset within
// it, discovered once per perpetual and cached for the life of a Simulator.
type priceSlotLayout struct {
	slot               common.Hash
	markOffsetBits     int
	oracleOffsetBits   int
	timestampOffsetBits int
	oracleTSOffsetBits  int // -1 if not found
}

// traceStorageKeys runs debug_traceCall with the prestateTracer against a
// view call to getPerpetualInfo and returns every storage key the exchange
// contract touched, per spec.md §4.7 step 1 ("trace... and collect the set
// of distinct slots read via SLOAD").
func traceStorageKeys(ctx context.Context, rpc rpcCaller, exchange common.Address, callData []byte) ([]common.Hash, error) {
	var raw map[string]map[string]any
	callMsg := map[string]any{
		"to":   exchange,
		"data": "0x" + common.Bytes2Hex(callData),
	}
	traceConfig := map[string]any{"tracer": "prestateTracer"}

	if err := rpc.CallContext(ctx, &raw, "debug_traceCall", callMsg, "latest", traceConfig); err != nil {
		return nil, fmt.Errorf("liqsim: debug_traceCall: %w", err)
	}

	acct, ok := raw[strings.ToLower(exchange.Hex())]
	if !ok {
		// Some clients preserve checksum casing as the map key.
		acct, ok = raw[exchange.Hex()]
		if !ok {
			return nil, nil
		}
	}

	storageRaw, ok := acct["storage"].(map[string]any)
	if !ok {
		return nil, nil
	}

	keys := make([]common.Hash, 0, len(storageRaw))
	for k := range storageRaw {
		keys = append(keys, common.HexToHash(k))
	}
	return keys, nil
}

// getStorageAt reads one storage slot via the standard eth_getStorageAt RPC.
func getStorageAt(ctx context.Context, rpc rpcCaller, addr common.Address, slot common.Hash) (common.Hash, error) {
	var result string
	if err := rpc.CallContext(ctx, &result, "eth_getStorageAt", addr, slot, "latest"); err != nil {
		return common.Hash{}, fmt.Errorf("liqsim: eth_getStorageAt: %w", err)
	}
	return common.HexToHash(result), nil
}

// setStorageAt writes one storage slot via Anvil's anvil_setStorageAt.
func setStorageAt(ctx context.Context, rpc rpcCaller, addr common.Address, slot, value common.Hash) error {
	var ok bool
	if err := rpc.CallContext(ctx, &ok, "anvil_setStorageAt", addr, slot, value); err != nil {
		return fmt.Errorf("liqsim: anvil_setStorageAt: %w", err)
	}
	return nil
}

// writeBitsAt writes valueBits into a 32-bit window at bitOffset within
// word, returning the modified word. bitOffset 0 is the least-significant
// bit of the 256-bit word.
func writeBitsAt(word common.Hash, bitOffset int, valueBits uint32) common.Hash {
	wordInt := new(big.Int).SetBytes(word[:])

	mask := new(big.Int).Lsh(big.NewInt(0xFFFFFFFF), uint(bitOffset))
	mask.Not(mask)
	wordInt.And(wordInt, mask)

	valInt := new(big.Int).Lsh(big.NewInt(int64(valueBits)), uint(bitOffset))
	wordInt.Or(wordInt, valInt)

	var out common.Hash
	b := wordInt.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// readBitsAt extracts a 32-bit window from word at bitOffset.
func readBitsAt(word common.Hash, bitOffset int) uint32 {
	wordInt := new(big.Int).SetBytes(word[:])
	shifted := new(big.Int).Rsh(wordInt, uint(bitOffset))
	masked := new(big.Int).And(shifted, big.NewInt(0xFFFFFFFF))
	return uint32(masked.Uint64())
}

// candidateBitOffsets are the 32-bit-stride offsets the bit-position probe
// tries, per spec.md §4.7 step 2.
var candidateBitOffsets = []int{0, 32, 64, 96, 128, 160, 192, 224}

// probeValue is a distinctive 32-bit marker unlikely to collide with a real
// price, timestamp, or oracle value during the offset probe.
const probeValue uint32 = 0xABCD1234

func encodeTimestampProbe(unixSeconds int64) uint32 {
	return uint32(unixSeconds & 0xFFFFFFFF)
}
