package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// toolDebugTransaction decodes a mined transaction's receipt and, if it
// reverted, pulls the struct-logger trace so the model can point at a
// revert reason rather than just "status 0".
func toolDebugTransaction(ctx context.Context, d *Deps, input map[string]any) (any, error) {
	hashStr, err := requireString(input, "hash")
	if err != nil {
		return nil, err
	}
	if len(hashStr) != 66 {
		return nil, fmt.Errorf("hash must be a 32-byte hex transaction hash (0x + 64 hex chars)")
	}
	hash := common.HexToHash(hashStr)

	receipt, err := d.Contract.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"hash":       hashStr,
		"status":     receipt.Status,
		"gas_used":   receipt.GasUsed,
		"block":      receipt.BlockNumber.String(),
		"reverted":   receipt.Status == 0,
	}

	if receipt.Status != 0 {
		return out, nil
	}

	trace, err := d.Contract.TraceTransaction(ctx, hash)
	if err != nil {
		out["trace_error"] = err.Error()
		return out, nil
	}
	var parsed any
	if err := json.Unmarshal(trace, &parsed); err == nil {
		out["trace"] = parsed
	}
	out["_report"] = "transaction reverted; see trace for the failing opcode/call"
	return out, nil
}
