package contractclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionReceipt fetches a mined transaction's receipt, used to decode
// revert status before falling back to a trace for the reason string.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("contractclient: transaction receipt %s: %w", hash, err)
	}
	return receipt, nil
}

// WaitMined blocks until tx is mined and returns its receipt, so a caller
// can inspect receipt.Status before deciding whether a write succeeded.
func (c *Client) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("contractclient: wait mined %s: %w", tx.Hash(), err)
	}
	return receipt, nil
}

// TraceTransaction runs debug_traceTransaction with the default (struct
// logger) tracer, returning the raw trace for revert-reason decoding.
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.eth.Client().CallContext(ctx, &raw, "debug_traceTransaction", hash, map[string]any{}); err != nil {
		return nil, fmt.Errorf("contractclient: debug_traceTransaction %s: %w", hash, err)
	}
	return raw, nil
}
