// Package contractclient implements the on-chain leg of PerplBot's
// dual-transport exchange client (spec.md §4.4): reads against the
// exchange contract, and writes tunneled through the owner/operator proxy.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client holds the bound contract handles and signing keys needed to read
// the exchange and write through its proxy.
type Client struct {
	eth             *ethclient.Client
	chainID         *big.Int
	exchange        *bind.BoundContract // reads: direct exchange contract
	proxy           *bind.BoundContract // writes: proxy, same ABI (allowlisted selectors)
	exchangeAddress common.Address
	proxyAddress    common.Address

	ownerKey    *ecdsa.PrivateKey // cold key, never used for trading after proxy setup
	operatorKey *ecdsa.PrivateKey // hot key, used for every trading transaction
}

// NewClient dials rpcURL and binds the exchange/proxy contracts. ownerKeyHex
// and operatorKeyHex are hex-encoded ECDSA keys without a 0x prefix;
// ownerKeyHex may be empty when only trading (not proxy administration) is
// needed.
func NewClient(ctx context.Context, rpcURL string, chainID int64, exchangeAddress, proxyAddress, ownerKeyHex, operatorKeyHex string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("contractclient: dial %s: %w", rpcURL, err)
	}

	exchangeAddr := common.HexToAddress(exchangeAddress)
	proxyAddr := common.HexToAddress(proxyAddress)

	c := &Client{
		eth:             eth,
		chainID:         big.NewInt(chainID),
		exchange:        bind.NewBoundContract(exchangeAddr, parsedExchangeABI, eth, eth, eth),
		proxy:           bind.NewBoundContract(proxyAddr, parsedExchangeABI, eth, eth, eth),
		exchangeAddress: exchangeAddr,
		proxyAddress:    proxyAddr,
	}

	if operatorKeyHex != "" {
		key, err := crypto.HexToECDSA(operatorKeyHex)
		if err != nil {
			return nil, fmt.Errorf("contractclient: parse operator key: %w", err)
		}
		c.operatorKey = key
	}
	if ownerKeyHex != "" {
		key, err := crypto.HexToECDSA(ownerKeyHex)
		if err != nil {
			return nil, fmt.Errorf("contractclient: parse owner key: %w", err)
		}
		c.ownerKey = key
	}

	return c, nil
}

// operatorTransactOpts builds fresh TransactOpts for the operator (hot) key,
// which signs every trading write tunneled through the proxy.
func (c *Client) operatorTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.operatorKey == nil {
		return nil, fmt.Errorf("contractclient: no operator key configured")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.operatorKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("contractclient: build operator transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// ownerTransactOpts builds fresh TransactOpts for the owner (cold) key, used
// only for proxy administration (allowlist setup), never for trading.
func (c *Client) ownerTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.ownerKey == nil {
		return nil, fmt.Errorf("contractclient: no owner key configured")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.ownerKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("contractclient: build owner transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// NewForTesting builds a Client from already-bound contracts, bypassing
// ethclient.Dial and key parsing. Exported so other packages (e.g. the
// router) can exercise read paths against a stubbed bind.ContractCaller
// without a live chain.
func NewForTesting(chainID int64, exchange, proxy *bind.BoundContract) *Client {
	return &Client{
		chainID:  big.NewInt(chainID),
		exchange: exchange,
		proxy:    proxy,
	}
}

// ExchangeABI exposes the parsed exchange ABI for callers building stub
// bind.ContractCaller implementations in tests.
func ExchangeABI() abi.ABI {
	return parsedExchangeABI
}
