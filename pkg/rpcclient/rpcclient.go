// Package rpcclient adapts go-ethereum's ethclient to the §6 RPC
// client interface the engine consumes: block number, base fee, gas
// price, transaction submission, and receipt polling. Modeled on the
// teacher's own ethclient.Dial usage in cmd/main.go and the polling
// pattern the teacher's missing txlistener package exposed through
// WithPollInterval/WithTimeout options.
package rpcclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	arbtypes "github.com/kaelidex/arbengine/pkg/types"
)

// Receipt mirrors the §6 RPC client's wait_for_receipt response.
type Receipt struct {
	Status            uint64
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// Option configures polling behavior, mirroring the teacher's
// txlistener.WithPollInterval/WithTimeout functional-option pattern.
type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client wraps an *ethclient.Client with the narrow surface the engine
// needs; it never imports engine types beyond the transaction/receipt
// shapes it returns.
type Client struct {
	eth          *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Dial connects to rpcURL, mirroring the teacher's ethclient.Dial call
// in cmd/main.go.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	c := &Client{eth: eth, pollInterval: 2 * time.Second, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EthCaller exposes the underlying client for callers needing the raw
// eth_call surface, such as pkg/dexsource's ContractCaller.
func (c *Client) EthCaller() *ethclient.Client {
	return c.eth
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block_number: %v", arbtypes.ErrSourceUnavailable, err)
	}
	return n, nil
}

// BaseFee returns the latest block's base fee in wei.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: base_fee: %v", arbtypes.ErrSourceUnavailable, err)
	}
	if header.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return header.BaseFee, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas_price: %v", arbtypes.ErrSourceUnavailable, err)
	}
	return price, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send_transaction: %v", arbtypes.ErrSourceUnavailable, err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls at pollInterval until the receipt is available, a
// caller-supplied timeout elapses (surfaced as Timeout), or ctx is
// cancelled (surfaced as Cancelled).
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*Receipt, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(deadlineCtx, txHash)
		if err == nil {
			return &Receipt{
				Status:            receipt.Status,
				BlockNumber:       receipt.BlockNumber.Uint64(),
				GasUsed:           receipt.GasUsed,
				EffectiveGasPrice: receipt.EffectiveGasPrice,
			}, nil
		}

		select {
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: wait_for_receipt", arbtypes.ErrCancelled)
			}
			return nil, fmt.Errorf("%w: wait_for_receipt", arbtypes.ErrTimeout)
		case <-ticker.C:
		}
	}
}

// EstimateGas is the optional §6 estimate_gas hook; callers fall back to
// the evaluator's lookup table when this returns an error.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("%w: estimate_gas: %v", arbtypes.ErrSourceUnavailable, err)
	}
	return gas, nil
}
