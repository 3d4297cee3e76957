// Package relayclient adapts a private-orderflow relay's bundle API
// (simulate_bundle, submit_bundle) to the engine's plan.BundleSimulator
// seam. Each plan step is sent with its calldata hex-encoded as given;
// this package does no ABI encoding of its own. No JSON-RPC client exists
// anywhere in the retrieved pack, so the relay's own bundle RPC is spoken
// directly over net/http.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kaelidex/arbengine/internal/plan"
	arbtypes "github.com/kaelidex/arbengine/pkg/types"
)

// Config holds the relay endpoint and the HTTP client's own timeout.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

// Client speaks a Flashbots-style eth_callBundle/eth_sendBundle JSON-RPC
// surface and satisfies plan.BundleSimulator.
type Client struct {
	cfg    Config
	http   *http.Client
	signer func([]byte) ([]byte, error) // signs the JSON-RPC body for relay auth headers
}

func New(cfg Config, signer func([]byte) ([]byte, error)) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		signer: signer,
	}
}

type bundleTx struct {
	To       common.Address `json:"to"`
	Data     string         `json:"data"`
	GasLimit uint64         `json:"gas"`
	Nonce    *uint64        `json:"nonce,omitempty"`
}

type callBundleRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int        `json:"id"`
	Method  string     `json:"method"`
	Params  [1]bundleParams `json:"params"`
}

type bundleParams struct {
	Txs              []bundleTx `json:"txs"`
	BlockNumber      string     `json:"blockNumber"`
	StateBlockNumber string     `json:"stateBlockNumber"`
}

type callBundleResponse struct {
	Result struct {
		BundleGasPrice    string `json:"bundleGasPrice"`
		CoinbaseDiff      string `json:"coinbaseDiff"`
		TotalGasUsed      uint64 `json:"totalGasUsed"`
		BundleHash        string `json:"bundleHash"`
		Results           []struct {
			Error string `json:"error"`
			Value string `json:"value"`
		} `json:"results"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SimulateBundle implements plan.BundleSimulator via eth_callBundle,
// treating coinbase_diff as MEV value and totalGasUsed*bundleGasPrice as
// the bundle's cost.
func (c *Client) SimulateBundle(ctx context.Context, steps []arbtypes.Step) (plan.SimResult, error) {
	txs := make([]bundleTx, 0, len(steps))
	for _, s := range steps {
		txs = append(txs, bundleTx{To: s.To, Data: fmt.Sprintf("0x%x", s.Data), GasLimit: s.GasLimit, Nonce: s.Nonce})
	}

	req := callBundleRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_callBundle",
		Params:  [1]bundleParams{{Txs: txs, BlockNumber: "latest", StateBlockNumber: "latest"}},
	}

	var resp callBundleResponse
	if err := c.do(ctx, req, &resp); err != nil {
		return plan.SimResult{}, err
	}
	if resp.Error != nil {
		return plan.SimResult{}, fmt.Errorf("%w: %s", arbtypes.ErrSimulationRejected, resp.Error.Message)
	}
	for _, r := range resp.Result.Results {
		if r.Error != "" {
			return plan.SimResult{Success: false}, nil
		}
	}

	coinbaseDiff, ok := new(big.Int).SetString(trimHex(resp.Result.CoinbaseDiff), 16)
	if !ok {
		coinbaseDiff = big.NewInt(0)
	}
	gasPrice, ok := new(big.Int).SetString(trimHex(resp.Result.BundleGasPrice), 16)
	if !ok {
		gasPrice = big.NewInt(0)
	}
	totalCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(resp.Result.TotalGasUsed))

	return plan.SimResult{Success: true, MEVValue: coinbaseDiff, TotalCost: totalCost}, nil
}

// SubmitBundle submits a previously simulated bundle of signed
// transactions to land blocksIntoFuture blocks from currentBlock.
func (c *Client) SubmitBundle(ctx context.Context, signedTxs []*types.Transaction, currentBlock uint64, blocksIntoFuture uint64) (string, error) {
	txs := make([]string, 0, len(signedTxs))
	for _, tx := range signedTxs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("marshal signed tx: %w", err)
		}
		txs = append(txs, fmt.Sprintf("0x%x", raw))
	}

	req := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Method  string `json:"method"`
		Params  [1]struct {
			Txs         []string `json:"txs"`
			BlockNumber string   `json:"blockNumber"`
		} `json:"params"`
	}{JSONRPC: "2.0", ID: 1, Method: "eth_sendBundle"}
	req.Params[0].Txs = txs
	req.Params[0].BlockNumber = fmt.Sprintf("0x%x", currentBlock+blocksIntoFuture)

	var resp struct {
		Result struct {
			BundleHash string `json:"bundleHash"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", arbtypes.ErrExecutionRejected, resp.Error.Message)
	}
	return resp.Result.BundleHash, nil
}

func (c *Client) do(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		sig, err := c.signer(payload)
		if err != nil {
			return fmt.Errorf("sign relay request: %w", err)
		}
		httpReq.Header.Set("X-Flashbots-Signature", fmt.Sprintf("%x", sig))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: relay request: %v", arbtypes.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read relay response: %v", arbtypes.ErrSourceUnavailable, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode relay response: %v", arbtypes.ErrSourceUnavailable, err)
	}
	return nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
