package evmchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/r3e-network/deployengine/internal/httputil"
	"github.com/r3e-network/deployengine/internal/metrics"
	"github.com/r3e-network/deployengine/internal/resilience"
)

// Client is a minimal Ethereum JSON-RPC client covering the calls the
// execution engine needs: balance/code reads, gas estimation, and raw
// transaction submission. It deliberately avoids go-ethereum's ethclient
// so that every RPC round-trip goes through the same Call/ReadAllStrict
// plumbing as the verification HTTP clients. A circuit breaker protects
// against hammering an unreachable node once it starts failing.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	chainID    *big.Int
	breaker    *resilience.CircuitBreaker
}

// Config holds client configuration.
type Config struct {
	RPCURL     string
	ChainID    *big.Int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional custom HTTP client.
}

// NewClient creates a new Ethereum JSON-RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	normalizedURL, _, err := httputil.NormalizeBaseURL(cfg.RPCURL, httputil.BaseURLOptions{})
	if err != nil {
		return nil, fmt.Errorf("invalid RPC URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	forceTimeout := cfg.Timeout != 0

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: httputil.DefaultTransportWithMinTLS12(),
		}
	} else {
		httpClient = httputil.CopyHTTPClientWithTimeout(httpClient, timeout, forceTimeout)
	}

	return &Client{
		rpcURL:     normalizedURL,
		httpClient: httpClient,
		chainID:    cfg.ChainID,
		breaker:    resilience.New(resilience.DefaultConfig()),
	}, nil
}

// Close releases the client's idle pooled connections. It never returns an
// error; the signature matches the rest of the engine's dispose-always
// resource convention.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ChainID returns the configured chain ID for this client, querying the
// node via eth_chainId the first time if it was not supplied in Config.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}

	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return nil, err
	}

	var raw hexutil.Big
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_chainId: %w", err)
	}
	c.chainID = (*big.Int)(&raw)
	return c.chainID, nil
}

// =============================================================================
// Core RPC
// =============================================================================

// Call makes a raw JSON-RPC call to the configured endpoint.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordRPCCall(method, status, time.Since(start))
	}()

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		err = fmt.Errorf("marshal request: %w", marshalErr)
		return nil, err
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if reqErr != nil {
		err = fmt.Errorf("create request: %w", reqErr)
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp *http.Response
	breakerErr := c.breaker.Execute(ctx, func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(httpReq)
		return doErr
	})
	if breakerErr != nil {
		err = fmt.Errorf("execute request: %w", breakerErr)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, 32<<10)
		if readErr != nil {
			err = fmt.Errorf("read error response: %w", readErr)
			return nil, err
		}
		msg := strings.TrimSpace(string(respBody))
		if truncated {
			msg += "...(truncated)"
		}
		err = fmt.Errorf("rpc http error %d: %s", resp.StatusCode, msg)
		return nil, err
	}

	respBody, readErr := httputil.ReadAllStrict(resp.Body, 8<<20)
	if readErr != nil {
		err = fmt.Errorf("read response: %w", readErr)
		return nil, err
	}

	var rpcResp RPCResponse
	if unmarshalErr := json.Unmarshal(respBody, &rpcResp); unmarshalErr != nil {
		err = fmt.Errorf("unmarshal response: %w", unmarshalErr)
		return nil, err
	}

	if rpcResp.Error != nil {
		err = rpcResp.Error
		return nil, err
	}

	return rpcResp.Result, nil
}

// =============================================================================
// Read Methods
// =============================================================================

// BlockNumber returns the current block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	var raw hexutil.Uint64
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("decode eth_blockNumber: %w", err)
	}
	return uint64(raw), nil
}

// BalanceAt returns the wei balance of address at the "latest" block.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBalance", []interface{}{address.Hex(), "latest"})
	if err != nil {
		return nil, err
	}
	var raw hexutil.Big
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_getBalance: %w", err)
	}
	return (*big.Int)(&raw), nil
}

// CodeAt returns the deployed bytecode at address. An empty (non-nil, zero
// length) result means no contract is deployed there — the basis of the
// `contract-exists` value-producer.
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	result, err := c.Call(ctx, "eth_getCode", []interface{}{address.Hex(), "latest"})
	if err != nil {
		return nil, err
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_getCode: %w", err)
	}
	return raw, nil
}

// ContractExists reports whether address carries deployed bytecode.
func (c *Client) ContractExists(ctx context.Context, address common.Address) (bool, error) {
	code, err := c.CodeAt(ctx, address)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// NonceAt returns the next nonce to use for address, including pending
// transactions.
func (c *Client) NonceAt(ctx context.Context, address common.Address) (uint64, error) {
	result, err := c.Call(ctx, "eth_getTransactionCount", []interface{}{address.Hex(), "pending"})
	if err != nil {
		return 0, err
	}
	var raw hexutil.Uint64
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("decode eth_getTransactionCount: %w", err)
	}
	return uint64(raw), nil
}

// SuggestGasPrice returns the node's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	var raw hexutil.Big
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_gasPrice: %w", err)
	}
	return (*big.Int)(&raw), nil
}

// SuggestGasTipCap returns the node's suggested EIP-1559 priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_maxPriorityFeePerGas", nil)
	if err != nil {
		return nil, err
	}
	var raw hexutil.Big
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_maxPriorityFeePerGas: %w", err)
	}
	return (*big.Int)(&raw), nil
}

// CallMsg mirrors the subset of go-ethereum's ethereum.CallMsg this client
// needs for eth_call / eth_estimateGas.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Gas   uint64
	Value *big.Int
	Data  []byte
}

func (m CallMsg) toParams() map[string]interface{} {
	params := map[string]interface{}{}
	if m.From != (common.Address{}) {
		params["from"] = m.From.Hex()
	}
	if m.To != nil {
		params["to"] = m.To.Hex()
	}
	if m.Gas > 0 {
		params["gas"] = hexutil.Uint64(m.Gas)
	}
	if m.Value != nil {
		params["value"] = (*hexutil.Big)(m.Value)
	}
	if len(m.Data) > 0 {
		params["data"] = hexutil.Bytes(m.Data)
	}
	return params
}

// EstimateGas estimates the gas required to execute msg.
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	result, err := c.Call(ctx, "eth_estimateGas", []interface{}{msg.toParams()})
	if err != nil {
		return 0, err
	}
	var raw hexutil.Uint64
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("decode eth_estimateGas: %w", err)
	}
	return uint64(raw), nil
}

// CallContract executes msg against the "latest" state without creating a
// transaction — the basis of the `call` value-producer.
func (c *Client) CallContract(ctx context.Context, msg CallMsg) ([]byte, error) {
	result, err := c.Call(ctx, "eth_call", []interface{}{msg.toParams(), "latest"})
	if err != nil {
		return nil, err
	}
	var raw hexutil.Bytes
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("decode eth_call: %w", err)
	}
	return raw, nil
}

// =============================================================================
// Transaction Submission
// =============================================================================

// SendRawTransaction broadcasts a signed, RLP-encoded transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	result, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)})
	if err != nil {
		return common.Hash{}, err
	}
	var hashHex string
	if err := json.Unmarshal(result, &hashHex); err != nil {
		return common.Hash{}, fmt.Errorf("decode eth_sendRawTransaction: %w", err)
	}
	return common.HexToHash(hashHex), nil
}

// TransactionReceipt fetches the receipt for txHash, returning (nil, nil)
// if the transaction is not yet mined.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash.Hex()})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" || len(result) == 0 {
		return nil, nil
	}
	var receipt gethtypes.Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("decode eth_getTransactionReceipt: %w", err)
	}
	return &receipt, nil
}

// WaitForReceipt polls TransactionReceipt until it is mined, ctx is
// cancelled, or timeout elapses.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, pollInterval, timeout time.Duration) (*gethtypes.Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTxWaitTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(wctx, txHash)
		if err != nil && !isContractNotFoundError(err) {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-wctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), wctx.Err())
		case <-ticker.C:
		}
	}
}

// DefaultPollInterval and DefaultTxWaitTimeout govern receipt polling.
const (
	DefaultPollInterval  = 3 * time.Second
	DefaultTxWaitTimeout = 5 * time.Minute
)
