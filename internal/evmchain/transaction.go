package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// =============================================================================
// Transaction Builder - EIP-1559 dynamic fee transactions
// =============================================================================

// TxBuilder builds, signs, and submits EIP-1559 transactions against a
// Client. It covers both the `send-transaction` primitive (To set) and the
// `create-contract` primitive (To nil, Data holding init code).
type TxBuilder struct {
	client       *Client
	signer       Signer
	gasTipCapMin *big.Int // floor applied when the node's suggestion is zero/unavailable
	gasLimitBuf  uint64   // percentage buffer added on top of the estimated gas
}

// NewTxBuilder creates a transaction builder bound to client and signer.
func NewTxBuilder(client *Client, signer Signer) *TxBuilder {
	return &TxBuilder{
		client:       client,
		signer:       signer,
		gasTipCapMin: big.NewInt(1_000_000_000), // 1 gwei floor
		gasLimitBuf:  20,                        // +20% over the eth_estimateGas result
	}
}

// TxRequest describes the intent behind a send-transaction or
// create-contract primitive, before nonce/gas/fee fields are filled in.
type TxRequest struct {
	To    *common.Address // nil for contract creation
	Value *big.Int        // wei, may be nil for zero value
	Data  []byte          // call data, or init code for contract creation
}

// BuildAndSend constructs a dynamic fee transaction for req, signs it, and
// broadcasts it, returning the submitted transaction so the caller can
// report its hash immediately and wait for the receipt separately.
func (b *TxBuilder) BuildAndSend(ctx context.Context, req TxRequest) (*gethtypes.Transaction, error) {
	tx, err := b.build(ctx, req)
	if err != nil {
		return nil, err
	}

	signed, err := b.signer.SignTransaction(tx, tx.ChainId())
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	if _, err := b.client.SendRawTransaction(ctx, raw); err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}

	return signed, nil
}

func (b *TxBuilder) build(ctx context.Context, req TxRequest) (*gethtypes.Transaction, error) {
	chainID, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain ID: %w", err)
	}

	from := b.signer.Address()

	nonce, err := b.client.NonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasTipCap, gasFeeCap, err := b.suggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest fees: %w", err)
	}

	gasLimit, err := b.estimateGasLimit(ctx, from, req.To, value, req.Data)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	innerTx := &gethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        req.To,
		Value:     value,
		Data:      req.Data,
	}

	return gethtypes.NewTx(innerTx), nil
}

func (b *TxBuilder) suggestFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tip, err := b.client.SuggestGasTipCap(ctx)
	if err != nil || tip == nil || tip.Sign() == 0 {
		tip = new(big.Int).Set(b.gasTipCapMin)
	}

	baseFeeGuess, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}

	// feeCap = 2*baseFee + tip, a conservative headroom matching common
	// wallet behavior so the transaction doesn't stall on a base fee bump.
	feeCap = new(big.Int).Add(new(big.Int).Mul(baseFeeGuess, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

func (b *TxBuilder) estimateGasLimit(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (uint64, error) {
	estimate, err := b.client.EstimateGas(ctx, CallMsg{
		From:  from,
		To:    to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return 0, err
	}

	buffered := estimate + (estimate*b.gasLimitBuf)/100
	if buffered < estimate {
		buffered = estimate
	}
	return buffered, nil
}

// DeployedAddress derives the contract address a create-contract primitive
// produced, using the receipt's ContractAddress field when the node
// populated it, falling back to the legacy CREATE formula otherwise.
func DeployedAddress(receipt *gethtypes.Receipt, deployer common.Address, nonce uint64) common.Address {
	if receipt != nil && receipt.ContractAddress != (common.Address{}) {
		return receipt.ContractAddress
	}
	return ComputeCreateAddress(deployer, nonce)
}

// WaitForReceipt is a thin pass-through kept on TxBuilder for call-site
// symmetry with BuildAndSend.
func (b *TxBuilder) WaitForReceipt(ctx context.Context, txHash common.Hash, pollInterval, timeout time.Duration) (*gethtypes.Receipt, error) {
	return b.client.WaitForReceipt(ctx, txHash, pollInterval, timeout)
}
