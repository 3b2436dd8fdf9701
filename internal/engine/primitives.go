package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/execctx"
	"github.com/r3e-network/deployengine/internal/metrics"
	"github.com/r3e-network/deployengine/internal/resilience"
	"github.com/r3e-network/deployengine/internal/verify"
)

// primitiveFunc implements one closed-set primitive kind (spec.md §4.5):
// fields are already-resolved Go values keyed by their declared argument
// name; the return value is the produced output sub-map.
type primitiveFunc func(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error)

var primitives = map[string]primitiveFunc{
	"send-transaction":  primitiveSendTransaction,
	"create-contract":   primitiveCreateContract,
	"min-balance":        primitiveMinBalance,
	"test-nicks-method":  primitiveTestNicksMethod,
	"verify":             primitiveVerify,
}

func fieldString(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("field %q: expected string, got %T", name, v)
	}
	return s, nil
}

func fieldBigInt(fields map[string]any, name string) (*big.Int, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case string:
		bi, ok := new(big.Int).SetString(strings.TrimPrefix(n, "0x"), 0)
		if !ok {
			return nil, fmt.Errorf("field %q: invalid integer %q", name, n)
		}
		return bi, nil
	case int:
		return big.NewInt(int64(n)), nil
	case float64:
		return big.NewInt(int64(n)), nil
	default:
		return nil, fmt.Errorf("field %q: expected integer, got %T", name, v)
	}
}

func primitiveSendTransaction(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	toStr, err := fieldString(fields, "to")
	if err != nil {
		return nil, err
	}
	if toStr == "" {
		return nil, fmt.Errorf("send-transaction: missing field \"to\"")
	}
	to, err := evmchain.NormalizeAddress(toStr)
	if err != nil {
		return nil, fmt.Errorf("send-transaction: to: %w", err)
	}
	dataStr, err := fieldString(fields, "data")
	if err != nil {
		return nil, err
	}
	var data []byte
	if dataStr != "" {
		data, err = hexutil.Decode(prefix0xHex(dataStr))
		if err != nil {
			return nil, fmt.Errorf("send-transaction: data: %w", err)
		}
	}
	value, err := fieldBigInt(fields, "value")
	if err != nil {
		return nil, err
	}

	tx, err := ec.TxBuilder.BuildAndSend(ctx, evmchain.TxRequest{To: &to, Value: value, Data: data})
	if err != nil {
		return nil, fmt.Errorf("send-transaction: %w", err)
	}
	e.emit(eventbus.KindTransactionSent, ec, map[string]any{"hash": tx.Hash().Hex(), "to": to.Hex()})

	receipt, err := ec.TxBuilder.WaitForReceipt(ctx, tx.Hash(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("send-transaction: waiting for receipt: %w", err)
	}
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		e.emit(eventbus.KindTransactionReverted, ec, map[string]any{"hash": tx.Hash().Hex()})
		return nil, fmt.Errorf("send-transaction: transaction %s reverted", tx.Hash().Hex())
	}
	e.emit(eventbus.KindTransactionConfirmed, ec, map[string]any{"hash": tx.Hash().Hex(), "blockNumber": receipt.BlockNumber.Uint64()})

	return map[string]any{
		"hash":                 tx.Hash().Hex(),
		"receipt.blockNumber":  receipt.BlockNumber.Uint64(),
		"receipt.status":       receipt.Status,
	}, nil
}

func primitiveCreateContract(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	bytecodeStr, err := fieldString(fields, "bytecode")
	if err != nil {
		return nil, err
	}
	if bytecodeStr == "" {
		return nil, fmt.Errorf("create-contract: missing field \"bytecode\"")
	}
	bytecode, err := hexutil.Decode(prefix0xHex(bytecodeStr))
	if err != nil {
		return nil, fmt.Errorf("create-contract: bytecode: %w", err)
	}
	value, err := fieldBigInt(fields, "value")
	if err != nil {
		return nil, err
	}

	tx, err := ec.TxBuilder.BuildAndSend(ctx, evmchain.TxRequest{To: nil, Value: value, Data: bytecode})
	if err != nil {
		return nil, fmt.Errorf("create-contract: %w", err)
	}
	e.emit(eventbus.KindTransactionSent, ec, map[string]any{"hash": tx.Hash().Hex()})

	receipt, err := ec.TxBuilder.WaitForReceipt(ctx, tx.Hash(), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("create-contract: waiting for receipt: %w", err)
	}
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		return nil, fmt.Errorf("create-contract: transaction %s reverted", tx.Hash().Hex())
	}

	addr := evmchain.DeployedAddress(receipt, ec.Signer.Address(), tx.Nonce())
	e.emit(eventbus.KindContractDeployed, ec, map[string]any{"address": addr.Hex(), "hash": tx.Hash().Hex()})
	recordDeployedContract(ec, bytecode, addr)

	return map[string]any{
		"address":     addr.Hex(),
		"hash":        tx.Hash().Hex(),
		"blockNumber": receipt.BlockNumber.Uint64(),
	}, nil
}

// recordDeployedContract makes a freshly deployed contract's address
// resolvable through Contract(ref).address for the rest of this job
// (spec.md §3). creationCode is hashed the same way model.Contract's
// UniqueHash is, so the address is recoverable even when the contract
// repository never saw a matching artifact; when it did, the address is
// also recorded under every name/path key the repository resolves for it.
func recordDeployedContract(ec *execctx.Context, creationCode []byte, addr common.Address) {
	sum := sha256.Sum256(creationCode)
	uniqueHash := hex.EncodeToString(sum[:])
	ec.RecordDeployedAddress(uniqueHash, addr)

	if ec.Contracts == nil {
		return
	}
	if c, err := ec.Contracts.Lookup(uniqueHash, ""); err == nil {
		for _, key := range c.ReferenceKeys() {
			ec.RecordDeployedAddress(key, addr)
		}
	}
}

func primitiveMinBalance(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	addrStr, err := fieldString(fields, "address")
	if err != nil {
		return nil, err
	}
	addr, err := evmchain.NormalizeAddress(addrStr)
	if err != nil {
		return nil, fmt.Errorf("min-balance: address: %w", err)
	}
	minimum, err := fieldBigInt(fields, "minimum")
	if err != nil {
		return nil, err
	}
	if minimum == nil {
		return nil, fmt.Errorf("min-balance: missing field \"minimum\"")
	}

	balance, err := ec.Chain.BalanceAt(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("min-balance: %w", err)
	}

	return map[string]any{
		"balance":    balance,
		"sufficient": balance.Cmp(minimum) >= 0,
	}, nil
}

// primitiveTestNicksMethod implements the "Nick's method" deterministic
// deployment check: a presigned raw transaction (valid on any chain,
// signed by a burner key with no chain ID binding) deploys to a fixed
// CREATE address independent of the broadcasting account. The primitive
// only broadcasts it when that address doesn't already carry code.
func primitiveTestNicksMethod(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	rawStr, err := fieldString(fields, "rawTransaction")
	if err != nil {
		return nil, err
	}
	if rawStr == "" {
		return nil, fmt.Errorf("test-nicks-method: missing field \"rawTransaction\"")
	}
	raw, err := hexutil.Decode(prefix0xHex(rawStr))
	if err != nil {
		return nil, fmt.Errorf("test-nicks-method: rawTransaction: %w", err)
	}

	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("test-nicks-method: decode transaction: %w", err)
	}

	var signer gethtypes.Signer
	if tx.Protected() {
		signer = gethtypes.LatestSignerForChainID(tx.ChainId())
	} else {
		signer = gethtypes.FrontierSigner{}
	}
	deployer, err := gethtypes.Sender(signer, &tx)
	if err != nil {
		return nil, fmt.Errorf("test-nicks-method: recover sender: %w", err)
	}
	contractAddr := evmchain.ComputeCreateAddress(deployer, tx.Nonce())

	exists, err := ec.Chain.ContractExists(ctx, contractAddr)
	if err != nil {
		return nil, fmt.Errorf("test-nicks-method: %w", err)
	}
	if exists {
		return map[string]any{
			"deployerAddress": deployer.Hex(),
			"address":         contractAddr.Hex(),
			"alreadyDeployed": true,
		}, nil
	}

	if _, err := ec.Chain.SendRawTransaction(ctx, raw); err != nil {
		return nil, fmt.Errorf("test-nicks-method: broadcast: %w", err)
	}
	if _, err := ec.Chain.WaitForReceipt(ctx, tx.Hash(), 0, 0); err != nil {
		return nil, fmt.Errorf("test-nicks-method: waiting for receipt: %w", err)
	}

	return map[string]any{
		"deployerAddress": deployer.Hex(),
		"address":         contractAddr.Hex(),
		"alreadyDeployed": false,
	}, nil
}

func primitiveVerify(ctx context.Context, e *Engine, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	platformName, err := fieldString(fields, "platform")
	if err != nil {
		return nil, err
	}
	if platformName == "" {
		return nil, fmt.Errorf("verify: missing field \"platform\"")
	}
	addrStr, err := fieldString(fields, "address")
	if err != nil {
		return nil, err
	}
	addr, err := evmchain.NormalizeAddress(addrStr)
	if err != nil {
		return nil, fmt.Errorf("verify: address: %w", err)
	}
	contractName, _ := fieldString(fields, "contractName")
	sourceName, _ := fieldString(fields, "sourceName")
	compilerVersion, _ := fieldString(fields, "compilerVersion")
	source, _ := fieldString(fields, "source")
	constructorArgs, _ := fieldString(fields, "constructorArgs")

	if ec.Verify == nil {
		return nil, fmt.Errorf("verify: no verification registry configured")
	}
	platform, ok := ec.Verify.Lookup(platformName)
	if !ok {
		return nil, fmt.Errorf("verify: unknown platform %q", platformName)
	}

	req := verify.Request{
		Network:         ec.Network,
		Address:         addr,
		ContractName:    contractName,
		SourceName:      sourceName,
		CompilerVersion: compilerVersion,
		Source:          source,
		ConstructorArgs: strings.TrimPrefix(constructorArgs, "0x"),
	}

	if !platform.SupportsNetwork(ec.Network.ChainID) || !platform.IsConfigured() {
		e.emit(eventbus.KindVerificationSkipped, ec, map[string]any{"platform": platformName, "address": addr.Hex()})
		return map[string]any{"verified": false, "skipped": true}, nil
	}

	e.emit(eventbus.KindVerificationStarted, ec, map[string]any{"platform": platformName, "address": addr.Hex()})

	already, err := platform.IsAlreadyVerified(ctx, req)
	if err == nil && already {
		metrics.RecordVerificationAttempt(platformName, "already_verified")
		e.emit(eventbus.KindVerificationSucceeded, ec, map[string]any{"platform": platformName, "address": addr.Hex()})
		return map[string]any{"verified": true}, nil
	}

	retryCfg := resilience.DefaultVerificationRetryConfig()
	attempt := 0
	var permanentErr error
	verifyErr := resilience.FixedRetry(ctx, retryCfg, func() error {
		attempt++
		err := platform.VerifyContract(ctx, req)
		if err != nil && !isContractNotFound(err) {
			// Only "contract not found" is retried; any other failure ends the loop.
			permanentErr = err
			return nil
		}
		if err != nil && attempt < retryCfg.MaxAttempts {
			e.emit(eventbus.KindVerificationRetrying, ec, map[string]any{"platform": platformName, "attempt": attempt})
		}
		return err
	})
	if permanentErr != nil {
		verifyErr = permanentErr
	}

	if verifyErr == nil {
		metrics.RecordVerificationAttempt(platformName, "succeeded")
		e.emit(eventbus.KindVerificationSucceeded, ec, map[string]any{"platform": platformName, "address": addr.Hex()})
		return map[string]any{"verified": true}, nil
	}

	metrics.RecordVerificationAttempt(platformName, "failed")
	e.emit(eventbus.KindVerificationFailed, ec, map[string]any{"platform": platformName, "address": addr.Hex(), "error": verifyErr.Error()})
	if e.IgnoreVerifyErrors {
		ec.RecordVerificationWarning(fmt.Sprintf("%s: verification of %s failed: %v", platformName, addr.Hex(), verifyErr))
		return map[string]any{"verified": false, "warning": verifyErr.Error()}, nil
	}
	return nil, fmt.Errorf("verify: %w", verifyErr)
}

func isContractNotFound(err error) bool {
	return err != nil && (err == verify.ErrContractNotFound || strings.Contains(err.Error(), verify.ErrContractNotFound.Error()))
}

func prefix0xHex(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
