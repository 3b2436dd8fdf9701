package resolver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/model"
)

// resolveProducer dispatches a value-producer object by its `type`
// discriminator (spec.md §4.4). `read-balance`, `call`, and
// `contract-exists` suspend on chain I/O; the rest are pure.
func (r *Resolver) resolveProducer(ctx context.Context, kind model.ProducerKind, fields map[string]any, scope *Scope) (any, error) {
	switch kind {
	case model.ProducerAbiEncode:
		return r.producerAbiEncode(ctx, fields, scope)
	case model.ProducerConstructorEncode:
		return r.producerConstructorEncode(ctx, fields, scope)
	case model.ProducerComputeCreate2:
		return r.producerComputeCreate2(ctx, fields, scope)
	case model.ProducerReadBalance:
		return r.producerReadBalance(ctx, fields, scope)
	case model.ProducerBasicArithmetic:
		return r.producerBasicArithmetic(ctx, fields, scope)
	case model.ProducerCall:
		return r.producerCall(ctx, fields, scope)
	case model.ProducerContractExists:
		return r.producerContractExists(ctx, fields, scope)
	default:
		return nil, fmt.Errorf("resolve value-producer: unknown kind %q", kind)
	}
}

func (r *Resolver) resolveField(ctx context.Context, fields map[string]any, name string, scope *Scope) (any, bool, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, false, nil
	}
	v, err := r.resolveAny(ctx, raw, scope)
	return v, true, err
}

func (r *Resolver) requireString(ctx context.Context, fields map[string]any, name string, scope *Scope) (string, error) {
	v, ok, err := r.resolveField(ctx, fields, name, scope)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("field %q: expected string, got %T", name, v)
	}
	return s, nil
}

func (r *Resolver) resolveValuesList(ctx context.Context, fields map[string]any, name string, scope *Scope) ([]any, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, nil
	}
	list, isList := raw.([]any)
	if !isList {
		return nil, fmt.Errorf("field %q: expected array", name)
	}
	out := make([]any, len(list))
	for i, item := range list {
		v, err := r.resolveAny(ctx, item, scope)
		if err != nil {
			return nil, fmt.Errorf("field %q[%d]: %w", name, i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r *Resolver) producerAbiEncode(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	signature, err := r.requireString(ctx, fields, "signature", scope)
	if err != nil {
		return nil, fmt.Errorf("abi-encode: %w", err)
	}
	values, err := r.resolveValuesList(ctx, fields, "values", scope)
	if err != nil {
		return nil, fmt.Errorf("abi-encode: %w", err)
	}
	encoded, err := abiEncode(signature, values)
	if err != nil {
		return nil, err
	}
	return hexutil.Encode(encoded), nil
}

func (r *Resolver) producerConstructorEncode(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	creationCode, err := r.requireString(ctx, fields, "creationCode", scope)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}
	typesRaw, ok, err := r.resolveField(ctx, fields, "types", scope)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}
	var types []any
	if ok {
		types, ok = typesRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("constructor-encode: field \"types\": expected array")
		}
	}
	values, err := r.resolveValuesList(ctx, fields, "values", scope)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}
	encoded, err := constructorEncode(creationCode, types, values)
	if err != nil {
		return nil, err
	}
	return hexutil.Encode(encoded), nil
}

func (r *Resolver) producerComputeCreate2(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	deployerStr, err := r.requireString(ctx, fields, "deployerAddress", scope)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: %w", err)
	}
	saltRaw, ok, err := r.resolveField(ctx, fields, "salt", scope)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("compute-create2: missing field \"salt\"")
	}
	initCodeStr, err := r.requireString(ctx, fields, "initCode", scope)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: %w", err)
	}

	deployer, err := evmchain.NormalizeAddress(deployerStr)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: deployerAddress: %w", err)
	}
	salt, err := saltFromAny(saltRaw)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: salt: %w", err)
	}
	initCode, err := hexutil.Decode(initCodeStr)
	if err != nil {
		return nil, fmt.Errorf("compute-create2: initCode: %w", err)
	}

	return evmchain.ComputeCreate2Address(deployer, salt, initCode).Hex(), nil
}

func saltFromAny(v any) ([32]byte, error) {
	switch s := v.(type) {
	case string:
		decoded, err := hexutil.Decode(prefix0x(s))
		if err != nil {
			return [32]byte{}, err
		}
		return evmchain.ParseSalt(decoded)
	default:
		n, err := toBigInt(v)
		if err != nil {
			return [32]byte{}, err
		}
		return evmchain.SaltFromBigInt(n), nil
	}
}

func (r *Resolver) producerReadBalance(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	addrStr, err := r.requireString(ctx, fields, "address", scope)
	if err != nil {
		return nil, fmt.Errorf("read-balance: %w", err)
	}
	addr, err := evmchain.NormalizeAddress(addrStr)
	if err != nil {
		return nil, fmt.Errorf("read-balance: %w", err)
	}
	balance, err := scope.Chain.BalanceAt(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read-balance: %w", err)
	}
	return balance, nil
}

func (r *Resolver) producerContractExists(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	addrStr, err := r.requireString(ctx, fields, "address", scope)
	if err != nil {
		return nil, fmt.Errorf("contract-exists: %w", err)
	}
	addr, err := evmchain.NormalizeAddress(addrStr)
	if err != nil {
		return nil, fmt.Errorf("contract-exists: %w", err)
	}
	exists, err := scope.Chain.ContractExists(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("contract-exists: %w", err)
	}
	return exists, nil
}

func (r *Resolver) producerCall(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	signature, err := r.requireString(ctx, fields, "signature", scope)
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}
	values, err := r.resolveValuesList(ctx, fields, "values", scope)
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}

	var to common.Address
	if toStr, ok, err := r.resolveField(ctx, fields, "to", scope); err != nil {
		return nil, fmt.Errorf("call: %w", err)
	} else if ok {
		s, isString := toStr.(string)
		if !isString {
			return nil, fmt.Errorf("call: field \"to\": expected string")
		}
		if to, err = evmchain.NormalizeAddress(s); err != nil {
			return nil, fmt.Errorf("call: to: %w", err)
		}
	} else if scope.ContractContext != nil {
		to = *scope.ContractContext
	} else {
		return nil, fmt.Errorf("call: missing \"to\" and no enclosing contract context")
	}

	inputSig, returnTypes := splitCallSignature(signature)
	name, args, err := parseFunctionSignature(inputSig)
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}
	converted, err := convertArguments(args, values)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", signature, err)
	}
	packed, err := args.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", signature, err)
	}
	data := append(selector(canonicalSignature(name, args)), packed...)

	result, err := scope.Chain.CallContract(ctx, evmchain.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", signature, err)
	}

	if returnTypes == "" {
		return hexutil.Encode(result), nil
	}
	outArgs, err := parseSignatureTypes(returnTypes)
	if err != nil {
		return nil, fmt.Errorf("call %s: return types: %w", signature, err)
	}
	unpacked, err := outArgs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("call %s: decode result: %w", signature, err)
	}
	if len(unpacked) == 1 {
		return unpacked[0], nil
	}
	return unpacked, nil
}

// splitCallSignature splits a `call` producer's signature into its input
// type list and an optional trailing return type list, following the
// human-readable-ABI convention `name(inTypes)(outTypes)`.
func splitCallSignature(signature string) (inputSig string, returnTypes string) {
	firstClose := indexMatchingParen(signature)
	if firstClose < 0 || firstClose == len(signature)-1 {
		return signature, ""
	}
	rest := signature[firstClose+1:]
	if len(rest) >= 2 && rest[0] == '(' && rest[len(rest)-1] == ')' {
		return signature[:firstClose+1], rest[1 : len(rest)-1]
	}
	return signature, ""
}

func indexMatchingParen(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (r *Resolver) producerBasicArithmetic(ctx context.Context, fields map[string]any, scope *Scope) (any, error) {
	operation, err := r.requireString(ctx, fields, "operation", scope)
	if err != nil {
		return nil, fmt.Errorf("basic-arithmetic: %w", err)
	}
	values, err := r.resolveValuesList(ctx, fields, "values", scope)
	if err != nil {
		return nil, fmt.Errorf("basic-arithmetic: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("basic-arithmetic: operation %q needs at least 2 values", operation)
	}

	operands := make([]*big.Int, len(values))
	for i, v := range values {
		n, err := toBigInt(v)
		if err != nil {
			return nil, fmt.Errorf("basic-arithmetic: value[%d]: %w", i, err)
		}
		operands[i] = n
	}

	switch operation {
	case "add", "sub", "mul", "div", "mod":
		return arithmeticFold(operation, operands)
	case "eq", "neq", "lt", "lte", "gt", "gte":
		if len(operands) != 2 {
			return nil, fmt.Errorf("basic-arithmetic: comparison %q needs exactly 2 values", operation)
		}
		return compareArithmetic(operation, operands[0], operands[1]), nil
	default:
		return nil, fmt.Errorf("basic-arithmetic: unknown operation %q", operation)
	}
}

func arithmeticFold(operation string, operands []*big.Int) (*big.Int, error) {
	acc := new(big.Int).Set(operands[0])
	for _, n := range operands[1:] {
		switch operation {
		case "add":
			acc.Add(acc, n)
		case "sub":
			acc.Sub(acc, n)
		case "mul":
			acc.Mul(acc, n)
		case "div":
			if n.Sign() == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			acc.Div(acc, n)
		case "mod":
			if n.Sign() == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			acc.Mod(acc, n)
		}
	}
	return acc, nil
}

func compareArithmetic(operation string, a, b *big.Int) bool {
	cmp := a.Cmp(b)
	switch operation {
	case "eq":
		return cmp == 0
	case "neq":
		return cmp != 0
	case "lt":
		return cmp < 0
	case "lte":
		return cmp <= 0
	case "gt":
		return cmp > 0
	case "gte":
		return cmp >= 0
	}
	return false
}
