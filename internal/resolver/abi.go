package resolver

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// parseSignatureTypes splits a bare type list, e.g. "address,uint256", into
// abi.Type values. An empty string yields no arguments.
func parseSignatureTypes(typeList string) (abi.Arguments, error) {
	typeList = strings.TrimSpace(typeList)
	if typeList == "" {
		return abi.Arguments{}, nil
	}
	parts := splitTopLevelCommas(typeList)
	args := make(abi.Arguments, 0, len(parts))
	for _, t := range parts {
		typ, err := abi.NewType(strings.TrimSpace(t), "", nil)
		if err != nil {
			return nil, fmt.Errorf("parse type %q: %w", t, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

// splitTopLevelCommas splits on commas that aren't nested inside
// parentheses, so tuple/array type strings like "(uint256,address)[]"
// survive intact.
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseFunctionSignature parses "name(type1,type2)" into the function
// name and its argument types.
func parseFunctionSignature(sig string) (name string, args abi.Arguments, err error) {
	open := strings.Index(sig, "(")
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, fmt.Errorf("malformed signature %q", sig)
	}
	name = sig[:open]
	args, err = parseSignatureTypes(sig[open+1 : len(sig)-1])
	return name, args, err
}

// selector computes the 4-byte function selector for a canonical
// signature string, e.g. "transfer(address,uint256)".
func selector(canonicalSignature string) []byte {
	return crypto.Keccak256([]byte(canonicalSignature))[:4]
}

// canonicalSignature reconstructs "name(type1,type2)" from parsed
// arguments, for selector hashing.
func canonicalSignature(name string, args abi.Arguments) string {
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = a.Type.String()
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// abiEncode implements the `abi-encode` value-producer: function selector
// plus ABI-encoded arguments (spec.md §4.4).
func abiEncode(signature string, values []any) ([]byte, error) {
	name, args, err := parseFunctionSignature(signature)
	if err != nil {
		return nil, fmt.Errorf("abi-encode: %w", err)
	}
	converted, err := convertArguments(args, values)
	if err != nil {
		return nil, fmt.Errorf("abi-encode %s: %w", signature, err)
	}
	packed, err := args.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("abi-encode %s: %w", signature, err)
	}
	out := selector(canonicalSignature(name, args))
	return append(out, packed...), nil
}

// constructorEncode implements the `constructor-encode` value-producer:
// creation code concatenated with ABI-encoded constructor arguments
// (spec.md §4.4).
func constructorEncode(creationCodeHex string, types []any, values []any) ([]byte, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		s, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("constructor-encode: type[%d] is not a string", i)
		}
		typeStrs[i] = s
	}
	args, err := parseSignatureTypes(strings.Join(typeStrs, ","))
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}
	converted, err := convertArguments(args, values)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}
	packed, err := args.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: %w", err)
	}

	creationCode, err := hexutil.Decode(creationCodeHex)
	if err != nil {
		return nil, fmt.Errorf("constructor-encode: creationCode: %w", err)
	}
	return append(creationCode, packed...), nil
}

// convertArguments coerces generic YAML/JSON-decoded values (string,
// float64, bool, []any, map[string]any) into the Go types abi.Arguments.Pack
// expects for each declared type.
func convertArguments(args abi.Arguments, values []any) ([]any, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d argument(s), got %d", len(args), len(values))
	}
	out := make([]any, len(values))
	for i, v := range values {
		converted, err := convertABIValue(args[i].Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

func convertABIValue(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected address string, got %T", v)
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case abi.BytesTy, abi.FixedBytesTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string, got %T", v)
		}
		decoded, err := hexutil.Decode(prefix0x(s))
		if err != nil {
			return nil, err
		}
		if t.T == abi.FixedBytesTy {
			return fixedBytes(decoded, t.Size)
		}
		return decoded, nil

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return n, nil

	case abi.SliceTy, abi.ArrayTy:
		vs, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		return convertSlice(*t.Elem, vs)

	default:
		return nil, fmt.Errorf("unsupported ABI type %s", t.String())
	}
}

func convertSlice(elem abi.Type, values []any) (any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		converted, err := convertABIValue(elem, v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

func prefix0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case string:
		bi, ok := new(big.Int).SetString(strings.TrimPrefix(n, "0x"), hexOrDecimalBase(n))
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return bi, nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case float64:
		return big.NewInt(int64(n)), nil
	case *big.Int:
		return n, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func hexOrDecimalBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

// fixedBytes copies decoded into the fixed-size array reflect type
// abi.Pack expects for bytesN. Only common sizes are supported; others
// error out explicitly rather than silently truncating.
func fixedBytes(decoded []byte, size int) (any, error) {
	switch size {
	case 32:
		var out [32]byte
		copy(out[:], decoded)
		return out, nil
	case 20:
		var out [20]byte
		copy(out[:], decoded)
		return out, nil
	case 4:
		var out [4]byte
		copy(out[:], decoded)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported fixed-bytes size %d", size)
	}
}
