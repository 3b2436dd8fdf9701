package evmchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NormalizeAddress validates and checksums a 20-byte hex address. Returns
// an error for anything that is not a well-formed "0x" + 40 hex char
// address, rather than silently truncating.
func NormalizeAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// ComputeCreate2Address computes the deterministic deployment address for
// CREATE2: keccak256(0xff ++ deployer ++ salt ++ keccak256(initCode))[12:].
// This backs the `compute-create2` value-producer.
func ComputeCreate2Address(deployer common.Address, salt [32]byte, initCode []byte) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(initCode))
}

// ComputeCreateAddress computes the address a legacy CREATE deployment from
// deployer at nonce would produce.
func ComputeCreateAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// ParseSalt converts an arbitrary byte slice into the fixed 32-byte salt
// CREATE2 requires, left-padding with zeros or rejecting oversized input.
func ParseSalt(raw []byte) ([32]byte, error) {
	var salt [32]byte
	if len(raw) > 32 {
		return salt, fmt.Errorf("salt exceeds 32 bytes (got %d)", len(raw))
	}
	copy(salt[32-len(raw):], raw)
	return salt, nil
}

// SaltFromBigInt encodes a big.Int salt value as the 32-byte CREATE2 salt.
func SaltFromBigInt(value *big.Int) [32]byte {
	var salt [32]byte
	if value == nil {
		return salt
	}
	value.FillBytes(salt[:])
	return salt
}
