package evmchain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner signs transactions with an in-process ECDSA private key,
// supplied via the CLI's --private-key flag. It is the only signer
// implementation this engine ships; a remote/HSM-backed Signer can be
// added later without changing any call site.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSignerFromHex constructs a LocalSigner from a hex-encoded
// secp256k1 private key, with or without a "0x" prefix.
func NewLocalSignerFromHex(privateKeyHex string) (*LocalSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's account address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTransaction signs tx with the London (EIP-155) signer for chainID.
func (s *LocalSigner) SignTransaction(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, fmt.Errorf("local signer key not configured")
	}
	signer := gethtypes.LatestSignerForChainID(chainID)
	return gethtypes.SignTx(tx, signer, s.key)
}

// Sign produces an ECDSA signature over a 32-byte digest.
func (s *LocalSigner) Sign(digest []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, fmt.Errorf("local signer key not configured")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	return crypto.Sign(digest, s.key)
}
