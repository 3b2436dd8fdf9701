package evmchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Signer abstracts transaction and message signing so the engine can swap
// a local private-key signer for a remote/HSM-backed one without touching
// call sites.
type Signer interface {
	// Address returns the account this signer signs on behalf of.
	Address() common.Address

	// SignTransaction signs tx for the given chain ID and returns the
	// signed transaction ready for RLP encoding and broadcast.
	SignTransaction(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)

	// Sign signs an arbitrary message hash (e.g. for off-chain attestations
	// consumed by a contract's signature check).
	Sign(digest []byte) ([]byte, error)
}
