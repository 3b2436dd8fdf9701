// Package verify implements the source-verification platform registry
// (spec.md §4.5): a closed set of named platforms, each exposing
// supportsNetwork/isConfigured/isAlreadyVerified/verifyContract, dispatched
// by name from the `verify` primitive.
package verify

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/model"
)

// Request carries everything a platform needs to submit one contract for
// source verification.
type Request struct {
	Network         model.Network
	Address         common.Address
	ContractName    string
	SourceName      string
	CompilerVersion string
	Source          string
	ABI             []byte // opaque JSON pass-through, spec.md §9
	ConstructorArgs string // hex-encoded, no 0x prefix
}

// Platform is one verification backend (etherscan_v2, sourcify, ...).
type Platform interface {
	Name() string
	SupportsNetwork(chainID uint64) bool
	IsConfigured() bool
	IsAlreadyVerified(ctx context.Context, req Request) (bool, error)
	VerifyContract(ctx context.Context, req Request) error
}

// Registry looks platforms up by name for the `verify` primitive.
type Registry struct {
	platforms map[string]Platform
}

// NewRegistry builds a registry from the given platforms, keyed by Name().
func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		r.platforms[p.Name()] = p
	}
	return r
}

// Lookup returns the named platform, or false if unknown.
func (r *Registry) Lookup(name string) (Platform, bool) {
	p, ok := r.platforms[name]
	return p, ok
}
