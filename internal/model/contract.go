package model

import "encoding/json"

// Contract is the content-addressed, logical compiled-contract record
// (spec.md §3). Identity is UniqueHash = SHA-256(creationCode); two
// source files producing the same creation code collapse to one Contract.
type Contract struct {
	UniqueHash      string
	CreationCode    string // 0x-prefixed lowercase hex
	RuntimeBytecode string // 0x-prefixed lowercase hex, optional
	ABI             json.RawMessage
	SourceName      string // logical path, e.g. "src/Foo.sol"
	ContractName    string
	Source          string
	CompilerVersion string
	BuildInfoID     string

	// Sources is the set of absolute file paths that contributed to this
	// Contract (a single file for standard artifacts, potentially many
	// for build-info derived hydration across merges).
	Sources map[string]struct{}

	// FromBuildInfo marks that the most recent hydration for this record
	// came from a build-info file, so later artifact-sourced merges don't
	// clobber build-info-derived fields (spec.md §4.1 precedence rule).
	FromBuildInfo bool
}

// AddSource records path as a contributing source file.
func (c *Contract) AddSource(path string) {
	if c.Sources == nil {
		c.Sources = make(map[string]struct{})
	}
	c.Sources[path] = struct{}{}
}

// Merge folds incoming hydration data into c, preferring non-empty
// incoming values over empty existing ones, and letting build-info data
// win over artifact data when both are non-empty (spec.md §4.1).
func (c *Contract) Merge(incoming Contract, incomingIsBuildInfo bool) {
	preferIncoming := incomingIsBuildInfo && !c.FromBuildInfo

	mergeString := func(dst *string, src string) {
		if src == "" {
			return
		}
		if *dst == "" || preferIncoming {
			*dst = src
		}
	}

	mergeString(&c.RuntimeBytecode, incoming.RuntimeBytecode)
	mergeString(&c.SourceName, incoming.SourceName)
	mergeString(&c.ContractName, incoming.ContractName)
	mergeString(&c.Source, incoming.Source)
	mergeString(&c.CompilerVersion, incoming.CompilerVersion)
	mergeString(&c.BuildInfoID, incoming.BuildInfoID)

	if len(incoming.ABI) > 0 && (len(c.ABI) == 0 || preferIncoming) {
		c.ABI = incoming.ABI
	}

	if incomingIsBuildInfo {
		c.FromBuildInfo = true
	}

	for src := range incoming.Sources {
		c.AddSource(src)
	}
}

// ReferenceKeys returns every string key that should index this contract
// in the reference lookup table (spec.md §3): contractName and
// "sourceName:contractName", both only when ContractName is set. Source
// file paths are not returned; contracts.Repository.Lookup matches path
// references against Sources separately.
func (c *Contract) ReferenceKeys() []string {
	var keys []string
	if c.ContractName != "" {
		keys = append(keys, c.ContractName)
	}
	if c.SourceName != "" && c.ContractName != "" {
		keys = append(keys, c.SourceName+":"+c.ContractName)
	}
	return keys
}
