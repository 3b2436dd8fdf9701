package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/r3e-network/deployengine/internal/model"
)

// standardArtifact mirrors the Hardhat single-contract artifact shape:
// {contractName, abi, bytecode, [deployedBytecode], [sourceName], [source], [compiler]}.
type standardArtifact struct {
	ContractName    string          `json:"contractName"`
	ABI             json.RawMessage `json:"abi"`
	Bytecode        string          `json:"bytecode"`
	DeployedBytecode string         `json:"deployedBytecode"`
	SourceName      string          `json:"sourceName"`
	Source          string          `json:"source"`
	Compiler        struct {
		Version string `json:"version"`
	} `json:"compiler"`
}

// LooksLikeStandardArtifact reports whether data structurally matches the
// standard artifact shape: it carries a contractName and a bytecode field,
// and is not a build-info payload (no top-level _format discriminator).
func LooksLikeStandardArtifact(data []byte) bool {
	var probe struct {
		Format   string `json:"_format"`
		Name     string `json:"contractName"`
		Bytecode any    `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Format == "" && probe.Name != "" && probe.Bytecode != nil
}

// ParseStandardArtifact parses a standard single-contract artifact and
// hydrates a model.Contract. sourcePath is recorded in Contract.Sources and
// is NOT used to infer build-info precedence (only /build-info/ paths are).
func ParseStandardArtifact(data []byte, sourcePath string) (model.Contract, error) {
	var a standardArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return model.Contract{}, fmt.Errorf("parse standard artifact: %w", err)
	}
	if a.ContractName == "" {
		return model.Contract{}, fmt.Errorf("parse standard artifact: missing contractName")
	}

	creationCode, err := NormalizeBytecode(a.Bytecode)
	if err != nil {
		return model.Contract{}, fmt.Errorf("parse standard artifact %s: %w", a.ContractName, err)
	}
	if creationCode == "" {
		return model.Contract{}, fmt.Errorf("parse standard artifact %s: empty bytecode", a.ContractName)
	}
	runtimeCode, err := NormalizeBytecode(a.DeployedBytecode)
	if err != nil {
		return model.Contract{}, fmt.Errorf("parse standard artifact %s: deployedBytecode: %w", a.ContractName, err)
	}

	c := model.Contract{
		UniqueHash:      uniqueHash(creationCode),
		CreationCode:    creationCode,
		RuntimeBytecode: runtimeCode,
		ABI:             a.ABI,
		SourceName:      a.SourceName,
		ContractName:    a.ContractName,
		Source:          a.Source,
		CompilerVersion: a.Compiler.Version,
		FromBuildInfo:   false,
	}
	c.AddSource(sourcePath)
	return c, nil
}

// uniqueHash computes the spec's contract identity: SHA-256 of the raw
// creation-code bytes (not of the 0x-prefixed hex string).
func uniqueHash(hexCreationCode string) string {
	raw, err := hex.DecodeString(hexCreationCode[2:])
	if err != nil {
		// NormalizeBytecode already validated hex; this path is unreachable
		// in practice, but fall back to hashing the string form.
		sum := sha256.Sum256([]byte(hexCreationCode))
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
