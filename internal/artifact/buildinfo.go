package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/tidwall/gjson"
)

// Recognized build-info `_format` discriminators (spec.md §6). Both
// framings are normalized to the same model.Contract shape; ethers-rs and
// Hardhat disagree only in how strict their input/output nesting is, not
// in the fields we read.
const (
	FormatHardhatBuildInfo = "hh-sol-build-info-1"
	FormatEthersRSBuildInfo = "ethers-rs-sol-build-info-1"
)

// BuildInfoWarning is a non-fatal anomaly surfaced while parsing a
// build-info file, e.g. an id mismatch. Callers forward these to the event
// bus rather than failing the parse.
type BuildInfoWarning struct {
	BuildInfoID string
	Message     string
}

// LooksLikeBuildInfo reports whether data carries a recognized build-info
// `_format` discriminator.
func LooksLikeBuildInfo(data []byte) bool {
	format := gjson.GetBytes(data, "_format").String()
	return format == FormatHardhatBuildInfo || format == FormatEthersRSBuildInfo
}

// ParseBuildInfo parses a multi-contract build-info JSON payload. Every
// (sourceName, contractName) entry under output.contracts hydrates a
// separate model.Contract. A build-info id mismatch produces a warning, not
// an error.
func ParseBuildInfo(data []byte, sourcePath string) ([]model.Contract, []BuildInfoWarning, error) {
	root := gjson.ParseBytes(data)
	format := root.Get("_format").String()
	if format != FormatHardhatBuildInfo && format != FormatEthersRSBuildInfo {
		return nil, nil, fmt.Errorf("parse build-info %s: unrecognized _format %q", sourcePath, format)
	}

	id := root.Get("id").String()
	solcVersion := root.Get("solcVersion").String()

	var warnings []BuildInfoWarning
	if id != "" && solcVersion != "" {
		inputRaw := root.Get("input").Raw
		if inputRaw != "" {
			if got := computeBuildInfoID(solcVersion, inputRaw); got != id {
				warnings = append(warnings, BuildInfoWarning{
					BuildInfoID: id,
					Message:     fmt.Sprintf("build-info id mismatch: file claims %s, recomputed %s", id, got),
				})
			}
		}
	}

	contractsNode := root.Get("output.contracts")
	if !contractsNode.Exists() {
		return nil, warnings, fmt.Errorf("parse build-info %s: missing output.contracts", sourcePath)
	}

	var contracts []model.Contract
	var parseErr error
	contractsNode.ForEach(func(sourceNameKey, perSourceVal gjson.Result) bool {
		sourceName := sourceNameKey.String()
		perSourceVal.ForEach(func(contractNameKey, entry gjson.Result) bool {
			contractName := contractNameKey.String()

			creationCode, err := NormalizeBytecode(entry.Get("evm.bytecode.object").String())
			if err != nil {
				parseErr = fmt.Errorf("parse build-info %s: %s/%s: %w", sourcePath, sourceName, contractName, err)
				return false
			}
			if creationCode == "" {
				// No bytecode: interface/abstract contract, not deployable. Skip.
				return true
			}
			runtimeCode, err := NormalizeBytecode(entry.Get("evm.deployedBytecode.object").String())
			if err != nil {
				parseErr = fmt.Errorf("parse build-info %s: %s/%s: deployedBytecode: %w", sourcePath, sourceName, contractName, err)
				return false
			}

			var abi json.RawMessage
			if abiRaw := entry.Get("abi").Raw; abiRaw != "" {
				abi = json.RawMessage(abiRaw)
			}

			c := model.Contract{
				UniqueHash:      uniqueHash(creationCode),
				CreationCode:    creationCode,
				RuntimeBytecode: runtimeCode,
				ABI:             abi,
				SourceName:      sourceName,
				ContractName:    contractName,
				CompilerVersion: solcVersion,
				BuildInfoID:     id,
				FromBuildInfo:   true,
			}
			c.AddSource(sourcePath)
			contracts = append(contracts, c)
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, warnings, parseErr
	}

	return contracts, warnings, nil
}

// computeBuildInfoID recomputes keccak256(solcVersion ++ stableJSONStringify(input))
// per spec.md §6's id-validation rule.
func computeBuildInfoID(solcVersion, inputRaw string) string {
	stable := stableJSONStringify(inputRaw)
	digest := crypto.Keccak256([]byte(solcVersion + stable))
	return fmt.Sprintf("%x", digest)
}

// stableJSONStringify re-serializes a JSON document with object keys sorted,
// so the hash input matches regardless of source key ordering.
func stableJSONStringify(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	var b strings.Builder
	writeStable(&b, v)
	return b.String()
}

func writeStable(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			b.Write(keyBytes)
			b.WriteByte(':')
			writeStable(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, e)
		}
		b.WriteByte(']')
	default:
		encoded, _ := json.Marshal(val)
		b.Write(encoded)
	}
}
