// Package artifact parses compiled-contract JSON payloads (standard
// single-contract artifacts and multi-contract build-info files) into
// model.Contract hydrations.
package artifact

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NormalizeBytecode accepts Hardhat-style "0x..." hex or ethers-rs bare-hex
// and returns lowercase 0x-prefixed hex. An empty input returns "" unchanged
// (optional fields, e.g. deployedBytecode, are frequently absent).
func NormalizeBytecode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	hexPart := trimmed
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		hexPart = trimmed[2:]
	}
	if hexPart == "" {
		return "", nil
	}
	if len(hexPart)%2 != 0 {
		return "", fmt.Errorf("bytecode: odd-length hex string")
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", fmt.Errorf("bytecode: %w", err)
	}
	return "0x" + strings.ToLower(hexPart), nil
}
