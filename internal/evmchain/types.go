// Package evmchain provides an Ethereum JSON-RPC transport, signer, and
// transaction builder for the execution engine.
package evmchain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// RPC Types
// =============================================================================

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// isContractNotFoundError reports whether err looks like the node hasn't
// indexed a just-deployed contract yet. WaitForReceipt keeps polling on
// such errors instead of returning them.
func isContractNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "contract not found") || strings.Contains(msg, "unable to locate contractcode")
}
