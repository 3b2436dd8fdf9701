package evmchain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCError_Error(t *testing.T) {
	err := &RPCError{Code: -32000, Message: "execution reverted"}
	assert.Equal(t, "rpc error -32000: execution reverted", err.Error())
}

func TestIsContractNotFoundError(t *testing.T) {
	assert.False(t, isContractNotFoundError(nil))
	assert.True(t, isContractNotFoundError(errors.New("Contract Not Found")))
	assert.True(t, isContractNotFoundError(errors.New("unable to locate contractCode at address")))
	assert.False(t, isContractNotFoundError(errors.New("insufficient funds")))
}
