package execctx

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestContext(t *testing.T) *Context {
	t.Helper()
	signer, err := evmchain.NewLocalSignerFromHex(testPrivateKeyHex)
	require.NoError(t, err)

	c, err := New(Config{
		Job:       model.Job{Name: "deploy-token", DependsOn: []string{"deploy-registry"}},
		Network:   model.Network{Name: "local", ChainID: 1337, RPCURL: "http://127.0.0.1:8545"},
		Contracts: contracts.New(nil),
		Signer:    signer,
	})
	require.NoError(t, err)
	return c
}

func TestContext_RecordOutput(t *testing.T) {
	c := newTestContext(t)
	c.RecordOutput("deploy", "address", "0xabc")
	assert.Equal(t, "0xabc", c.JobOutputs["deploy.address"])
}

func TestContext_PopulateCrossJobOutputs(t *testing.T) {
	c := newTestContext(t)
	c.PopulateCrossJobOutputs("deploy-registry", map[string]any{"deploy.address": "0x111"})
	assert.Equal(t, "0x111", c.CrossJobOutputs["deploy-registry.deploy.address"])
}

func TestContext_RecordDeployedAddress(t *testing.T) {
	c := newTestContext(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	c.RecordDeployedAddress("Token", addr)
	assert.Equal(t, addr, c.Scope().DeployedAddresses["Token"])
}

func TestContext_DisposeIsIdempotent(t *testing.T) {
	c := newTestContext(t)
	require.NoError(t, c.Dispose())
	require.NoError(t, c.Dispose())
}
