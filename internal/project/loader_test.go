package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoader_Load_FullTree(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "networks.yaml"), `
networks:
  - name: mainnet
    chain_id: 1
    rpc_url: "https://example.invalid"
`)

	writeFile(t, filepath.Join(root, "constants.yaml"), `
type: constants
feeRecipient: "0xabc"
`)

	writeFile(t, filepath.Join(root, "templates", "deploy-proxy.yaml"), `
name: deploy-proxy
actions:
  - name: deploy
    type: create-contract
`)

	writeFile(t, filepath.Join(root, "jobs", "deploy-token.yaml"), `
name: deploy-token
version: "1.0.0"
actions:
  - name: deploy
    template: deploy-proxy
`)

	writeFile(t, filepath.Join(root, "jobs", "templates", "inline-helper.yaml"), `
name: inline-helper
actions:
  - name: noop
    type: noop
`)

	writeFile(t, filepath.Join(root, "artifacts", "Token.json"), `{
  "contractName": "Token",
  "bytecode": "0x6080",
  "abi": []
}`)

	writeFile(t, filepath.Join(root, "node_modules", "ignored", "Fake.json"), `{
  "contractName": "Fake",
  "bytecode": "0xdead",
  "abi": []
}`)

	l := New(root, nil)
	p, err := l.Load()
	require.NoError(t, err)

	assert.Len(t, p.Networks, 1)
	assert.Contains(t, p.Constants, "feeRecipient")
	assert.Contains(t, p.Jobs, "deploy-token")
	assert.Contains(t, p.Templates, "deploy-proxy")
	assert.Contains(t, p.Templates, "inline-helper")
	assert.Equal(t, 1, p.Contracts.Count())

	c, err := p.Contracts.Lookup("Token", "")
	require.NoError(t, err)
	assert.Equal(t, "Token", c.ContractName)

	_, err = p.Contracts.Lookup("Fake", "")
	assert.Error(t, err, "node_modules must be excluded from discovery")
}

func TestLoader_Load_ExpandsRPCURLTemplateInNetworks(t *testing.T) {
	t.Setenv("RPC_ALCHEMY_KEY", "secret-key")
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "networks.yaml"), `
networks:
  - name: sepolia
    chain_id: 11155111
    rpc_url: "https://sepolia.example.com/{{RPC_ALCHEMY_KEY}}/{{RPC_MISSING}}?x={{NOT_RPC}}"
`)

	l := New(root, nil)
	p, err := l.Load()
	require.NoError(t, err)
	require.Len(t, p.Networks, 1)
	assert.Equal(t, "https://sepolia.example.com/secret-key/?x={{NOT_RPC}}", p.Networks[0].RPCURL)
}

func TestLoader_Load_DuplicateConstantIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.yaml"), "type: constants\nfoo: 1\n")
	writeFile(t, filepath.Join(root, "b.yaml"), "type: constants\nfoo: 2\n")

	l := New(root, nil)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foo")
}

func TestLoader_Load_AggregatesConstantsErrorsAcrossFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.yaml"), "type: constants\nfoo: 1\n")
	writeFile(t, filepath.Join(root, "b.yaml"), "type: constants\nfoo: 2\n")
	writeFile(t, filepath.Join(root, "c.yaml"), "type: constants\nbar: [1, 2\n")

	l := New(root, nil)
	_, err := l.Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "foo")
	assert.Contains(t, msg, "c.yaml")
}

func TestLoader_Load_DuplicateJobLastWriterWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "jobs", "a.yaml"), `
name: dup
version: "1.0.0"
description: first
actions: []
`)
	writeFile(t, filepath.Join(root, "jobs", "b.yaml"), `
name: dup
version: "2.0.0"
description: second
actions: []
`)

	l := New(root, nil)
	p, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, []string{"first", "second"}, p.Jobs["dup"].Description)
}

func TestLoader_Load_EmptyProject(t *testing.T) {
	root := t.TempDir()
	l := New(root, nil)
	p, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, p.Jobs)
	assert.Equal(t, 0, p.Contracts.Count())
}
