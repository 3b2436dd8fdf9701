package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStandardArtifact = `{
  "contractName": "Token",
  "sourceName": "src/Token.sol",
  "abi": [{"type": "function", "name": "transfer"}],
  "bytecode": "0x6080604052",
  "deployedBytecode": "0x608060405260",
  "compiler": {"version": "0.8.20"}
}`

func TestLooksLikeStandardArtifact(t *testing.T) {
	assert.True(t, LooksLikeStandardArtifact([]byte(sampleStandardArtifact)))
	assert.False(t, LooksLikeStandardArtifact([]byte(`{"_format":"hh-sol-build-info-1"}`)))
	assert.False(t, LooksLikeStandardArtifact([]byte(`{"hello":"world"}`)))
}

func TestParseStandardArtifact(t *testing.T) {
	c, err := ParseStandardArtifact([]byte(sampleStandardArtifact), "/proj/artifacts/Token.json")
	require.NoError(t, err)
	assert.Equal(t, "Token", c.ContractName)
	assert.Equal(t, "src/Token.sol", c.SourceName)
	assert.Equal(t, "0x6080604052", c.CreationCode)
	assert.Equal(t, "0x608060405260", c.RuntimeBytecode)
	assert.Equal(t, "0.8.20", c.CompilerVersion)
	assert.False(t, c.FromBuildInfo)
	assert.NotEmpty(t, c.UniqueHash)
	assert.Contains(t, c.Sources, "/proj/artifacts/Token.json")
}

func TestParseStandardArtifact_MissingBytecode(t *testing.T) {
	_, err := ParseStandardArtifact([]byte(`{"contractName":"Token","bytecode":""}`), "x.json")
	assert.Error(t, err)
}

func TestParseStandardArtifact_DeterministicHash(t *testing.T) {
	c1, err := ParseStandardArtifact([]byte(sampleStandardArtifact), "a.json")
	require.NoError(t, err)
	c2, err := ParseStandardArtifact([]byte(sampleStandardArtifact), "b.json")
	require.NoError(t, err)
	assert.Equal(t, c1.UniqueHash, c2.UniqueHash)
}
