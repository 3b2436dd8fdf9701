package contracts

import (
	"testing"

	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenContract(hash, sourceName string) model.Contract {
	c := model.Contract{
		UniqueHash:   hash,
		ContractName: "Token",
		SourceName:   sourceName,
	}
	c.AddSource(sourceName)
	return c
}

func TestRepository_LookupByUniqueHash(t *testing.T) {
	r := New(nil)
	r.Add(tokenContract("hash1", "src/Token.sol"), false)
	r.Finalize()

	c, err := r.Lookup("hash1", "")
	require.NoError(t, err)
	assert.Equal(t, "hash1", c.UniqueHash)
}

func TestRepository_LookupByUnambiguousName(t *testing.T) {
	r := New(nil)
	r.Add(tokenContract("hash1", "src/Token.sol"), false)
	r.Finalize()

	c, err := r.Lookup("Token", "")
	require.NoError(t, err)
	assert.Equal(t, "hash1", c.UniqueHash)
}

func TestRepository_AmbiguousNameNeverGuesses(t *testing.T) {
	r := New(nil)
	r.Add(tokenContract("hash1", "a/Token.sol"), false)
	r.Add(tokenContract("hash2", "b/Token.sol"), false)
	r.Finalize()

	_, err := r.Lookup("Token", "")
	assert.Error(t, err)
}

func TestRepository_SourceQualifiedNameDisambiguates(t *testing.T) {
	r := New(nil)
	r.Add(tokenContract("hash1", "a/Token.sol"), false)
	r.Add(tokenContract("hash2", "b/Token.sol"), false)
	r.Finalize()

	c, err := r.Lookup("a/Token.sol:Token", "")
	require.NoError(t, err)
	assert.Equal(t, "hash1", c.UniqueHash)
}

func TestRepository_SuffixMatchLongestWins(t *testing.T) {
	r := New(nil)
	c1 := model.Contract{UniqueHash: "hash1"}
	c1.AddSource("/project/contracts/Token.sol")
	c2 := model.Contract{UniqueHash: "hash2"}
	c2.AddSource("/project/contracts/sub/Token.sol")
	r.Add(c1, false)
	r.Add(c2, false)
	r.Finalize()

	c, err := r.Lookup("sub/Token.sol", "")
	require.NoError(t, err)
	assert.Equal(t, "hash2", c.UniqueHash)
}

func TestRepository_SuffixMatchRespectsPathBoundary(t *testing.T) {
	r := New(nil)
	c1 := model.Contract{UniqueHash: "hash1"}
	c1.AddSource("/project/contracts/MyToken.sol")
	r.Add(c1, false)
	r.Finalize()

	_, err := r.Lookup("oken.sol", "")
	assert.Error(t, err, "suffix match must not split inside a path segment")
}

func TestRepository_LookupBeforeFinalizeErrors(t *testing.T) {
	r := New(nil)
	r.Add(tokenContract("hash1", "src/Token.sol"), false)
	_, err := r.Lookup("Token", "")
	assert.Error(t, err)
}

func TestRepository_NotFound(t *testing.T) {
	r := New(nil)
	r.Finalize()
	_, err := r.Lookup("Nonexistent", "")
	assert.Error(t, err)
}

func TestRepository_MergeBuildInfoWinsOverArtifact(t *testing.T) {
	r := New(nil)
	r.Add(model.Contract{UniqueHash: "hash1", ContractName: "Token", CompilerVersion: "0.8.19"}, false)
	r.Add(model.Contract{UniqueHash: "hash1", ContractName: "Token", CompilerVersion: "0.8.20"}, true)
	r.Finalize()

	c, err := r.Lookup("hash1", "")
	require.NoError(t, err)
	assert.Equal(t, "0.8.20", c.CompilerVersion)
	assert.True(t, c.FromBuildInfo)
}

func TestRepository_Count(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 0, r.Count())
	r.Add(tokenContract("hash1", "src/Token.sol"), false)
	assert.Equal(t, 1, r.Count())
}
