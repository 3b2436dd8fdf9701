package evmchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, addr)

	_, err = NormalizeAddress("not-an-address")
	assert.Error(t, err)

	_, err = NormalizeAddress("0x1234")
	assert.Error(t, err)
}

func TestComputeCreate2Address(t *testing.T) {
	deployer := common.HexToAddress("0x0000000000000000000000000000000000000001")
	salt, err := ParseSalt([]byte("deterministic-salt"))
	require.NoError(t, err)
	initCode := []byte{0x60, 0x80, 0x60, 0x40}

	addr1 := ComputeCreate2Address(deployer, salt, initCode)
	addr2 := ComputeCreate2Address(deployer, salt, initCode)
	assert.Equal(t, addr1, addr2, "CREATE2 address must be deterministic")

	otherSalt, err := ParseSalt([]byte("different-salt"))
	require.NoError(t, err)
	addr3 := ComputeCreate2Address(deployer, otherSalt, initCode)
	assert.NotEqual(t, addr1, addr3)
}

func TestParseSalt(t *testing.T) {
	salt, err := ParseSalt([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), salt[30])
	assert.Equal(t, byte(0x02), salt[31])

	tooLong := make([]byte, 33)
	_, err = ParseSalt(tooLong)
	assert.Error(t, err)
}

func TestSaltFromBigInt(t *testing.T) {
	salt := SaltFromBigInt(big.NewInt(42))
	assert.Equal(t, byte(42), salt[31])

	zero := SaltFromBigInt(nil)
	assert.Equal(t, [32]byte{}, zero)
}

func TestComputeCreateAddress(t *testing.T) {
	deployer := common.HexToAddress("0x0000000000000000000000000000000000000001")
	addr0 := ComputeCreateAddress(deployer, 0)
	addr1 := ComputeCreateAddress(deployer, 1)
	assert.NotEqual(t, addr0, addr1)
}
