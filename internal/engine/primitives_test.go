package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRecordDeployedContract_RecordsHashAndReferenceKeys(t *testing.T) {
	job := model.Job{Name: "deploy-token"}
	ec := newTestExecCtx(t, job)

	creationCode := []byte{0x60, 0x80, 0x60, 0x40}
	sum := sha256.Sum256(creationCode)
	uniqueHash := hex.EncodeToString(sum[:])

	ec.Contracts = contracts.New(nil)
	ec.Contracts.Add(model.Contract{
		UniqueHash:   uniqueHash,
		CreationCode: "0x" + hex.EncodeToString(creationCode),
		ContractName: "Token",
		SourceName:   "src/Token.sol",
	}, false)
	ec.Contracts.Finalize()

	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recordDeployedContract(ec, creationCode, addr)

	assert.Equal(t, addr, ec.DeployedAddresses[uniqueHash])
	assert.Equal(t, addr, ec.DeployedAddresses["Token"])
	assert.Equal(t, addr, ec.DeployedAddresses["src/Token.sol:Token"])
}

func TestRecordDeployedContract_RecordsHashOnlyWhenContractUnknown(t *testing.T) {
	job := model.Job{Name: "deploy-token"}
	ec := newTestExecCtx(t, job)
	ec.Contracts = contracts.New(nil)
	ec.Contracts.Finalize()

	creationCode := []byte{0xde, 0xad, 0xbe, 0xef}
	sum := sha256.Sum256(creationCode)
	uniqueHash := hex.EncodeToString(sum[:])

	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recordDeployedContract(ec, creationCode, addr)

	assert.Equal(t, addr, ec.DeployedAddresses[uniqueHash])
	assert.Len(t, ec.DeployedAddresses, 1)
}
