package resolver

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeValue(t *testing.T, doc string) model.Value {
	t.Helper()
	var v model.Value
	require.NoError(t, yaml.Unmarshal([]byte(doc), &v))
	return v
}

func newTestScope(repo *contracts.Repository) *Scope {
	return &Scope{
		TemplateArguments: map[string]any{},
		JobConstants:      map[string]model.Value{},
		TopConstants:      map[string]model.Value{},
		JobOutputs:        map[string]any{},
		CrossJobOutputs:   map[string]any{},
		DeployedAddresses: map[string]common.Address{},
		Contracts:         repo,
	}
}

func TestResolve_Literal(t *testing.T) {
	r := New()
	v := decodeValue(t, `42`)
	got, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestResolve_BareIdentifier_TemplateArgWins(t *testing.T) {
	r := New()
	scope := newTestScope(contracts.New(nil))
	scope.TemplateArguments["owner"] = "0xabc"
	scope.TopConstants["owner"] = model.Value{Raw: "0xzzz"}

	v := decodeValue(t, `"{{owner}}"`)
	got, err := r.Resolve(context.Background(), v, scope)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got)
}

func TestResolve_BareIdentifier_JobConstantBeforeTop(t *testing.T) {
	r := New()
	scope := newTestScope(contracts.New(nil))
	scope.JobConstants["fee"] = model.Value{Raw: 100}
	scope.TopConstants["fee"] = model.Value{Raw: 200}

	v := decodeValue(t, `"{{fee}}"`)
	got, err := r.Resolve(context.Background(), v, scope)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
}

func TestResolve_DottedPath_JobOutput(t *testing.T) {
	r := New()
	scope := newTestScope(contracts.New(nil))
	scope.JobOutputs["deploy.address"] = "0x0000000000000000000000000000000000000001"

	v := decodeValue(t, `"{{deploy.address}}"`)
	got, err := r.Resolve(context.Background(), v, scope)
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", got)
}

func TestResolve_DottedPath_CrossJob(t *testing.T) {
	r := New()
	scope := newTestScope(contracts.New(nil))
	scope.DependsOn = []string{"deploy-registry"}
	scope.CrossJobOutputs["deploy-registry.deploy.address"] = "0xabc"

	v := decodeValue(t, `"{{deploy-registry.deploy.address}}"`)
	_, err := r.Resolve(context.Background(), v, scope)
	// dotted-path regex only matches identifier segments; job names with
	// hyphens are not bare identifiers, so this form is unrecognized.
	assert.Error(t, err)
}

func TestResolve_ContractCreationCode(t *testing.T) {
	repo := contracts.New(nil)
	c := model.Contract{UniqueHash: "h1", ContractName: "Token", CreationCode: "0x6080"}
	repo.Add(c, false)
	repo.Finalize()

	r := New()
	scope := newTestScope(repo)
	v := decodeValue(t, `"{{Contract(Token).creationCode}}"`)
	got, err := r.Resolve(context.Background(), v, scope)
	require.NoError(t, err)
	assert.Equal(t, "0x6080", got)
}

func TestResolve_CreationCodeFunctionForm(t *testing.T) {
	repo := contracts.New(nil)
	c := model.Contract{UniqueHash: "h1", ContractName: "Token", CreationCode: "0x6080"}
	repo.Add(c, false)
	repo.Finalize()

	r := New()
	scope := newTestScope(repo)
	v := decodeValue(t, `"{{creationCode(Token)}}"`)
	got, err := r.Resolve(context.Background(), v, scope)
	require.NoError(t, err)
	assert.Equal(t, "0x6080", got)
}

func TestResolve_BasicArithmeticAdd(t *testing.T) {
	r := New()
	v := decodeValue(t, `
type: basic-arithmetic
operation: add
values: [1, 2, 3]
`)
	got, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6), got)
}

func TestResolve_BasicArithmeticDivisionByZero(t *testing.T) {
	r := New()
	v := decodeValue(t, `
type: basic-arithmetic
operation: div
values: [10, 0]
`)
	_, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	assert.Error(t, err)
}

func TestResolve_BasicArithmeticComparison(t *testing.T) {
	r := New()
	v := decodeValue(t, `
type: basic-arithmetic
operation: gt
values: [5, 3]
`)
	got, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestResolve_AbiEncode(t *testing.T) {
	r := New()
	v := decodeValue(t, `
type: abi-encode
signature: "transfer(address,uint256)"
values: ["0x0000000000000000000000000000000000000001", "1000"]
`)
	got, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	s, ok := got.(string)
	require.True(t, ok)
	assert.Equal(t, "0xa9059cbb", s[:10])
}

func TestResolve_ComputeCreate2Deterministic(t *testing.T) {
	r := New()
	v := decodeValue(t, `
type: compute-create2
deployerAddress: "0x0000000000000000000000000000000000000002"
salt: "0x0000000000000000000000000000000000000000000000000000000000000001"
initCode: "0x6080"
`)
	got1, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	got2, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	require.NoError(t, err)
	assert.Equal(t, got1, got2)
}

func TestResolve_UnrecognizedExpressionForm(t *testing.T) {
	r := New()
	v := decodeValue(t, `"{{???}}"`)
	_, err := r.Resolve(context.Background(), v, newTestScope(contracts.New(nil)))
	assert.Error(t, err)
}
