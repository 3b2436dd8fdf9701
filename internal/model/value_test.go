package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeValue(t *testing.T, doc string) Value {
	t.Helper()
	var v Value
	require.NoError(t, yaml.Unmarshal([]byte(doc), &v))
	return v
}

func TestValue_IsReference(t *testing.T) {
	v := decodeValue(t, `"{{Contract(Token).address}}"`)
	expr, ok := v.IsReference()
	require.True(t, ok)
	assert.Equal(t, "Contract(Token).address", expr)
}

func TestValue_SubstringBraceIsLiteral(t *testing.T) {
	v := decodeValue(t, `"prefix {{not a whole expr}}"`)
	_, ok := v.IsReference()
	assert.False(t, ok, "only whole-string {{...}} forms are references")
	assert.True(t, v.IsLiteral())
}

func TestValue_IsProducer(t *testing.T) {
	v := decodeValue(t, `
type: compute-create2
deployerAddress: "0xabc"
salt: "0x01"
initCode: "0x6080"
`)
	kind, fields, ok := v.IsProducer()
	require.True(t, ok)
	assert.Equal(t, ProducerComputeCreate2, kind)
	assert.Equal(t, "0xabc", fields["deployerAddress"])
}

func TestValue_UnknownTypeFieldIsLiteral(t *testing.T) {
	v := decodeValue(t, `
type: not-a-real-producer
foo: bar
`)
	_, _, ok := v.IsProducer()
	assert.False(t, ok)
	assert.True(t, v.IsLiteral())
}

func TestValue_LiteralScalar(t *testing.T) {
	v := decodeValue(t, `42`)
	assert.True(t, v.IsLiteral())
	assert.Equal(t, 42, v.Raw)
}

func TestCondition_ContractExists(t *testing.T) {
	var c Condition
	require.NoError(t, yaml.Unmarshal([]byte(`
contract-exists:
  address: "{{deployedAddress}}"
`), &c))

	assert.Equal(t, ConditionContractExists, c.Kind)
	expr, ok := c.Address.IsReference()
	require.True(t, ok)
	assert.Equal(t, "deployedAddress", expr)
}

func TestCondition_JobCompleted(t *testing.T) {
	var c Condition
	require.NoError(t, yaml.Unmarshal([]byte(`
job-completed:
  job: deploy-token
`), &c))

	assert.Equal(t, ConditionJobCompleted, c.Kind)
	assert.Equal(t, "deploy-token", c.Job)
}

func TestCondition_Generic(t *testing.T) {
	var c Condition
	require.NoError(t, yaml.Unmarshal([]byte(`"{{isReady}}"`), &c))

	assert.Equal(t, ConditionGeneric, c.Kind)
	expr, ok := c.Expr.IsReference()
	require.True(t, ok)
	assert.Equal(t, "isReady", expr)
}
