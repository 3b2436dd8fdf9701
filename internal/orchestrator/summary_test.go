package orchestrator

import (
	"testing"

	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestBuildRunSummary_CountsByStatus(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-token":    {Name: "deploy-token"},
		"deploy-registry": {Name: "deploy-registry"},
	}
	targets := []model.Network{{Name: "a", ChainID: 1}, {Name: "b", ChainID: 2}}
	store := NewResultStore()
	store.Set(1, "deploy-token", Outcome{Status: OutcomeSuccess})
	store.Set(2, "deploy-token", Outcome{Status: OutcomeFailed})
	store.Set(1, "deploy-registry", Outcome{Status: OutcomeSkipped})

	summary := BuildRunSummary([]string{"deploy-registry", "deploy-token"}, jobs, store, targets)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestBuildRunSummary_ExtractsKeyContractsFromAddressStringsAndObjects(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-token": {
			Name: "deploy-token",
			Actions: []model.Action{
				{Name: "deploy"},
				{Name: "register"},
			},
		},
	}
	targets := []model.Network{{Name: "a", ChainID: 1}}
	store := NewResultStore()
	store.Set(1, "deploy-token", Outcome{
		Status: OutcomeSuccess,
		Outputs: map[string]any{
			"deploy.address":       "0x1111111111111111111111111111111111111111",
			"register.receipt":     map[string]any{"address": "0x2222222222222222222222222222222222222222", "blockNumber": 5},
			"register.blockNumber": float64(5),
		},
	})

	summary := BuildRunSummary([]string{"deploy-token"}, jobs, store, targets)
	require := assert.New(t)
	require.Len(summary.Key, 2)

	var addresses []string
	for _, kc := range summary.Key {
		addresses = append(addresses, kc.Address)
	}
	require.Contains(addresses, "0x1111111111111111111111111111111111111111")
	require.Contains(addresses, "0x2222222222222222222222222222222222222222")
}

func TestBuildRunSummary_CapsAtTenKeyContracts(t *testing.T) {
	var actions []model.Action
	outputs := map[string]any{}
	for i := 0; i < 15; i++ {
		name := "deploy" + string(rune('a'+i))
		actions = append(actions, model.Action{Name: name})
		outputs[name+".address"] = "0x3333333333333333333333333333333333333333"
	}
	jobs := map[string]model.Job{"deploy-many": {Name: "deploy-many", Actions: actions}}
	targets := []model.Network{{Name: "a", ChainID: 1}}
	store := NewResultStore()
	store.Set(1, "deploy-many", Outcome{Status: OutcomeSuccess, Outputs: outputs})

	summary := BuildRunSummary([]string{"deploy-many"}, jobs, store, targets)
	assert.LessOrEqual(t, len(summary.Key), 10)
}
