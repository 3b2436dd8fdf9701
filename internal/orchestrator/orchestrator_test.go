package orchestrator

import (
	"context"
	"testing"

	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/depgraph"
	"github.com/r3e-network/deployengine/internal/engine"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestOrchestrator(t *testing.T, jobs map[string]model.Job, networks []model.Network, opts Options) *Orchestrator {
	t.Helper()
	signer, err := evmchain.NewLocalSignerFromHex(testPrivateKeyHex)
	require.NoError(t, err)

	graph, err := depgraph.Build(jobs, map[string]model.Template{})
	require.NoError(t, err)

	return &Orchestrator{
		ProjectRoot: t.TempDir(),
		Jobs:        jobs,
		Templates:   map[string]model.Template{},
		Contracts:   contracts.New(nil),
		Networks:    networks,
		Graph:       graph,
		Engine:      engine.New(engine.Config{}),
		Signer:      signer,
		Options:     opts,
	}
}

func TestOrchestrator_Run_DryRunSkipsExecutionAndWrite(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-registry": {Name: "deploy-registry"},
	}
	networks := []model.Network{{Name: "local", ChainID: 1337, RPCURL: "http://127.0.0.1:8545"}}
	o := newTestOrchestrator(t, jobs, networks, Options{DryRun: true})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Success)
	assert.Equal(t, 0, summary.Failed)

	outcome, ok := o.results.Get(1337, "deploy-registry")
	require.True(t, ok)
	assert.Equal(t, OutcomePlanned, outcome.Status)
}

func TestOrchestrator_RunNetwork_DependencyFailurePropagatesExactMessage(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-registry": {Name: "deploy-registry"},
		"deploy-token":    {Name: "deploy-token", DependsOn: []string{"deploy-registry"}},
	}
	networks := []model.Network{{Name: "local", ChainID: 1337, RPCURL: "http://127.0.0.1:8545"}}
	o := newTestOrchestrator(t, jobs, networks, Options{})
	o.results = NewResultStore()
	o.results.Set(1337, "deploy-registry", Outcome{Status: OutcomeFailed, Reason: "boom"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.runNetwork(ctx, networks[0], []string{"deploy-token"}, map[string]bool{}, cancel)

	outcome, ok := o.results.Get(1337, "deploy-token")
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, `depends on "deploy-registry", but "deploy-registry" failed`, outcome.Reason)
}

func TestOrchestrator_RunNetwork_FailEarlyCancelsContext(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-registry": {Name: "deploy-registry"},
		"deploy-token":    {Name: "deploy-token", DependsOn: []string{"deploy-registry"}},
	}
	networks := []model.Network{{Name: "local", ChainID: 1337, RPCURL: "http://127.0.0.1:8545"}}
	o := newTestOrchestrator(t, jobs, networks, Options{FailEarly: true})
	o.results = NewResultStore()
	o.results.Set(1337, "deploy-registry", Outcome{Status: OutcomeFailed, Reason: "boom"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.runNetwork(ctx, networks[0], []string{"deploy-token"}, map[string]bool{}, cancel)

	assert.Error(t, ctx.Err())
}

func TestOrchestrator_RunNetwork_SkipsJobsNotApplicableToNetwork(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-testnet-only": {Name: "deploy-testnet-only", OnlyNetworks: []uint64{5}},
	}
	networks := []model.Network{{Name: "local", ChainID: 1337, RPCURL: "http://127.0.0.1:8545"}}
	o := newTestOrchestrator(t, jobs, networks, Options{})
	o.results = NewResultStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.runNetwork(ctx, networks[0], []string{"deploy-testnet-only"}, map[string]bool{}, cancel)

	outcome, ok := o.results.Get(1337, "deploy-testnet-only")
	require.True(t, ok)
	assert.Equal(t, OutcomeSkipped, outcome.Status)
	assert.Equal(t, "network filter", outcome.Reason)
}

func TestOrchestrator_UnmetEVMVersion(t *testing.T) {
	o := &Orchestrator{}
	job := model.Job{Name: "deploy-token", MinEVMVersion: "1.2.0"}

	reason, unmet := o.unmetEVMVersion(job, model.Network{Name: "old-chain", EVMVersion: "1.0.0"})
	assert.True(t, unmet)
	assert.Contains(t, reason, "below job's min_evm_version")

	_, unmet = o.unmetEVMVersion(job, model.Network{Name: "new-chain", EVMVersion: "1.5.0"})
	assert.False(t, unmet)

	_, unmet = o.unmetEVMVersion(model.Job{Name: "no-constraint"}, model.Network{Name: "any-chain", EVMVersion: "1.0.0"})
	assert.False(t, unmet)
}

func TestOrchestrator_UnmetEVMVersion_ForkNames(t *testing.T) {
	o := &Orchestrator{}
	job := model.Job{Name: "deploy-token", MinEVMVersion: "shanghai"}

	reason, unmet := o.unmetEVMVersion(job, model.Network{Name: "old-chain", EVMVersion: "london"})
	assert.True(t, unmet, "london predates shanghai")
	assert.Contains(t, reason, "below job's min_evm_version")

	_, unmet = o.unmetEVMVersion(job, model.Network{Name: "new-chain", EVMVersion: "cancun"})
	assert.False(t, unmet, "cancun postdates shanghai")

	_, unmet = o.unmetEVMVersion(job, model.Network{Name: "same-chain", EVMVersion: "shanghai"})
	assert.False(t, unmet, "equal fork satisfies the constraint")
}

func TestOrchestrator_RunNetwork_SkipsByMinEVMVersion(t *testing.T) {
	jobs := map[string]model.Job{
		"deploy-needs-new-evm": {Name: "deploy-needs-new-evm", MinEVMVersion: "2.0.0"},
	}
	networks := []model.Network{{Name: "old-chain", ChainID: 99, RPCURL: "http://127.0.0.1:8545", EVMVersion: "1.0.0"}}
	o := newTestOrchestrator(t, jobs, networks, Options{})
	o.results = NewResultStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.runNetwork(ctx, networks[0], []string{"deploy-needs-new-evm"}, map[string]bool{}, cancel)

	outcome, ok := o.results.Get(99, "deploy-needs-new-evm")
	require.True(t, ok)
	assert.Equal(t, OutcomeSkipped, outcome.Status)
}
