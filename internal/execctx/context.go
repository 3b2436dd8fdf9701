// Package execctx implements the per-(job, network) ExecutionContext
// (spec.md §4.5/§5): it exclusively owns a chain transport and signer,
// carries the two output scopes the resolver consults, and guarantees its
// resources are released exactly once regardless of how the job finishes.
package execctx

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/contracts"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/r3e-network/deployengine/internal/resolver"
	"github.com/r3e-network/deployengine/internal/verify"
)

// Config supplies everything needed to construct one Context. Signer and
// Verify are shared across the whole run (a signer holds only a private
// key, not per-network transport state); Chain is constructed fresh per
// Context since it is bound to one network's RPC endpoint.
type Config struct {
	Job             model.Job
	Network         model.Network
	Contracts       *contracts.Repository
	TopConstants    map[string]model.Value
	Signer          evmchain.Signer
	Bus             *eventbus.Bus
	Verify          *verify.Registry
	EtherscanAPIKey string
	RPCTimeout      time.Duration
}

// Context is one job's execution environment on one network.
type Context struct {
	Job     model.Job
	Network model.Network

	Chain     *evmchain.Client
	TxBuilder *evmchain.TxBuilder
	Signer    evmchain.Signer

	Contracts    *contracts.Repository
	TopConstants map[string]model.Value
	JobConstants map[string]model.Value

	// JobOutputs is keyed "<actionName>.<key>"; CrossJobOutputs is keyed
	// "<depJob>.<depAction>.<key>", populated by the orchestrator before
	// executeJob runs (spec.md §4.6).
	JobOutputs      map[string]any
	CrossJobOutputs map[string]any

	// DeployedAddresses backs Contract(ref).address lookups: every
	// successful create-contract/compute-create2-then-deploy action
	// records its contract's address here under every reference key the
	// contract repository recognizes for it.
	DeployedAddresses map[string]common.Address

	// CompletedJobs records, for the current network, which jobs have
	// already finished (successfully) earlier in this run's topological
	// order — it backs the `job-completed` skip-condition form (spec.md
	// §3). The orchestrator populates it after constructing this Context,
	// before the job executes.
	CompletedJobs map[string]bool

	// VerificationWarnings accumulates non-fatal verify-primitive failures
	// (IgnoreVerifyErrors) for this job's execution only, so they land on
	// this job's JobResult and never bleed into a concurrently-running
	// job on another network.
	VerificationWarnings []string

	Bus      *eventbus.Bus
	Resolver *resolver.Resolver
	Verify   *verify.Registry

	disposeOnce sync.Once
	disposeErr  error
}

// New constructs a Context. The caller must call Dispose exactly once,
// on every exit path (success, failure, or skip).
func New(cfg Config) (*Context, error) {
	timeout := cfg.RPCTimeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	client, err := evmchain.NewClient(evmchain.Config{
		RPCURL:  cfg.Network.RPCURL,
		ChainID: new(big.Int).SetUint64(cfg.Network.ChainID),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	return &Context{
		Job:               cfg.Job,
		Network:           cfg.Network,
		Chain:             client,
		TxBuilder:         evmchain.NewTxBuilder(client, cfg.Signer),
		Signer:            cfg.Signer,
		Contracts:         cfg.Contracts,
		TopConstants:      cfg.TopConstants,
		JobConstants:      cfg.Job.Constants,
		JobOutputs:        make(map[string]any),
		CrossJobOutputs:   make(map[string]any),
		DeployedAddresses: make(map[string]common.Address),
		CompletedJobs:     make(map[string]bool),
		Bus:               cfg.Bus,
		Resolver:          resolver.New(),
		Verify:            cfg.Verify,
	}, nil
}

// Scope builds the resolver.Scope snapshot for the current state of this
// job's execution. TemplateArguments and ContractContext are left nil/zero
// here; the engine overlays them per template-call / per-action.
func (c *Context) Scope() *resolver.Scope {
	return &resolver.Scope{
		JobConstants:      c.JobConstants,
		TopConstants:      c.TopConstants,
		JobOutputs:        c.JobOutputs,
		CrossJobOutputs:   c.CrossJobOutputs,
		DependsOn:         c.Job.DependsOn,
		DeployedAddresses: c.DeployedAddresses,
		Contracts:         c.Contracts,
		Chain:             c.Chain,
		SourcePath:        c.Job.SourcePath,
	}
}

// RecordOutput writes one produced key into the job scope under
// "<actionName>.<key>" (spec.md §4.5 action loop step 3).
func (c *Context) RecordOutput(actionName, key string, value any) {
	c.JobOutputs[actionName+"."+key] = value
}

// RecordDeployedAddress marks ref (any form the contract repository
// accepts as a lookup key) as deployed at addr for the remainder of this
// job's execution.
func (c *Context) RecordDeployedAddress(ref string, addr common.Address) {
	c.DeployedAddresses[ref] = addr
}

// RecordVerificationWarning accumulates a non-fatal verification failure
// message, later copied onto this job's JobResult.
func (c *Context) RecordVerificationWarning(msg string) {
	c.VerificationWarnings = append(c.VerificationWarnings, msg)
}

// PopulateCrossJobOutputs copies a dependency job's recorded outputs into
// this context's cross-job scope, prefixed "<depJob>.<key>" (spec.md
// §4.6 execution loop).
func (c *Context) PopulateCrossJobOutputs(depJob string, outputs map[string]any) {
	for k, v := range outputs {
		c.CrossJobOutputs[depJob+"."+k] = v
	}
}

// Dispose releases the context's transport. Safe to call multiple times;
// only the first call has effect. A non-nil return is reported by the
// caller as a warning event, never as the job's terminal error (spec.md
// §5 resource-ownership invariant).
func (c *Context) Dispose() error {
	c.disposeOnce.Do(func() {
		c.disposeErr = c.Chain.Close()
	})
	return c.disposeErr
}
