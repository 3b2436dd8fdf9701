// Package orchestrator turns a loaded project and its resolved dependency
// graph into per-(job, network) executions, manages failure propagation
// and concurrency across networks, and persists results (spec.md §4.6).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/depgraph"
	"github.com/r3e-network/deployengine/internal/engine"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/execctx"
	"github.com/r3e-network/deployengine/internal/metrics"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/r3e-network/deployengine/internal/verify"
)

// Options controls one run (spec.md §6 CLI surface).
type Options struct {
	JobSelectors     []string
	NetworkSelectors []string
	EtherscanAPIKey  string
	RPCTimeout       time.Duration
	FailEarly        bool
	FlatOutput       bool
	NoPostCheck      bool
	RunDeprecated    bool
	DryRun           bool
}

// Orchestrator runs every job against every targeted network.
type Orchestrator struct {
	ProjectRoot string
	Jobs        map[string]model.Job
	Templates   map[string]model.Template
	Contracts   *contracts.Repository
	Constants   map[string]model.Value
	Networks    []model.Network
	Graph       *depgraph.Graph

	Bus    *eventbus.Bus
	Engine *engine.Engine
	Signer evmchain.Signer
	Verify *verify.Registry

	Options Options

	results *ResultStore
}

// Run executes the full plan across every target network and, unless
// DryRun is set, writes results to <ProjectRoot>/output.
func (o *Orchestrator) Run(parentCtx context.Context) (RunSummary, error) {
	o.results = NewResultStore()

	fullOrder, err := o.Graph.TopoOrder()
	if err != nil {
		return RunSummary{}, err
	}

	plan, explicit, err := SelectJobs(fullOrder, o.Options.JobSelectors, o.Jobs, o.Graph, o.Options.RunDeprecated)
	if err != nil {
		return RunSummary{}, err
	}

	targets, warnings, err := ResolveNetworks(o.Networks, o.Options.NetworkSelectors)
	if err != nil {
		return RunSummary{}, err
	}
	for _, w := range warnings {
		o.emit(eventbus.KindConfigWarning, eventbus.LevelWarn, map[string]any{"message": w})
	}

	o.emit(eventbus.KindRunPlanResolved, eventbus.LevelInfo, map[string]any{
		"jobs":     plan,
		"networks": networkNames(targets),
	})
	o.emit(eventbus.KindRunStarted, eventbus.LevelInfo, nil)

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	metrics.SetNetworksInFlight(len(targets))
	defer metrics.SetNetworksInFlight(0)

	var wg sync.WaitGroup
	for _, net := range targets {
		net := net
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runNetwork(ctx, net, plan, explicit, cancel)
		}()
	}
	wg.Wait()

	summary := BuildRunSummary(plan, o.Jobs, o.results, targets)
	o.emit(eventbus.KindRunSummary, eventbus.LevelInfo, summaryData(summary))
	o.emit(eventbus.KindRunFinished, eventbus.LevelInfo, nil)

	if o.Options.DryRun {
		return summary, nil
	}
	if err := WriteResults(o.ProjectRoot, o.Options.FlatOutput, plan, o.Jobs, o.results, targets, time.Now()); err != nil {
		return summary, err
	}
	return summary, nil
}

// runNetwork executes plan's jobs, in order, against one network. Jobs
// are skipped per only_networks/skip_networks and min_evm_version; a
// failed dependency short-circuits its dependents without constructing an
// ExecutionContext for them (spec.md §4.6 execution loop).
func (o *Orchestrator) runNetwork(ctx context.Context, net model.Network, plan []string, explicit map[string]bool, cancel context.CancelFunc) {
	completed := make(map[string]bool)

	for _, name := range plan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job := o.Jobs[name]

		if !job.AppliesToNetwork(net.ChainID) {
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomeSkipped, Reason: "network filter"})
			continue
		}
		if reason, ok := o.unmetEVMVersion(job, net); ok {
			o.emit(eventbus.KindNetworkSkipped, eventbus.LevelWarn, map[string]any{"job": name, "network": net.Name, "reason": reason})
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomeSkipped, Reason: reason})
			continue
		}

		failedDep := ""
		for _, dep := range job.DependsOn {
			outcome, ok := o.results.Get(net.ChainID, dep)
			if ok && outcome.Status == OutcomeFailed {
				failedDep = dep
				break
			}
		}
		if failedDep != "" {
			reason := fmt.Sprintf("depends on %q, but %q failed", failedDep, failedDep)
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomeFailed, Reason: reason})
			o.emit(eventbus.KindJobDependencyFailed, eventbus.LevelError, map[string]any{"job": name, "network": net.Name, "dependsOn": failedDep})
			if o.Options.FailEarly {
				cancel()
				return
			}
			continue
		}

		if o.Options.DryRun {
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomePlanned})
			completed[name] = true
			continue
		}

		ec, err := execctx.New(execctx.Config{
			Job:             job,
			Network:         net,
			Contracts:       o.Contracts,
			TopConstants:    o.Constants,
			Signer:          o.Signer,
			Bus:             o.Bus,
			Verify:          o.Verify,
			EtherscanAPIKey: o.Options.EtherscanAPIKey,
			RPCTimeout:      o.Options.RPCTimeout,
		})
		if err != nil {
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomeFailed, Reason: err.Error()})
			if o.Options.FailEarly {
				cancel()
				return
			}
			continue
		}
		for _, dep := range job.DependsOn {
			if outcome, ok := o.results.Get(net.ChainID, dep); ok && outcome.Status == OutcomeSuccess {
				ec.PopulateCrossJobOutputs(dep, outcome.Outputs)
			}
		}
		for done := range completed {
			ec.CompletedJobs[done] = true
		}

		jobStart := time.Now()
		result, execErr := o.Engine.ExecuteJob(ctx, ec, explicit[name])
		if disposeErr := ec.Dispose(); disposeErr != nil {
			o.emit(eventbus.KindTransportWarning, eventbus.LevelWarn, map[string]any{"job": name, "network": net.Name, "error": disposeErr.Error()})
		}

		if execErr != nil {
			metrics.RecordJob(name, string(OutcomeFailed), time.Since(jobStart))
			o.results.Set(net.ChainID, name, Outcome{Status: OutcomeFailed, Reason: execErr.Error()})
			if o.Options.FailEarly {
				cancel()
				return
			}
			continue
		}

		metrics.RecordJob(name, string(outcomeStatus(result.Status)), time.Since(jobStart))
		o.results.Set(net.ChainID, name, Outcome{
			Status:   outcomeStatus(result.Status),
			Reason:   result.Reason,
			Outputs:  result.Outputs,
			Warnings: result.Warnings,
		})
		if result.Status == engine.JobSuccess {
			completed[name] = true
		}
		if result.Status == engine.JobFailed && o.Options.FailEarly {
			cancel()
			return
		}
	}
}

// evmForkOrdinals orders EVM hard forks chronologically so fork names
// (which aren't semver themselves) can be compared with semver.Version.
// Unrecognized strings fall through to direct semver parsing, so an
// already-numeric evm_version/min_evm_version still works.
var evmForkOrdinals = map[string]int{
	"frontier":         0,
	"homestead":        1,
	"tangerinewhistle": 2,
	"spuriousdragon":   3,
	"byzantium":        4,
	"constantinople":   5,
	"petersburg":       6,
	"istanbul":         7,
	"muirglacier":      8,
	"berlin":           9,
	"london":           10,
	"arrowglacier":     11,
	"grayglacier":      12,
	"paris":            13,
	"shanghai":         14,
	"cancun":           15,
	"prague":           16,
}

// normalizeEVMVersion resolves a fork name or semver string to a
// comparable semver.Version.
func normalizeEVMVersion(raw string) (*semver.Version, error) {
	if ordinal, ok := evmForkOrdinals[strings.ToLower(raw)]; ok {
		return semver.NewVersion(fmt.Sprintf("%d.0.0", ordinal))
	}
	return semver.NewVersion(raw)
}

// unmetEVMVersion reports whether job declares a min_evm_version the
// network's evm_version doesn't satisfy.
func (o *Orchestrator) unmetEVMVersion(job model.Job, net model.Network) (string, bool) {
	if job.MinEVMVersion == "" || net.EVMVersion == "" {
		return "", false
	}
	required, err := normalizeEVMVersion(job.MinEVMVersion)
	if err != nil {
		return "", false
	}
	actual, err := normalizeEVMVersion(net.EVMVersion)
	if err != nil {
		return "", false
	}
	if actual.LessThan(required) {
		return fmt.Sprintf("network %s evm_version %s is below job's min_evm_version %s", net.Name, net.EVMVersion, job.MinEVMVersion), true
	}
	return "", false
}

func (o *Orchestrator) emit(kind eventbus.Kind, level eventbus.Level, data any) {
	if o.Bus == nil {
		return
	}
	o.Bus.Emit(kind, level, data)
}

func outcomeStatus(s engine.JobStatus) OutcomeStatus {
	switch s {
	case engine.JobSuccess:
		return OutcomeSuccess
	case engine.JobFailed:
		return OutcomeFailed
	default:
		return OutcomeSkipped
	}
}

func networkNames(networks []model.Network) []string {
	names := make([]string, len(networks))
	for i, n := range networks {
		names[i] = n.Name
	}
	return names
}

func summaryData(s RunSummary) map[string]any {
	return map[string]any{
		"success":      s.Success,
		"failed":       s.Failed,
		"skipped":      s.Skipped,
		"keyContracts": s.Key,
	}
}
