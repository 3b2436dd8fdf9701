package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/r3e-network/deployengine/internal/model"
)

// OutcomeStatus is the terminal state of one (job, network) execution as
// recorded in the result store.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomePlanned OutcomeStatus = "planned" // --dry-run: would have run, did not
)

// Outcome is one job's result on one network.
type Outcome struct {
	Status   OutcomeStatus
	Reason   string
	Outputs  map[string]any
	Warnings []string
}

// ResultStore is the orchestrator's sole write-shared structure: results
// are sharded per chain ID so concurrent per-network workers never
// contend on each other's keys, merged under one mutex at write time
// (spec.md §5 "coarse locking or per-job sharding").
type ResultStore struct {
	mu        sync.Mutex
	byNetwork map[uint64]map[string]Outcome
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{byNetwork: make(map[uint64]map[string]Outcome)}
}

// Set records job's outcome on the network identified by chainID.
func (s *ResultStore) Set(chainID uint64, job string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, ok := s.byNetwork[chainID]
	if !ok {
		jobs = make(map[string]Outcome)
		s.byNetwork[chainID] = jobs
	}
	jobs[job] = outcome
}

// Get returns job's recorded outcome on chainID, if any.
func (s *ResultStore) Get(chainID uint64, job string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.byNetwork[chainID][job]
	return outcome, ok
}

// splitOutputKey splits an "<action>.<subkey>" output key at its first
// dot.
func splitOutputKey(key string) (action, sub string, ok bool) {
	idx := strings.Index(key, ".")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// filterOutputs applies each action's `output` spec (spec.md §3) to a
// job's recorded output map: actions with no `output` field (or
// `output: true`) expose everything they produced; actions with an
// explicit field map expose only the selected/renamed subset; an action
// declared with an empty field map is hidden entirely.
func filterOutputs(outputs map[string]any, job model.Job) map[string]any {
	specs := make(map[string]*model.OutputSpec, len(job.Actions))
	anyFilter := false
	for _, a := range job.Actions {
		if a.Output != nil {
			specs[a.Name] = a.Output
			if !a.Output.All {
				anyFilter = true
			}
		}
	}
	if !anyFilter {
		return outputs
	}

	filtered := make(map[string]any, len(outputs))
	for key, value := range outputs {
		actionName, subKey, ok := splitOutputKey(key)
		if !ok {
			filtered[key] = value
			continue
		}
		spec, has := specs[actionName]
		if !has || spec.All {
			filtered[key] = value
			continue
		}
		if spec.Fields == nil {
			continue
		}
		for destKey, srcVal := range spec.Fields {
			srcKey, isStr := srcVal.Raw.(string)
			if isStr && srcKey == subKey {
				filtered[actionName+"."+destKey] = value
			}
		}
	}
	return filtered
}

// canonicalJSON serializes v with sorted map keys so two structurally
// identical output maps produce identical bytes regardless of map
// iteration order (spec.md §4.6 grouping rule).
func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

type successGroup struct {
	outputs  map[string]any
	chainIDs []uint64
}

// WriteResults renders every planned job's per-network results to disk
// under <projectRoot>/output (spec.md §4.6 Result writing / Grouping
// rule). Jobs with no recorded outcome on any target network (e.g.
// filtered out entirely by only_networks/skip_networks) produce no file.
func WriteResults(projectRoot string, flatOutput bool, plan []string, jobs map[string]model.Job, store *ResultStore, targets []model.Network, lastRun time.Time) error {
	for _, name := range plan {
		job := jobs[name]

		groups := make(map[string]*successGroup)
		var groupOrder []string
		var errorEntries []map[string]any
		haveAny := false

		for _, net := range targets {
			outcome, ok := store.Get(net.ChainID, name)
			if !ok {
				continue
			}
			switch outcome.Status {
			case OutcomeSuccess:
				haveAny = true
				filtered := filterOutputs(outcome.Outputs, job)
				key := canonicalJSON(filtered)
				g, exists := groups[key]
				if !exists {
					g = &successGroup{outputs: filtered}
					groups[key] = g
					groupOrder = append(groupOrder, key)
				}
				g.chainIDs = append(g.chainIDs, net.ChainID)
			case OutcomeFailed:
				haveAny = true
				errorEntries = append(errorEntries, map[string]any{
					"status":  "error",
					"chainId": strconv.FormatUint(net.ChainID, 10),
					"error":   outcome.Reason,
				})
			}
		}

		if !haveAny {
			continue
		}

		var networkEntries []map[string]any
		for _, key := range groupOrder {
			g := groups[key]
			sort.Slice(g.chainIDs, func(i, j int) bool { return g.chainIDs[i] < g.chainIDs[j] })
			ids := make([]string, len(g.chainIDs))
			for i, id := range g.chainIDs {
				ids[i] = strconv.FormatUint(id, 10)
			}
			networkEntries = append(networkEntries, map[string]any{
				"status":   "success",
				"chainIds": ids,
				"outputs":  g.outputs,
			})
		}
		networkEntries = append(networkEntries, errorEntries...)

		doc := map[string]any{
			"jobName":    job.Name,
			"jobVersion": job.Version,
			"lastRun":    lastRun.UTC().Format(time.RFC3339),
			"networks":   networkEntries,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("job %q: marshal result: %w", name, err)
		}

		relPath := outputPathFor(projectRoot, job, flatOutput)
		fullPath := filepath.Join(projectRoot, "output", relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return fmt.Errorf("job %q: create output dir: %w", name, err)
		}
		if err := os.WriteFile(fullPath, data, 0o644); err != nil {
			return fmt.Errorf("job %q: write result: %w", name, err)
		}
	}
	return nil
}

// outputPathFor mirrors job's position under jobs/ (extension replaced
// with .json), falling back to a flat "<jobName>.json" when flatOutput is
// set or the job's source path doesn't live under jobs/ (spec.md §4.6).
func outputPathFor(projectRoot string, job model.Job, flatOutput bool) string {
	if flatOutput || job.SourcePath == "" {
		return job.Name + ".json"
	}
	rel, err := filepath.Rel(filepath.Join(projectRoot, "jobs"), job.SourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return job.Name + ".json"
	}
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + ".json"
}
