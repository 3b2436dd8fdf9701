package orchestrator

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/r3e-network/deployengine/internal/depgraph"
	"github.com/r3e-network/deployengine/internal/model"
)

var allDigits = regexp.MustCompile(`^[0-9]+$`)

// SelectJobs resolves the user's job selectors against fullOrder (spec.md
// §4.6 getJobExecutionPlan). With no selectors, the plan is the full
// topological order minus deprecated jobs (unless runDeprecated opts them
// back in). With selectors, each is matched literally or as a glob (if it
// contains '*'/'?'); every matched job is pulled in along with the
// transitive closure of its dependencies, preserving fullOrder's order.
//
// The returned explicit set marks which job names were matched directly
// by a selector (or, in the no-selector case, opted in via runDeprecated)
// — this is the "explicitly targeted" input to the engine's deprecated
// pre-check (spec.md §4.5). A deprecated job pulled in only as someone
// else's transitive dependency is also marked explicit: otherwise the
// engine would skip it and the job that depends on it would never see
// its outputs, defeating the point of including it at all.
func SelectJobs(fullOrder []string, selectors []string, jobs map[string]model.Job, graph *depgraph.Graph, runDeprecated bool) ([]string, map[string]bool, error) {
	explicit := make(map[string]bool)

	if len(selectors) == 0 {
		plan := make([]string, 0, len(fullOrder))
		for _, name := range fullOrder {
			job := jobs[name]
			if job.Deprecated && !runDeprecated {
				continue
			}
			plan = append(plan, name)
			if job.Deprecated {
				explicit[name] = true
			}
		}
		return plan, explicit, nil
	}

	included := make(map[string]bool)
	for _, selector := range selectors {
		isGlob := strings.ContainsAny(selector, "*?")
		matched := false
		for _, name := range fullOrder {
			var ok bool
			if isGlob {
				var err error
				ok, err = path.Match(selector, name)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid job selector %q: %w", selector, err)
				}
			} else {
				ok = name == selector
			}
			if ok {
				matched = true
				included[name] = true
				explicit[name] = true
			}
		}
		if !matched {
			return nil, nil, fmt.Errorf("job selector %q matched no jobs", selector)
		}
	}

	queue := make([]string, 0, len(included))
	for name := range included {
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range graph.DependenciesOf(name) {
			if !included[dep] {
				included[dep] = true
				queue = append(queue, dep)
			}
			if jobs[dep].Deprecated {
				explicit[dep] = true
			}
		}
	}

	plan := make([]string, 0, len(included))
	for _, name := range fullOrder {
		if included[name] {
			plan = append(plan, name)
		}
	}
	return plan, explicit, nil
}

// ResolveNetworks resolves the user's network selectors against the
// configured network list (spec.md §4.6 getTargetNetworks). Digit tokens
// match chainId; other tokens match network name case-insensitively and
// may expand to multiple networks. Duplicate chain IDs are deduped,
// selector order is preserved. An unresolved id token produces a warning,
// not a fatal error; an unresolved name token is fatal.
func ResolveNetworks(networks []model.Network, selectors []string) ([]model.Network, []string, error) {
	if len(selectors) == 0 {
		return networks, nil, nil
	}

	var targets []model.Network
	var warnings []string
	seen := make(map[uint64]bool)

	for _, selector := range selectors {
		if allDigits.MatchString(selector) {
			id, err := strconv.ParseUint(selector, 10, 64)
			if err != nil {
				return nil, warnings, fmt.Errorf("invalid chain id %q: %w", selector, err)
			}
			found := false
			for _, n := range networks {
				if n.ChainID == id {
					found = true
					if !seen[n.ChainID] {
						seen[n.ChainID] = true
						targets = append(targets, n)
					}
				}
			}
			if !found {
				warnings = append(warnings, fmt.Sprintf("unresolved network id %q", selector))
			}
			continue
		}

		found := false
		for _, n := range networks {
			if strings.EqualFold(n.Name, selector) {
				found = true
				if !seen[n.ChainID] {
					seen[n.ChainID] = true
					targets = append(targets, n)
				}
			}
		}
		if !found {
			return nil, warnings, fmt.Errorf("unresolved network name %q", selector)
		}
	}

	return targets, warnings, nil
}
