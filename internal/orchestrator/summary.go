package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/r3e-network/deployengine/internal/model"
	"github.com/tidwall/gjson"
)

// KeyContract is one (job, action, address) tuple surfaced in the
// run_summary event (spec.md §4.6).
type KeyContract struct {
	Job     string `json:"job"`
	Action  string `json:"action"`
	Address string `json:"address"`
}

// RunSummary is the payload of the run_summary event.
type RunSummary struct {
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Key     []KeyContract `json:"keyContracts"`
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// BuildRunSummary counts every (job, network) outcome and extracts up to
// 10 key-contract tuples in topological job order (spec.md §4.6). Each
// output value is probed for an `address` field with gjson rather than a
// fixed Go type switch, since outputs are producer-defined free-form JSON
// (spec.md §9 dynamic-JSON-pass-through design note).
func BuildRunSummary(plan []string, jobs map[string]model.Job, store *ResultStore, targets []model.Network) RunSummary {
	var summary RunSummary

	for _, name := range plan {
		for _, net := range targets {
			outcome, ok := store.Get(net.ChainID, name)
			if !ok {
				continue
			}
			switch outcome.Status {
			case OutcomeSuccess:
				summary.Success++
			case OutcomeFailed:
				summary.Failed++
			case OutcomeSkipped:
				summary.Skipped++
			}
		}
	}

loop:
	for _, name := range plan {
		job := jobs[name]
		for _, net := range targets {
			outcome, ok := store.Get(net.ChainID, name)
			if !ok || outcome.Status != OutcomeSuccess {
				continue
			}
			for _, action := range job.Actions {
				prefix := action.Name + "."
				for key, value := range outcome.Outputs {
					if !strings.HasPrefix(key, prefix) {
						continue
					}
					addr, found := extractAddress(value)
					if !found {
						continue
					}
					summary.Key = append(summary.Key, KeyContract{Job: name, Action: action.Name, Address: addr})
					if len(summary.Key) >= 10 {
						break loop
					}
				}
			}
			break // one network's outcome is enough to sample this job's contracts
		}
	}

	return summary
}

func extractAddress(value any) (string, bool) {
	if s, ok := value.(string); ok {
		if addressPattern.MatchString(s) {
			return s, true
		}
		return "", false
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", false
	}
	res := gjson.GetBytes(b, "address")
	if res.Exists() && addressPattern.MatchString(res.String()) {
		return res.String(), true
	}
	return "", false
}
