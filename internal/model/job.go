package model

import "gopkg.in/yaml.v3"

// OutputSpec captures a JobAction/Action's `output` field: either a bare
// `true` (expose every produced key) or a map selecting/renaming a subset
// (spec.md §3).
type OutputSpec struct {
	All    bool
	Fields map[string]Value
}

// UnmarshalYAML accepts either a boolean scalar or a mapping.
func (o *OutputSpec) UnmarshalYAML(node *yaml.Node) error {
	var asBool bool
	if err := node.Decode(&asBool); err == nil {
		o.All = asBool
		return nil
	}

	var asMap map[string]Value
	if err := node.Decode(&asMap); err != nil {
		return err
	}
	o.Fields = asMap
	return nil
}

// Action is one step inside a job or template (spec.md §3). The same
// shape serves both job-level actions and template-internal actions; only
// name-uniqueness (enforced by the document parser) differs between them.
type Action struct {
	Name          string            `yaml:"name"`
	Template      string            `yaml:"template"` // set when this action invokes a template by name
	Type          string            `yaml:"type"`      // primitive kind, or (template-internal) nested template name
	Arguments     map[string]Value  `yaml:"arguments"`
	SkipCondition []Condition       `yaml:"skip_condition"`
	DependsOn     []string          `yaml:"depends_on"` // intra-job sibling dependency
	Output        *OutputSpec       `yaml:"output"`
}

// IsTemplateCall reports whether this action names a template rather than
// dispatching a built-in primitive. Job-level actions use the `template`
// field explicitly; template-internal actions overload `type` and are
// disambiguated by the caller consulting the template map.
func (a Action) IsTemplateCall() bool {
	return a.Template != ""
}

// TemplateSetup is a template's optional setup block: actions that run
// before the template's main actions, whose dependency-introducing
// `job-completed` conditions also end up as edges in the job graph
// (spec.md §4.3).
type TemplateSetup struct {
	SkipCondition []Condition `yaml:"skip_condition"`
	Actions       []Action    `yaml:"actions"`
}

// Template is a reusable sub-plan with declared arguments, optional
// setup, actions, and outputs (spec.md §3).
type Template struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Arguments     map[string]string `yaml:"arguments"` // name -> type tag
	Returns       map[string]string `yaml:"returns"`
	Setup         *TemplateSetup    `yaml:"setup"`
	Actions       []Action          `yaml:"actions"`
	SkipCondition []Condition       `yaml:"skip_condition"`
	Outputs       map[string]Value  `yaml:"outputs"`
	SourcePath    string            `yaml:"-"`
}

// Job is a top-level user-authored deployment unit (spec.md §3).
type Job struct {
	Name          string            `yaml:"name"`
	Version       string            `yaml:"version"`
	Description   string            `yaml:"description"`
	DependsOn     []string          `yaml:"depends_on"`
	Actions       []Action          `yaml:"actions"`
	OnlyNetworks  []uint64          `yaml:"only_networks"`
	SkipNetworks  []uint64          `yaml:"skip_networks"`
	SkipCondition []Condition       `yaml:"skip_condition"`
	Constants     map[string]Value  `yaml:"constants"`
	Deprecated    bool              `yaml:"deprecated"`
	MinEVMVersion string            `yaml:"min_evm_version"`
	SourcePath    string            `yaml:"-"`
}

// AppliesToNetwork reports whether this job is eligible to run on a
// network with the given chain ID, per the only_networks/skip_networks
// filters (spec.md §4.6).
func (j Job) AppliesToNetwork(chainID uint64) bool {
	if len(j.OnlyNetworks) > 0 {
		found := false
		for _, id := range j.OnlyNetworks {
			if id == chainID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, id := range j.SkipNetworks {
		if id == chainID {
			return false
		}
	}
	return true
}

// Network is a configured deployment target (spec.md §3).
type Network struct {
	Name       string   `yaml:"name"`
	ChainID    uint64   `yaml:"chain_id"`
	RPCURL     string   `yaml:"rpc_url"`
	Supports   []string `yaml:"supports"`
	GasLimit   uint64   `yaml:"gas_limit"`
	Testnet    bool     `yaml:"testnet"`
	EVMVersion string   `yaml:"evm_version"`
}
