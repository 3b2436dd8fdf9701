// Package depgraph builds the job dependency graph from explicit
// depends_on edges and transitive template-setup job-completed conditions,
// and computes a deterministic topological execution order (spec.md §4.3).
package depgraph

import (
	"fmt"
	"sort"

	apperrors "github.com/r3e-network/deployengine/internal/apperrors"
	"github.com/r3e-network/deployengine/internal/model"
)

// Graph is the resolved job dependency DAG: for every job, the set of
// jobs it directly depends on.
type Graph struct {
	jobNames []string // stable order, sorted, for deterministic iteration
	deps     map[string]map[string]struct{}
}

// Build computes direct dependencies for every job (explicit depends_on
// plus transitive template-setup job-completed conditions) and validates
// that every referenced job and template exists.
func Build(jobs map[string]model.Job, templates map[string]model.Template) (*Graph, error) {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	templateMemo := make(map[string]map[string]struct{})
	deps := make(map[string]map[string]struct{}, len(jobs))

	for _, name := range names {
		job := jobs[name]
		jobDeps, err := directDependencies(job, templates, templateMemo)
		if err != nil {
			return nil, err
		}
		deps[name] = jobDeps
	}

	for name, jobDeps := range deps {
		for dep := range jobDeps {
			if _, ok := jobs[dep]; !ok {
				return nil, apperrors.UnknownJob(name, dep)
			}
		}
	}

	g := &Graph{jobNames: names, deps: deps}
	if cyclePath, ok := g.findCycle(); ok {
		return nil, apperrors.DependencyCycle(cyclePath)
	}
	return g, nil
}

// directDependencies computes a job's immediate dependency set: its
// explicit depends_on list, union the transitive closure of job-completed
// conditions reachable from every template it calls (spec.md §4.3).
func directDependencies(job model.Job, templates map[string]model.Template, memo map[string]map[string]struct{}) (map[string]struct{}, error) {
	deps := make(map[string]struct{})
	for _, d := range job.DependsOn {
		deps[d] = struct{}{}
	}

	for _, a := range job.Actions {
		if !a.IsTemplateCall() {
			continue
		}
		if _, ok := templates[a.Template]; !ok {
			return nil, apperrors.UnknownTemplate(job.Name+"."+a.Name, a.Template)
		}
		visiting := make(map[string]bool)
		templateDeps, err := templateJobDeps(a.Template, templates, memo, visiting)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
		for d := range templateDeps {
			deps[d] = struct{}{}
		}
	}
	return deps, nil
}

// templateJobDeps collects every job-completed condition's target job name
// reachable from template name's setup block, recursing through setup
// actions that themselves invoke templates. Memoized per template name;
// visiting guards against a template-setup invocation cycle (a distinct
// failure mode from the job-level cycle this package otherwise reports).
func templateJobDeps(name string, templates map[string]model.Template, memo map[string]map[string]struct{}, visiting map[string]bool) (map[string]struct{}, error) {
	if cached, ok := memo[name]; ok {
		return cached, nil
	}
	if visiting[name] {
		return map[string]struct{}{}, nil
	}
	visiting[name] = true
	defer delete(visiting, name)

	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}

	deps := make(map[string]struct{})
	collect := func(conds []model.Condition) {
		for _, c := range conds {
			if c.Kind == model.ConditionJobCompleted && c.Job != "" {
				deps[c.Job] = struct{}{}
			}
		}
	}

	if t.Setup != nil {
		collect(t.Setup.SkipCondition)
		for _, a := range t.Setup.Actions {
			collect(a.SkipCondition)
			if a.IsTemplateCall() {
				nested, err := templateJobDeps(a.Template, templates, memo, visiting)
				if err != nil {
					return nil, err
				}
				for d := range nested {
					deps[d] = struct{}{}
				}
			}
		}
	}

	memo[name] = deps
	return deps, nil
}

// DependenciesOf returns the direct dependency set of job (empty slice if
// none or job is unknown).
func (g *Graph) DependenciesOf(job string) []string {
	set := g.deps[job]
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// findCycle runs DFS-with-stack over the graph; on finding a back-edge it
// reconstructs the cycle path for the error message (spec.md §4.3).
func (g *Graph) findCycle() (path []string, found bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.jobNames))
	var stack []string

	var visit func(node string) ([]string, bool)
	visit = func(node string) ([]string, bool) {
		color[node] = gray
		stack = append(stack, node)

		deps := g.DependenciesOf(node)
		for _, dep := range deps {
			switch color[dep] {
			case white:
				if cyclePath, ok := visit(dep); ok {
					return cyclePath, true
				}
			case gray:
				// Found the back-edge: slice the stack from dep's first
				// occurrence through node, then close the loop back to dep.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cyclePath := append([]string{}, stack[start:]...)
				cyclePath = append(cyclePath, dep)
				return cyclePath, true
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
		return nil, false
	}

	for _, name := range g.jobNames {
		if color[name] == white {
			if cyclePath, ok := visit(name); ok {
				return cyclePath, true
			}
		}
	}
	return nil, false
}

// TopoOrder computes a total order compatible with the DAG using Kahn's
// algorithm, with ties broken by stable (sorted) iteration over job names
// (spec.md §4.3).
func (g *Graph) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.jobNames))
	dependents := make(map[string][]string, len(g.jobNames))
	for _, name := range g.jobNames {
		indegree[name] = len(g.deps[name])
	}
	for _, name := range g.jobNames {
		for dep := range g.deps[name] {
			dependents[dep] = append(dependents[dep], name)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	var ready []string
	for _, name := range g.jobNames {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
		sort.Strings(ready)
	}

	if len(order) != len(g.jobNames) {
		return nil, fmt.Errorf("dependency graph has a cycle not caught during Build")
	}
	return order, nil
}
