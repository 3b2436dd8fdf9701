// Package resolver evaluates a model.Value to a concrete Go datum given
// the current execution scope: template-argument bindings, job and
// top-level constants, job/cross-job output scopes, and the contract
// repository and chain transport needed by I/O-suspending value producers
// (spec.md §4.4).
package resolver

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/model"
)

// Scope is the resolution context for one expression evaluation: which
// template (if any) is active, which job's constants and outputs are in
// play, and the read-only project-wide data every job shares.
type Scope struct {
	// TemplateArguments holds the currently-executing template's resolved
	// argument values (name -> already-evaluated Go datum), consulted
	// before job/top-level constants (spec.md §4.4 resolution order).
	TemplateArguments map[string]any

	JobConstants map[string]model.Value
	TopConstants map[string]model.Value

	// JobOutputs is keyed "<actionName>.<key>" for the currently executing
	// job. CrossJobOutputs is keyed "<depJob>.<actionName>.<key>" for jobs
	// named in the current job's depends_on.
	JobOutputs      map[string]any
	CrossJobOutputs map[string]any

	// DependsOn lists the current job's declared dependency names, used to
	// disambiguate a dotted path's leading segment between the job-local
	// output scope and the cross-job scope.
	DependsOn []string

	// DeployedAddresses maps a contract reference (any form Contracts.Lookup
	// accepts) to the address this job has deployed it at so far, backing
	// `Contract(ref).address` (spec.md §4.4: "address is only defined
	// inside a job output scope where the action produced one").
	DeployedAddresses map[string]common.Address

	Contracts *contracts.Repository
	Chain     *evmchain.Client

	// ContractContext is the innermost enclosing contract address for a
	// `call` value-producer's default `to` (spec.md §4.4).
	ContractContext *common.Address

	// SourcePath is the containing document's path, used to resolve
	// relative Contract references against dirname(SourcePath).
	SourcePath string
}

// Resolver evaluates model.Value instances against a Scope.
type Resolver struct{}

// New creates a Resolver. It holds no state; all context flows through
// the Scope passed to Resolve.
func New() *Resolver {
	return &Resolver{}
}

// Resolve evaluates v to a concrete Go value: a literal passes through
// unchanged, a `{{expr}}` string is evaluated as an expression, and a
// value-producer object is dispatched by its `type` discriminator
// (spec.md §4.4).
func (r *Resolver) Resolve(ctx context.Context, v model.Value, scope *Scope) (any, error) {
	if kind, fields, ok := v.IsProducer(); ok {
		return r.resolveProducer(ctx, kind, fields, scope)
	}
	if expr, ok := v.IsReference(); ok {
		return r.evalExpression(ctx, expr, scope)
	}
	return v.Raw, nil
}

// resolveAny wraps a raw (already YAML/JSON-normalized) value as a Value
// and resolves it, for use on value-producer field values that may
// themselves be references or nested producers.
func (r *Resolver) resolveAny(ctx context.Context, raw any, scope *Scope) (any, error) {
	return r.Resolve(ctx, model.Value{Raw: raw}, scope)
}
