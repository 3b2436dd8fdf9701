package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/r3e-network/deployengine/internal/apperrors"
)

var (
	contractFieldPattern = regexp.MustCompile(`^Contract\((.+)\)\.([A-Za-z_][A-Za-z0-9_]*)$`)
	contractPattern      = regexp.MustCompile(`^Contract\((.+)\)$`)
	contractFuncPattern  = regexp.MustCompile(`^(creationCode|initCode|abi)\((.+)\)$`)
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	dottedPathPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){1,2}$`)
)

// evalExpression evaluates the text inside a `{{ }}` sentinel per the
// grammar in spec.md §4.4.
func (r *Resolver) evalExpression(ctx context.Context, expr string, scope *Scope) (any, error) {
	expr = strings.TrimSpace(expr)

	if m := contractFieldPattern.FindStringSubmatch(expr); m != nil {
		return r.resolveContractField(strings.TrimSpace(m[1]), m[2], scope)
	}
	if m := contractPattern.FindStringSubmatch(expr); m != nil {
		c, err := scope.Contracts.Lookup(strings.TrimSpace(m[1]), scope.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", expr, err)
		}
		return c, nil
	}
	if m := contractFuncPattern.FindStringSubmatch(expr); m != nil {
		field := map[string]string{"creationCode": "creationCode", "initCode": "creationCode", "abi": "abi"}[m[1]]
		return r.resolveContractField(strings.TrimSpace(m[2]), field, scope)
	}
	if identifierPattern.MatchString(expr) {
		return r.resolveIdentifier(ctx, expr, scope)
	}
	if dottedPathPattern.MatchString(expr) {
		return r.resolveDottedPath(expr, scope)
	}

	return nil, fmt.Errorf("resolve %q: unrecognized expression form", expr)
}

func (r *Resolver) resolveContractField(ref, field string, scope *Scope) (any, error) {
	c, err := scope.Contracts.Lookup(ref, scope.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolve Contract(%s).%s: %w", ref, field, err)
	}
	switch field {
	case "creationCode":
		return c.CreationCode, nil
	case "abi":
		// ABI is kept as opaque JSON pass-through (spec.md §9): callers that
		// need structured access (verification submission) re-parse it
		// themselves rather than the resolver imposing a schema here.
		return c.ABI, nil
	case "address":
		addr, ok := scope.DeployedAddresses[ref]
		if !ok {
			addr, ok = scope.DeployedAddresses[c.UniqueHash]
		}
		if !ok {
			return nil, fmt.Errorf("resolve Contract(%s).address: not yet deployed in this job", ref)
		}
		return addr, nil
	default:
		return nil, fmt.Errorf("resolve Contract(%s).%s: unknown field", ref, field)
	}
}

// resolveIdentifier resolves a bare name through the precedence order in
// spec.md §4.4: template arguments, then job constants, then top-level
// constants.
func (r *Resolver) resolveIdentifier(ctx context.Context, name string, scope *Scope) (any, error) {
	if scope.TemplateArguments != nil {
		if v, ok := scope.TemplateArguments[name]; ok {
			return v, nil
		}
	}
	if v, ok := scope.JobConstants[name]; ok {
		return r.Resolve(ctx, v, scope)
	}
	if v, ok := scope.TopConstants[name]; ok {
		return r.Resolve(ctx, v, scope)
	}
	return nil, fmt.Errorf("resolve %q: %w", name, apperrors.UnknownIdentifier(name))
}

// resolveDottedPath resolves `a.b` or `a.b.c` against the job-scoped
// output map, or the cross-job scope when `a` names a declared
// dependency (spec.md §4.4).
func (r *Resolver) resolveDottedPath(path string, scope *Scope) (any, error) {
	parts := strings.SplitN(path, ".", 2)
	head := parts[0]

	for _, dep := range scope.DependsOn {
		if dep == head {
			if v, ok := scope.CrossJobOutputs[path]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("resolve %q: %w", path, apperrors.ScopeMiss(path))
		}
	}

	if v, ok := scope.JobOutputs[path]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("resolve %q: %w", path, apperrors.ScopeMiss(path))
}
