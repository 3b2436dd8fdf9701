package engine

import (
	"context"
	"fmt"

	"github.com/r3e-network/deployengine/internal/evmchain"
	"github.com/r3e-network/deployengine/internal/execctx"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/r3e-network/deployengine/internal/resolver"
)

// evaluateSkipCondition reports whether every condition in conds evaluates
// true — an empty list never skips (spec.md §4.5 pre-check / action loop).
func (e *Engine) evaluateSkipCondition(ctx context.Context, conds []model.Condition, ec *execctx.Context, scope *resolver.Scope) (bool, error) {
	if len(conds) == 0 {
		return false, nil
	}
	for _, cond := range conds {
		ok, err := e.evaluateCondition(ctx, cond, ec, scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) evaluateCondition(ctx context.Context, cond model.Condition, ec *execctx.Context, scope *resolver.Scope) (bool, error) {
	switch cond.Kind {
	case model.ConditionContractExists:
		v, err := ec.Resolver.Resolve(ctx, cond.Address, scope)
		if err != nil {
			return false, fmt.Errorf("contract-exists condition: %w", err)
		}
		addrStr, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("contract-exists condition: address must resolve to a string, got %T", v)
		}
		addr, err := evmchain.NormalizeAddress(addrStr)
		if err != nil {
			return false, fmt.Errorf("contract-exists condition: %w", err)
		}
		return ec.Chain.ContractExists(ctx, addr)

	case model.ConditionJobCompleted:
		return ec.CompletedJobs[cond.Job], nil

	default: // model.ConditionGeneric
		v, err := ec.Resolver.Resolve(ctx, cond.Expr, scope)
		if err != nil {
			return false, fmt.Errorf("condition: %w", err)
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("condition: expression did not resolve to a boolean, got %T", v)
		}
		return b, nil
	}
}
