package engine

import (
	"context"
	"fmt"

	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/execctx"
	"github.com/r3e-network/deployengine/internal/metrics"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/r3e-network/deployengine/internal/resolver"
)

// ExecuteJob runs ec.Job to completion on ec.Network (spec.md §4.5 entry
// point executeJob). explicitlyTargeted marks whether the orchestrator's
// plan selection named this job directly, which governs the deprecated
// pre-check. It never returns a non-nil error for ordinary action/resolve
// failures — those come back as JobResult{Status: JobFailed}; a non-nil
// error return means condition evaluation itself could not run (a
// configuration problem the orchestrator should treat as fatal to this
// job/network pair).
func (e *Engine) ExecuteJob(ctx context.Context, ec *execctx.Context, explicitlyTargeted bool) (*JobResult, error) {
	result := &JobResult{Job: ec.Job.Name, Version: ec.Job.Version}
	scope := ec.Scope()

	skip, err := e.evaluateSkipCondition(ctx, ec.Job.SkipCondition, ec, scope)
	if err != nil {
		return nil, fmt.Errorf("job %q: skip_condition: %w", ec.Job.Name, err)
	}
	if skip {
		result.Status = JobSkipped
		result.Reason = "skip_condition"
		e.emit(eventbus.KindJobSkipped, ec, map[string]any{"reason": result.Reason})
		return result, nil
	}
	if ec.Job.Deprecated && !explicitlyTargeted {
		result.Status = JobSkipped
		result.Reason = "deprecated"
		e.emit(eventbus.KindJobDeprecatedSkipped, ec, nil)
		return result, nil
	}

	e.emit(eventbus.KindJobStarted, ec, nil)

	for _, action := range ec.Job.Actions {
		record := func(key string, value any) { ec.RecordOutput(action.Name, key, value) }
		actionResult, err := e.executeAction(ctx, action, ec, scope, record, true)
		result.Actions = append(result.Actions, actionResult)
		if err != nil {
			result.Status = JobFailed
			result.Reason = err.Error()
			result.Warnings = ec.VerificationWarnings
			e.emit(eventbus.KindJobFailed, ec, map[string]any{"error": err.Error(), "action": action.Name})
			return result, nil
		}
	}

	result.Status = JobSuccess
	result.Outputs = make(map[string]any, len(ec.JobOutputs))
	for k, v := range ec.JobOutputs {
		result.Outputs[k] = v
	}
	result.Warnings = ec.VerificationWarnings
	e.emit(eventbus.KindJobFinished, ec, nil)
	return result, nil
}

// executeAction runs one action (job-level or template-internal). record
// receives every produced output key/value pair; postCheck gates whether
// the action-loop's post-check skip_condition re-evaluation runs (job-level
// actions only, per spec.md §4.5 step 5).
func (e *Engine) executeAction(ctx context.Context, action model.Action, ec *execctx.Context, scope *resolver.Scope, record func(key string, value any), postCheck bool) (ActionResult, error) {
	skip, err := e.evaluateSkipCondition(ctx, action.SkipCondition, ec, scope)
	if err != nil {
		return ActionResult{Name: action.Name, Status: ActionFailed, Err: err}, fmt.Errorf("action %q: skip_condition: %w", action.Name, err)
	}
	if skip {
		e.emit(eventbus.KindActionSkipped, ec, map[string]any{"action": action.Name})
		return ActionResult{Name: action.Name, Status: ActionSkipped, Reason: "skip_condition"}, nil
	}

	e.emit(eventbus.KindActionStarted, ec, map[string]any{"action": action.Name})

	fields, err := e.resolveValues(ctx, action.Arguments, ec, scope)
	if err != nil {
		wrapped := fmt.Errorf("action %q: %w", action.Name, err)
		e.emit(eventbus.KindActionFailed, ec, map[string]any{"action": action.Name, "error": wrapped.Error()})
		return ActionResult{Name: action.Name, Status: ActionFailed, Err: wrapped}, wrapped
	}

	outputs, err := e.dispatch(ctx, action, ec, fields)
	actionKind := action.Type
	if action.Template != "" {
		actionKind = "template:" + action.Template
	}
	if err != nil {
		metrics.RecordAction(actionKind, "failed")
		wrapped := fmt.Errorf("action %q: %w", action.Name, err)
		e.emit(eventbus.KindActionFailed, ec, map[string]any{"action": action.Name, "error": wrapped.Error()})
		return ActionResult{Name: action.Name, Status: ActionFailed, Err: wrapped, Outputs: outputs}, wrapped
	}
	metrics.RecordAction(actionKind, "success")
	for k, v := range outputs {
		record(k, v)
	}

	result := ActionResult{Name: action.Name, Status: ActionSuccess, Outputs: outputs}

	if postCheck && !e.skipPostCheckConditions && len(action.SkipCondition) > 0 {
		stillTrue, err := e.evaluateSkipCondition(ctx, action.SkipCondition, ec, scope)
		if err != nil {
			result.Reason = fmt.Sprintf("post-check: %v", err)
		} else if !stillTrue {
			result.Reason = fmt.Sprintf("post-check: skip_condition still false after action %q ran", action.Name)
		}
	}

	e.emit(eventbus.KindActionSucceeded, ec, map[string]any{"action": action.Name})
	return result, nil
}

// dispatch resolves the template-vs-primitive decision for one action
// (spec.md §4.5 step 2 / executeTemplate step 4): an explicit `template`
// field always names a template call; otherwise `type` is looked up in
// the template map first, falling through to the primitive registry.
func (e *Engine) dispatch(ctx context.Context, action model.Action, ec *execctx.Context, fields map[string]any) (map[string]any, error) {
	templateName := action.Template
	if templateName == "" {
		if _, ok := e.templates[action.Type]; ok {
			templateName = action.Type
		}
	}

	if templateName != "" {
		tmpl, ok := e.templates[templateName]
		if !ok {
			return nil, fmt.Errorf("unknown template %q", templateName)
		}
		return e.executeTemplate(ctx, tmpl, fields, ec)
	}

	fn, ok := primitives[action.Type]
	if !ok {
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
	return fn(ctx, e, ec, fields)
}

// executeTemplate runs one template call against ec (spec.md §4.5
// executeTemplate). callArgs must already be resolved in the caller's
// scope. Setup actions and main actions each write into their own
// call-local output map: siblings within the same block (setup or main)
// see each other's outputs, but the two blocks are mutually invisible
// (spec.md §8 property 6), and neither leaks into the enclosing job.
func (e *Engine) executeTemplate(ctx context.Context, tmpl model.Template, callArgs map[string]any, ec *execctx.Context) (map[string]any, error) {
	newLocalOutputs := func() map[string]any {
		outputs := make(map[string]any, len(ec.JobOutputs))
		for k, v := range ec.JobOutputs {
			outputs[k] = v
		}
		return outputs
	}
	recordInto := func(outputs map[string]any, actionName string) func(string, any) {
		return func(k string, v any) { outputs[actionName+"."+k] = v }
	}

	// Setup actions write into their own sub-scope so their outputs are
	// invisible to the main actions' sibling scope (spec.md §8 property 6),
	// and vice versa: the main scope below is seeded fresh from ec, not
	// from setupOutputs.
	if tmpl.Setup != nil {
		setupOutputs := newLocalOutputs()
		setupScope := ec.Scope()
		setupScope.TemplateArguments = callArgs
		setupScope.JobOutputs = setupOutputs

		skipSetup, err := e.evaluateSkipCondition(ctx, tmpl.Setup.SkipCondition, ec, setupScope)
		if err != nil {
			return nil, fmt.Errorf("template %q: setup skip_condition: %w", tmpl.Name, err)
		}
		if !skipSetup {
			for _, action := range tmpl.Setup.Actions {
				if _, err := e.executeAction(ctx, action, ec, setupScope, recordInto(setupOutputs, action.Name), false); err != nil {
					return nil, fmt.Errorf("template %q: setup: %w", tmpl.Name, err)
				}
			}
		}
	}

	localOutputs := newLocalOutputs()
	callScope := ec.Scope()
	callScope.TemplateArguments = callArgs
	callScope.JobOutputs = localOutputs
	recordFor := func(actionName string) func(string, any) { return recordInto(localOutputs, actionName) }

	skipTemplate, err := e.evaluateSkipCondition(ctx, tmpl.SkipCondition, ec, callScope)
	if err != nil {
		return nil, fmt.Errorf("template %q: skip_condition: %w", tmpl.Name, err)
	}
	if skipTemplate {
		return map[string]any{}, nil
	}

	for _, action := range tmpl.Actions {
		if _, err := e.executeAction(ctx, action, ec, callScope, recordFor(action.Name), false); err != nil {
			return nil, fmt.Errorf("template %q: %w", tmpl.Name, err)
		}
	}

	outputs := make(map[string]any, len(tmpl.Outputs))
	for k, v := range tmpl.Outputs {
		resolved, err := ec.Resolver.Resolve(ctx, v, callScope)
		if err != nil {
			return nil, fmt.Errorf("template %q: output %q: %w", tmpl.Name, k, err)
		}
		outputs[k] = resolved
	}
	return outputs, nil
}

// resolveValues resolves every entry of a model.Value map against scope.
func (e *Engine) resolveValues(ctx context.Context, values map[string]model.Value, ec *execctx.Context, scope *resolver.Scope) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		resolved, err := ec.Resolver.Resolve(ctx, v, scope)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}
