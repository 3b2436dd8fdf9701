// Package engine executes one job's actions against one ExecutionContext
// (spec.md §4.5): skip-condition gating, template-vs-primitive dispatch,
// output propagation, and the event emissions that drive every sink
// subscribed to the run's event bus.
package engine

import (
	"context"
	"fmt"

	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/execctx"
	"github.com/r3e-network/deployengine/internal/model"
	"github.com/r3e-network/deployengine/internal/resolver"
)

// Config controls run-wide engine behavior set from CLI flags
// (spec.md §6).
type Config struct {
	Templates map[string]model.Template

	// IgnoreVerifyErrors downgrades a verify primitive's failure to a
	// recorded warning instead of failing its action.
	IgnoreVerifyErrors bool

	// SkipPostCheckConditions disables the action-loop post-check
	// re-evaluation of skip_condition (--no-post-check-conditions).
	SkipPostCheckConditions bool
}

// Engine runs jobs. One Engine is shared across every (job, network) pair
// in a run; all per-execution state lives in execctx.Context instead.
type Engine struct {
	templates map[string]model.Template

	// IgnoreVerifyErrors downgrades the verify primitive's submission or
	// polling failure to a recorded warning instead of failing its action.
	IgnoreVerifyErrors bool

	skipPostCheckConditions bool
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	templates := cfg.Templates
	if templates == nil {
		templates = map[string]model.Template{}
	}
	return &Engine{
		templates:               templates,
		IgnoreVerifyErrors:      cfg.IgnoreVerifyErrors,
		skipPostCheckConditions: cfg.SkipPostCheckConditions,
	}
}

// emit publishes an event tagged with the job/network this Engine call is
// currently executing for, merging that identity into data.
func (e *Engine) emit(kind eventbus.Kind, ec *execctx.Context, data map[string]any) {
	if ec.Bus == nil {
		return
	}
	tagged := make(map[string]any, len(data)+2)
	for k, v := range data {
		tagged[k] = v
	}
	tagged["job"] = ec.Job.Name
	tagged["network"] = ec.Network.Name
	ec.Bus.Emit(kind, eventbus.LevelInfo, tagged)
}
