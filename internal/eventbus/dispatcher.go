// Package events provides the run-lifecycle event bus. It connects the
// execution engine and orchestrator to any number of sinks (console
// reporters, file writers, metrics) by emitting a closed set of typed
// events synchronously, in emission order.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/r3e-network/deployengine/pkg/logger"
)

// Level is the severity of an emitted event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Kind identifies one of the closed set of lifecycle event types.
type Kind string

// Run lifecycle.
const (
	KindRunStarted         Kind = "run_started"
	KindRunPlanResolved    Kind = "run_plan_resolved"
	KindRunFinished        Kind = "run_finished"
	KindRunSummary         Kind = "run_summary"
	KindDeploymentFailed   Kind = "deployment_failed"
	KindVerificationReport Kind = "verification_warnings_report"
)

// Job lifecycle.
const (
	KindJobStarted           Kind = "job_started"
	KindJobFinished          Kind = "job_finished"
	KindJobFailed            Kind = "job_failed"
	KindJobSkipped           Kind = "job_skipped"
	KindJobDependencyFailed  Kind = "job_dependency_failed"
	KindJobDeprecatedSkipped Kind = "job_deprecated_skipped"
)

// Action lifecycle.
const (
	KindActionStarted   Kind = "action_started"
	KindActionSucceeded Kind = "action_succeeded"
	KindActionFailed    Kind = "action_failed"
	KindActionSkipped   Kind = "action_skipped"
	KindActionRetrying  Kind = "action_retrying"
	KindTemplateEntered Kind = "template_entered"
	KindTemplateExited  Kind = "template_exited"
)

// Transaction lifecycle.
const (
	KindTransactionSent        Kind = "transaction_sent"
	KindTransactionConfirmed   Kind = "transaction_confirmed"
	KindTransactionReverted    Kind = "transaction_reverted"
	KindContractDeployed       Kind = "contract_deployed"
	KindContractAlreadyPresent Kind = "contract_already_deployed"
)

// Verification lifecycle.
const (
	KindVerificationStarted   Kind = "verification_started"
	KindVerificationSucceeded Kind = "verification_succeeded"
	KindVerificationSkipped   Kind = "verification_skipped"
	KindVerificationRetrying  Kind = "verification_retrying"
	KindVerificationFailed    Kind = "verification_failed"
)

// Resolver / config lifecycle.
const (
	KindConstantResolved        Kind = "constant_resolved"
	KindReferenceAmbiguous      Kind = "reference_ambiguous"
	KindDuplicateArtifactWarning Kind = "duplicate_artifact_warning"
	KindExpressionResolved      Kind = "expression_resolved"
	KindConfigLoaded            Kind = "config_loaded"
	KindConfigWarning           Kind = "config_warning"
)

// Resource / transport lifecycle.
const (
	KindTransportOpened  Kind = "transport_opened"
	KindTransportClosed  Kind = "transport_closed"
	KindTransportWarning Kind = "transport_warning"
	KindRPCCallFailed    Kind = "rpc_call_failed"
)

// Network fan-out lifecycle.
const (
	KindNetworkStarted  Kind = "network_started"
	KindNetworkFinished Kind = "network_finished"
	KindNetworkSkipped  Kind = "network_skipped"
)

// Output lifecycle.
const (
	KindOutputWritten     Kind = "output_written"
	KindOutputWriteFailed Kind = "output_write_failed"
)

// Event is an immutable record emitted onto the bus. Data's concrete shape
// is fixed per Kind but kept as `any` here so sinks that only care about a
// handful of kinds don't need to import every payload type.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Listener receives events synchronously as they are emitted.
type Listener func(Event)

// registration pairs a listener with the kind it watches, or "" for a
// global listener that receives every event.
type registration struct {
	id       string
	kind     Kind // empty means "all kinds"
	listener Listener
}

// Bus is the process-wide (or scoped, if constructed per run) dispatcher
// for lifecycle events. Delivery is synchronous and in emission order; a
// panicking listener is isolated and logged, never halting emission.
type Bus struct {
	mu            sync.RWMutex
	registrations []registration
	log           *logger.Logger
}

// New creates an empty Bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	return &Bus{log: log}
}

// Subscribe registers listener for every event of kind. Returns an ID that
// can be passed to Unsubscribe.
func (b *Bus) Subscribe(kind Kind, listener Listener) string {
	return b.register(kind, listener)
}

// SubscribeAll registers a global listener that receives every event
// regardless of kind.
func (b *Bus) SubscribeAll(listener Listener) string {
	return b.register("", listener)
}

func (b *Bus) register(kind Kind, listener Listener) string {
	id := ksuid.New().String()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations = append(b.registrations, registration{id: id, kind: kind, listener: listener})
	return id
}

// Unsubscribe removes a previously registered listener by ID.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, reg := range b.registrations {
		if reg.id == id {
			b.registrations = append(b.registrations[:i], b.registrations[i+1:]...)
			return
		}
	}
}

// Emit delivers an event of the given kind/level/data to every matching
// listener, in emission order, synchronously.
func (b *Bus) Emit(kind Kind, level Level, data any) Event {
	event := Event{
		ID:        ksuid.New().String(),
		Kind:      kind,
		Level:     level,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	regs := make([]registration, len(b.registrations))
	copy(regs, b.registrations)
	b.mu.RUnlock()

	for _, reg := range regs {
		if reg.kind != "" && reg.kind != kind {
			continue
		}
		b.deliver(reg, event)
	}

	return event
}

// deliver invokes a single listener, recovering from and logging any
// panic so one misbehaving sink can never interrupt emission.
func (b *Bus) deliver(reg registration, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(map[string]interface{}{
				"listener_id": reg.id,
				"event_type":  string(event.Kind),
			}).Error(fmt.Sprintf("event listener panicked: %v", r))
		}
	}()
	reg.listener(event)
}

// ListenerCount returns the number of currently registered listeners,
// global and per-kind combined.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.registrations)
}
