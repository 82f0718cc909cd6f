// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/telemetry"
)

// Capability declares what kind of effect a modifier has. Capabilities
// replace subclass-hierarchy checks: ApplyStructure, for example, runs
// only for modifiers declaring CapabilityStructural.
type Capability string

const (
	// CapabilityScheduled marks modifiers gated by a start/end window.
	CapabilityScheduled Capability = "scheduled"

	// CapabilityFrequencyGated marks modifiers that re-trigger on an
	// update frequency inside their window.
	CapabilityFrequencyGated Capability = "frequency-gated"

	// CapabilityStructural marks modifiers that change model structure
	// (topology, layer shapes) rather than just weight values.
	CapabilityStructural Capability = "structural"
)

// Strategy extension points. A concrete modifier implements whichever
// of these its behavior needs and passes itself via WithStrategy; the
// state machine is the only caller of these methods.

// Updater receives the gated update calls dispatched by
// ScheduledUpdate.
type Updater interface {
	OnUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error
}

// LogUpdater receives the cadence-gated log calls dispatched by
// ScheduledLogUpdate.
type LogUpdater interface {
	OnLogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error
}

// LossUpdater transforms the loss every step, independent of the
// schedule window.
type LossUpdater interface {
	OnLossUpdate(loss any, target, optimizer any, epoch float64, stepsPerEpoch int) (any, error)
}

// Initializer runs custom setup during Initialize, after the lifecycle
// state flips but before Initialize returns.
type Initializer interface {
	OnInitialize(target any, epoch float64) error
}

// Finalizer runs custom teardown during Finalize.
type Finalizer interface {
	OnFinalize(target any) error
}

// OptimizerHooks run around every optimizer step, independent of the
// schedule window.
type OptimizerHooks interface {
	OnOptimizerPreStep(target, optimizer any, epoch float64, stepsPerEpoch int) error
	OnOptimizerPostStep(target, optimizer any, epoch float64, stepsPerEpoch int) error
}

// StateDict is the opaque persistence mapping exchanged with the
// caller: top-level keys name the owning component, nested maps hold
// its scalar state.
type StateDict = map[string]map[string]float64

// Base is the minimal modifier lifecycle: initialize/finalize, the
// enabled flag, and logger attachment. It carries no schedule; see
// Scheduled for the windowed state machine.
//
// Base is not safe for concurrent use; exactly one training loop must
// drive an instance.
type Base struct {
	name     string
	caps     map[Capability]struct{}
	oplog    *logging.Logger
	strategy any

	updater   Updater
	logUpd    LogUpdater
	lossUpd   LossUpdater
	initHook  Initializer
	finalHook Finalizer
	optimHook OptimizerHooks

	initialized        bool
	enabled            bool
	loggersInitialized bool
	loggers            *telemetry.Manager
}

// Option configures a Base at construction.
type Option func(*Base)

// WithName overrides the telemetry tag name derived from the strategy
// type.
func WithName(name string) Option {
	return func(b *Base) { b.name = name }
}

// WithCapabilities declares the modifier's capability set.
func WithCapabilities(caps ...Capability) Option {
	return func(b *Base) {
		for _, c := range caps {
			b.caps[c] = struct{}{}
		}
	}
}

// WithStrategy injects the concrete behavior. The value is probed for
// the optional extension interfaces (Updater, LogUpdater, LossUpdater,
// Initializer, Finalizer, OptimizerHooks); the state machine invokes
// whichever are present. If no name was set, the strategy's type name
// becomes the default telemetry tag.
func WithStrategy(v any) Option {
	return func(b *Base) {
		b.strategy = v
		b.updater, _ = v.(Updater)
		b.logUpd, _ = v.(LogUpdater)
		b.lossUpd, _ = v.(LossUpdater)
		b.initHook, _ = v.(Initializer)
		b.finalHook, _ = v.(Finalizer)
		b.optimHook, _ = v.(OptimizerHooks)
	}
}

// WithOperationalLogger attaches a structured logger for lifecycle
// diagnostics (distinct from gated telemetry).
func WithOperationalLogger(l *logging.Logger) Option {
	return func(b *Base) { b.oplog = l }
}

// NewBase constructs a base modifier. Modifiers start enabled and
// uninitialized.
func NewBase(opts ...Option) *Base {
	b := &Base{
		enabled: true,
		caps:    make(map[Capability]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.name == "" {
		b.name = deriveName(b.strategy)
	}
	if b.oplog == nil {
		b.oplog = logging.New(logging.Config{Quiet: true})
	}
	return b
}

// deriveName resolves the default telemetry tag from the strategy's
// runtime type, falling back to "Modifier".
func deriveName(strategy any) string {
	if strategy == nil {
		return "Modifier"
	}
	t := reflect.TypeOf(strategy)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Modifier"
	}
	return t.Name()
}

// Name returns the modifier's telemetry tag name.
func (b *Base) Name() string { return b.name }

// Initialized reports whether Initialize has run without a matching
// Finalize.
func (b *Base) Initialized() bool { return b.initialized }

// Enabled reports whether lifecycle hooks are permitted to run.
func (b *Base) Enabled() bool { return b.enabled }

// SetEnabled toggles the enabled flag. Disabling does not finalize;
// hooks fail (or report not-ready) until re-enabled.
func (b *Base) SetEnabled(enabled bool) { b.enabled = enabled }

// LoggersInitialized reports whether a telemetry manager is attached.
func (b *Base) LoggersInitialized() bool { return b.loggersInitialized }

// Loggers returns the attached telemetry manager, nil before
// InitializeLoggers.
func (b *Base) Loggers() *telemetry.Manager { return b.loggers }

// HasCapability reports whether the modifier declared the capability.
func (b *Base) HasCapability(c Capability) bool {
	_, ok := b.caps[c]
	return ok
}

// Capabilities returns the declared capability set, sorted.
func (b *Base) Capabilities() []Capability {
	out := make([]Capability, 0, len(b.caps))
	for c := range b.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Initialize marks the modifier initialized at the given epoch,
// attaches loggers, and runs the strategy's OnInitialize hook if
// present. The target handle is forwarded to the hook untouched.
func (b *Base) Initialize(target any, epoch float64, loggers *telemetry.Manager) error {
	b.initialized = true
	b.InitializeLoggers(loggers)

	if b.initHook != nil {
		if err := b.initHook.OnInitialize(target, epoch); err != nil {
			b.initialized = false
			return fmt.Errorf("initializing %s: %w", b.name, err)
		}
	}

	b.oplog.Debug("modifier initialized", "modifier", b.name, "epoch", epoch)
	return nil
}

// InitializeLoggers attaches a telemetry manager. Idempotent: a manager
// already attached with sinks is left untouched. A nil argument
// attaches an empty manager so log paths stay no-ops rather than nil
// derefs.
func (b *Base) InitializeLoggers(loggers *telemetry.Manager) {
	if b.loggersInitialized && b.loggers != nil && !b.loggers.Empty() {
		return
	}

	if loggers == nil {
		loggers = telemetry.NewManager(telemetry.LogEveryEpoch)
	}
	b.loggersInitialized = true
	b.loggers = loggers
}

// Finalize tears the modifier down: runs the strategy's OnFinalize hook,
// always clears initialized, and optionally detaches loggers. Fails
// with a LifecycleError when not initialized.
func (b *Base) Finalize(target any, resetLoggers bool) error {
	if !b.initialized {
		return errNotInitialized("Finalize")
	}

	var hookErr error
	if b.finalHook != nil {
		hookErr = b.finalHook.OnFinalize(target)
	}

	b.initialized = false

	if resetLoggers {
		b.loggers = nil
		b.loggersInitialized = false
	}

	if hookErr != nil {
		return fmt.Errorf("finalizing %s: %w", b.name, hookErr)
	}
	b.oplog.Debug("modifier finalized", "modifier", b.name)
	return nil
}

// Apply runs the modifier one-shot, outside a training loop: initialize
// at the given epoch (math.Inf(1) for "end of training"), then finalize
// unless finalize is false.
func (b *Base) Apply(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error {
	if err := b.Initialize(target, epoch, loggers); err != nil {
		return err
	}

	if finalize {
		return b.Finalize(target, true)
	}
	return nil
}

// ApplyStructure is the conditional variant of Apply for modifiers that
// change model structure: it is a no-op unless the capability set
// contains CapabilityStructural.
func (b *Base) ApplyStructure(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error {
	if !b.HasCapability(CapabilityStructural) {
		return nil
	}
	return b.Apply(target, epoch, loggers, finalize)
}

// Update is the base per-step hook. It only enforces the lifecycle
// guards; Scheduled overrides dispatch to the strategy.
func (b *Base) Update(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !b.initialized {
		return errNotInitialized("Update")
	}
	if !b.enabled {
		return errNotEnabled("Update")
	}
	return nil
}

// LogUpdate is the base logging hook; only guards at this level.
func (b *Base) LogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !b.initialized {
		return errNotInitialized("LogUpdate")
	}
	if !b.loggersInitialized {
		return &LifecycleError{Op: "LogUpdate", Reason: "modifier must have loggers initialized first"}
	}
	if !b.enabled {
		return errNotEnabled("LogUpdate")
	}
	return nil
}

// LossUpdate transforms the loss once it has been computed, every step
// regardless of the schedule window. Returns the (possibly replaced)
// loss handle.
func (b *Base) LossUpdate(loss any, target, optimizer any, epoch float64, stepsPerEpoch int) (any, error) {
	if !b.initialized {
		return loss, errNotInitialized("LossUpdate")
	}
	if !b.enabled {
		return loss, errNotEnabled("LossUpdate")
	}

	if b.lossUpd != nil {
		return b.lossUpd.OnLossUpdate(loss, target, optimizer, epoch, stepsPerEpoch)
	}
	return loss, nil
}

// OptimizerPreStep runs before optimizer.step, every step regardless of
// the schedule window.
func (b *Base) OptimizerPreStep(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !b.initialized {
		return errNotInitialized("OptimizerPreStep")
	}
	if !b.enabled {
		return errNotEnabled("OptimizerPreStep")
	}

	if b.optimHook != nil {
		return b.optimHook.OnOptimizerPreStep(target, optimizer, epoch, stepsPerEpoch)
	}
	return nil
}

// OptimizerPostStep runs after optimizer.step once weights have
// updated, every step regardless of the schedule window.
func (b *Base) OptimizerPostStep(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !b.initialized {
		return errNotInitialized("OptimizerPostStep")
	}
	if !b.enabled {
		return errNotEnabled("OptimizerPostStep")
	}

	if b.optimHook != nil {
		return b.optimHook.OnOptimizerPostStep(target, optimizer, epoch, stepsPerEpoch)
	}
	return nil
}

// StateDict returns the modifier's persisted state. The base
// contributes no keys; concrete modifiers shadow this to export theirs.
func (b *Base) StateDict() StateDict {
	return StateDict{}
}

// LoadStateDict loads persisted state. With strict set, any key is
// unconsumed at this level and fails with a StateDictError naming the
// offenders; concrete modifiers consume their keys first and delegate
// the remainder here.
func (b *Base) LoadStateDict(sd StateDict, strict bool) error {
	if strict && len(sd) > 0 {
		keys := make([]string, 0, len(sd))
		for k := range sd {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &StateDictError{Keys: keys}
	}
	return nil
}

// Close finalizes the modifier if it is still initialized, making
// defer-based teardown deterministic. Errors are returned, not
// swallowed. Closing an uninitialized modifier is a no-op.
func (b *Base) Close() error {
	if !b.initialized {
		return nil
	}
	return b.Finalize(nil, true)
}
