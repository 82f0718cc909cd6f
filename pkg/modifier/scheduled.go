// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import (
	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/telemetry"
)

// Scheduled is the windowed lifecycle state machine. On top of Base it
// gates activity on a start/end epoch Schedule and tracks the
// pending → started → ended progression:
//
//	INITIALIZED{!started,!ended} start edge → {started,!ended}
//	{started,!ended} end edge → {started,ended}
//
// started and ended are monotonic until Finalize; ended is unreachable
// without started except in the immediate-start case (StartEpoch == -1
// with the end already past), where both edges fire in the same
// ScheduledUpdate pass.
type Scheduled struct {
	Base

	sched Schedule

	started        bool
	ended          bool
	schedCalled    bool
	schedLogCalled bool
	lastLogEpoch   float64

	// updateImpl points at the most-derived Update so the gate invokes
	// frequency bookkeeping when wrapped by ScheduledUpdater.
	updateImpl func(target, optimizer any, epoch float64, stepsPerEpoch int) error
}

// NewScheduled constructs a scheduled modifier over a validated window.
// The schedule is revalidated here so partially mutated values cannot
// slip in.
func NewScheduled(sched Schedule, opts ...Option) (*Scheduled, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduled{
		sched:        sched,
		lastLogEpoch: -1.0,
	}
	s.Base = *NewBase(opts...)
	s.caps[CapabilityScheduled] = struct{}{}
	s.updateImpl = s.Update
	if s.name == "Modifier" {
		s.name = "ScheduledModifier"
	}
	return s, nil
}

// Schedule returns the modifier's epoch window.
func (s *Scheduled) Schedule() Schedule { return s.sched }

// StartEpoch returns the window start (-1 = immediately).
func (s *Scheduled) StartEpoch() float64 { return s.sched.StartEpoch() }

// EndEpoch returns the window end (-1 = never, comparator permitting).
func (s *Scheduled) EndEpoch() float64 { return s.sched.EndEpoch() }

// Started reports whether the start transition has fired.
func (s *Scheduled) Started() bool { return s.started }

// Ended reports whether the end transition has fired.
func (s *Scheduled) Ended() bool { return s.ended }

// StartPending reports whether the start transition should fire at the
// given epoch: not yet started or ended, and the epoch has reached
// StartEpoch (or StartEpoch is -1, immediate start). Disabled modifiers
// report false; uninitialized ones fail.
func (s *Scheduled) StartPending(epoch float64, stepsPerEpoch int) (bool, error) {
	if !s.initialized {
		return false, errNotInitialized("StartPending")
	}
	if !s.enabled {
		return false, nil
	}

	start := s.sched.StartEpoch()
	pending := !s.started && !s.ended &&
		((epoch >= start && start >= 0.0) || start == -1.0)
	return pending, nil
}

// EndPending reports whether the end transition should fire at the
// given epoch: started, not ended, and the epoch has reached EndEpoch.
func (s *Scheduled) EndPending(epoch float64, stepsPerEpoch int) (bool, error) {
	if !s.initialized {
		return false, errNotInitialized("EndPending")
	}
	if !s.enabled {
		return false, nil
	}

	end := s.sched.EndEpoch()
	pending := !s.ended && s.started && epoch >= end && end >= 0.0
	return pending, nil
}

// UpdateReady reports whether ScheduledUpdate must be called at this
// epoch. At this level that means a start or end edge is pending.
func (s *Scheduled) UpdateReady(epoch float64, stepsPerEpoch int) (bool, error) {
	if !s.initialized {
		return false, errNotInitialized("UpdateReady")
	}
	if !s.enabled {
		return false, nil
	}

	startPending, err := s.StartPending(epoch, stepsPerEpoch)
	if err != nil {
		return false, err
	}
	endPending, err := s.EndPending(epoch, stepsPerEpoch)
	if err != nil {
		return false, err
	}
	return startPending || endPending, nil
}

// ScheduledUpdate is the only legal caller of Update. It verifies
// UpdateReady, dispatches the update under the reentrancy guard, then
// fires the start/end transitions evaluated against the same epoch the
// update saw. With an immediate start and an already-past end, both
// transitions fire in this one pass.
func (s *Scheduled) ScheduledUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !s.initialized {
		return errNotInitialized("ScheduledUpdate")
	}

	ready, err := s.UpdateReady(epoch, stepsPerEpoch)
	if err != nil {
		return err
	}
	if !ready {
		return &LifecycleError{
			Op:     "ScheduledUpdate",
			Reason: "update_ready is false, it must be true to call scheduled_update",
		}
	}

	s.schedCalled = true
	err = s.updateImpl(target, optimizer, epoch, stepsPerEpoch)
	s.schedCalled = false
	if err != nil {
		return err
	}

	if pending, err := s.StartPending(epoch, stepsPerEpoch); err == nil && pending {
		s.started = true
	}
	if pending, err := s.EndPending(epoch, stepsPerEpoch); err == nil && pending {
		s.ended = true
	}
	return nil
}

// Update dispatches to the strategy's OnUpdate. It must only be reached
// through ScheduledUpdate; direct calls fail with a LifecycleError.
// This guard defends against caller mistakes, it is not a business
// rule.
func (s *Scheduled) Update(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if err := s.Base.Update(target, optimizer, epoch, stepsPerEpoch); err != nil {
		return err
	}
	if !s.schedCalled {
		return &LifecycleError{
			Op:     "Update",
			Reason: "update should not be called directly, call scheduled_update instead",
		}
	}

	if s.updater != nil {
		return s.updater.OnUpdate(target, optimizer, epoch, stepsPerEpoch)
	}
	return nil
}

// ScheduledLogUpdate checks the telemetry cadence and, when ready,
// records the emission epoch and dispatches LogUpdate under the logging
// reentrancy guard. Unlike ScheduledUpdate it is not tied to
// UpdateReady: modifiers may log steadily across their whole window.
func (s *Scheduled) ScheduledLogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !s.initialized {
		return errNotInitialized("ScheduledLogUpdate")
	}
	if !s.loggersInitialized {
		return &LifecycleError{Op: "ScheduledLogUpdate", Reason: "modifier must have loggers initialized first"}
	}
	if !s.enabled {
		return errNotEnabled("ScheduledLogUpdate")
	}

	if s.loggers.Empty() || !s.loggers.LogReady(epoch, s.lastLogEpoch) {
		return nil
	}

	s.lastLogEpoch = epoch
	s.schedLogCalled = true
	err := s.LogUpdate(target, optimizer, epoch, stepsPerEpoch)
	s.schedLogCalled = false
	return err
}

// LogUpdate dispatches to the strategy's OnLogUpdate. Direct calls
// outside ScheduledLogUpdate fail with a LifecycleError.
func (s *Scheduled) LogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if err := s.Base.LogUpdate(target, optimizer, epoch, stepsPerEpoch); err != nil {
		return err
	}
	if !s.schedLogCalled {
		return &LifecycleError{
			Op:     "LogUpdate",
			Reason: "log_update should not be called directly, call scheduled_log_update instead",
		}
	}

	if s.logUpd != nil {
		return s.logUpd.OnLogUpdate(target, optimizer, epoch, stepsPerEpoch)
	}
	return nil
}

// LastLogEpoch returns the epoch of the most recent gated emission,
// -1 before any.
func (s *Scheduled) LastLogEpoch() float64 { return s.lastLogEpoch }

// LogScalar forwards a scalar to the attached telemetry manager. An
// empty tag resolves to the modifier's name; epoch and stepsPerEpoch
// convert to a monotonic step through the manager. No-op when no sinks
// are attached.
func (s *Scheduled) LogScalar(tag string, value float64, epoch float64, stepsPerEpoch int, level logging.Level) {
	if s.loggers == nil {
		return
	}
	if tag == "" {
		tag = s.name
	}
	step := s.loggers.EpochToStep(epoch, stepsPerEpoch)
	s.loggers.LogScalar(tag, value, step, level)
}

// LogString forwards a string event to the attached telemetry manager,
// with the same tag and step resolution as LogScalar.
func (s *Scheduled) LogString(tag, msg string, epoch float64, stepsPerEpoch int, level logging.Level) {
	if s.loggers == nil {
		return
	}
	if tag == "" {
		tag = s.name
	}
	step := s.loggers.EpochToStep(epoch, stepsPerEpoch)
	s.loggers.LogString(tag, msg, step, level)
}

// NamedScalar is one entry for LogNamedScalars.
type NamedScalar struct {
	Name  string
	Value float64
}

// LogNamedScalars emits each scalar under "<modifier name>/<name>".
func (s *Scheduled) LogNamedScalars(pairs []NamedScalar, epoch float64, stepsPerEpoch int, level logging.Level) {
	for _, p := range pairs {
		s.LogScalar(s.name+"/"+p.Name, p.Value, epoch, stepsPerEpoch, level)
	}
}

// Finalize resets the windowed state along with the base lifecycle so a
// re-initialized modifier starts from pending again.
func (s *Scheduled) Finalize(target any, resetLoggers bool) error {
	if err := s.Base.Finalize(target, resetLoggers); err != nil {
		return err
	}
	s.started = false
	s.ended = false
	s.lastLogEpoch = -1.0
	return nil
}

// Apply runs one-shot application through the Scheduled finalize path
// so the windowed state resets with the lifecycle.
func (s *Scheduled) Apply(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error {
	if err := s.Initialize(target, epoch, loggers); err != nil {
		return err
	}
	if finalize {
		return s.Finalize(target, true)
	}
	return nil
}

// ApplyStructure is Apply gated on CapabilityStructural.
func (s *Scheduled) ApplyStructure(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error {
	if !s.HasCapability(CapabilityStructural) {
		return nil
	}
	return s.Apply(target, epoch, loggers, finalize)
}

// Close finalizes through the Scheduled path if still initialized.
func (s *Scheduled) Close() error {
	if !s.initialized {
		return nil
	}
	return s.Finalize(nil, true)
}
