// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import "fmt"

// ScheduledUpdater adds periodic re-triggering to Scheduled: inside
// the open window the modifier becomes update-ready again every
// updateFrequency epochs. The start and end edges still fire exactly
// once each regardless of the cadence; frequency only governs
// re-triggering strictly inside the window.
//
// The type name differs from its ScheduledUpdate method so that
// embedding *ScheduledUpdater keeps the method promoted. An anonymous
// field named after the method would shadow it.
type ScheduledUpdater struct {
	Scheduled

	updateFrequency float64
	minFrequency    float64
	lastUpdateEpoch float64
}

// EveryOpportunity is the update frequency that re-triggers at every
// scheduling opportunity while the window is open.
const EveryOpportunity = -1.0

// NewScheduledUpdater constructs a frequency-gated scheduled modifier.
// updateFrequency is in epoch units; EveryOpportunity (-1) re-triggers
// whenever the loop asks. minFrequency is the validation floor;
// negative frequencies other than the sentinel are always rejected.
func NewScheduledUpdater(sched Schedule, updateFrequency, minFrequency float64, opts ...Option) (*ScheduledUpdater, error) {
	if updateFrequency != EveryOpportunity &&
		(updateFrequency < 0 || updateFrequency < minFrequency) {
		return nil, &ScheduleValidationError{
			Field:  "update_frequency",
			Reason: fmt.Sprintf("value %v must be -1 or >= min_frequency %v", updateFrequency, minFrequency),
		}
	}

	inner, err := NewScheduled(sched, opts...)
	if err != nil {
		return nil, err
	}

	su := &ScheduledUpdater{
		Scheduled:       *inner,
		updateFrequency: updateFrequency,
		minFrequency:    minFrequency,
		lastUpdateEpoch: -1.0,
	}
	su.caps[CapabilityFrequencyGated] = struct{}{}
	// Route the gate's dispatch through this level so frequency
	// bookkeeping happens on every gated update.
	su.updateImpl = su.Update
	if su.name == "ScheduledModifier" {
		su.name = "ScheduledUpdateModifier"
	}
	return su, nil
}

// UpdateFrequency returns the re-trigger interval in epoch units
// (EveryOpportunity for every pass).
func (su *ScheduledUpdater) UpdateFrequency() float64 { return su.updateFrequency }

// LastUpdateEpoch returns the epoch of the most recent gated update,
// -1 before any.
func (su *ScheduledUpdater) LastUpdateEpoch() float64 { return su.lastUpdateEpoch }

// UpdateReady adds the frequency cadence to the base start/end edges:
// ready when an edge is pending, or when started, strictly past the
// start epoch, not ended, and the frequency interval has elapsed since
// the last update.
func (su *ScheduledUpdater) UpdateReady(epoch float64, stepsPerEpoch int) (bool, error) {
	if !su.initialized {
		return false, errNotInitialized("UpdateReady")
	}
	if !su.enabled {
		return false, nil
	}

	startOrEnd, err := su.Scheduled.UpdateReady(epoch, stepsPerEpoch)
	if err != nil {
		return false, err
	}

	periodic := su.started &&
		epoch > su.sched.StartEpoch() &&
		!su.ended &&
		(su.updateFrequency == EveryOpportunity ||
			(su.lastUpdateEpoch >= 0.0 && epoch >= su.lastUpdateEpoch+su.updateFrequency))

	return startOrEnd || periodic, nil
}

// Update records the update epoch for the frequency gate, then runs the
// Scheduled dispatch (guards plus strategy OnUpdate). The epoch is
// recorded only once the guards pass, so rejected direct calls leave
// the cadence untouched.
func (su *ScheduledUpdater) Update(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if err := su.Scheduled.Update(target, optimizer, epoch, stepsPerEpoch); err != nil {
		return err
	}
	su.lastUpdateEpoch = epoch
	return nil
}

// ScheduledUpdate dispatches the gated update. Shadowed here only to
// route UpdateReady through the frequency-aware implementation.
func (su *ScheduledUpdater) ScheduledUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	if !su.initialized {
		return errNotInitialized("ScheduledUpdate")
	}

	ready, err := su.UpdateReady(epoch, stepsPerEpoch)
	if err != nil {
		return err
	}
	if !ready {
		return &LifecycleError{
			Op:     "ScheduledUpdate",
			Reason: "update_ready is false, it must be true to call scheduled_update",
		}
	}

	su.schedCalled = true
	err = su.updateImpl(target, optimizer, epoch, stepsPerEpoch)
	su.schedCalled = false
	if err != nil {
		return err
	}

	if pending, perr := su.StartPending(epoch, stepsPerEpoch); perr == nil && pending {
		su.started = true
	}
	if pending, perr := su.EndPending(epoch, stepsPerEpoch); perr == nil && pending {
		su.ended = true
	}
	return nil
}

// Finalize resets the frequency bookkeeping along with the windowed
// state.
func (su *ScheduledUpdater) Finalize(target any, resetLoggers bool) error {
	if err := su.Scheduled.Finalize(target, resetLoggers); err != nil {
		return err
	}
	su.lastUpdateEpoch = -1.0
	return nil
}

// Close finalizes through the ScheduledUpdate path if still
// initialized.
func (su *ScheduledUpdater) Close() error {
	if !su.initialized {
		return nil
	}
	return su.Finalize(nil, true)
}
