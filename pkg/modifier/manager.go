// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/telemetry"
)

// Modifier is the lifecycle contract a training loop drives. Scheduled
// and ScheduledUpdater satisfy it, as do concrete modifiers embedding
// them.
type Modifier interface {
	Name() string
	Initialized() bool
	Enabled() bool
	HasCapability(c Capability) bool

	Initialize(target any, epoch float64, loggers *telemetry.Manager) error
	Finalize(target any, resetLoggers bool) error
	Apply(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error
	ApplyStructure(target any, epoch float64, loggers *telemetry.Manager, finalize bool) error

	UpdateReady(epoch float64, stepsPerEpoch int) (bool, error)
	ScheduledUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error
	ScheduledLogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error
	LossUpdate(loss any, target, optimizer any, epoch float64, stepsPerEpoch int) (any, error)
	OptimizerPreStep(target, optimizer any, epoch float64, stepsPerEpoch int) error
	OptimizerPostStep(target, optimizer any, epoch float64, stepsPerEpoch int) error

	StateDict() StateDict
	LoadStateDict(sd StateDict, strict bool) error
	Close() error
}

var (
	_ Modifier = (*Scheduled)(nil)
	_ Modifier = (*ScheduledUpdater)(nil)
)

// Manager drives an ordered collection of modifiers as one unit: every
// lifecycle call fans out in order, sharing a single telemetry manager.
// A Manager is what a recipe loads into.
type Manager struct {
	runID     string
	modifiers []Modifier
	loggers   *telemetry.Manager
	oplog     *logging.Logger
}

// NewManager creates a manager over the given modifiers. Each run gets
// a fresh id included in operational log lines so interleaved runs can
// be told apart.
func NewManager(loggers *telemetry.Manager, oplog *logging.Logger, modifiers ...Modifier) *Manager {
	if oplog == nil {
		oplog = logging.New(logging.Config{Quiet: true})
	}
	runID := uuid.NewString()
	return &Manager{
		runID:     runID,
		modifiers: modifiers,
		loggers:   loggers,
		oplog:     oplog.With("run_id", runID),
	}
}

// RunID returns the manager's run identifier.
func (m *Manager) RunID() string { return m.runID }

// Modifiers returns the managed modifiers in order.
func (m *Manager) Modifiers() []Modifier { return m.modifiers }

// Add appends a modifier. Must happen before Initialize.
func (m *Manager) Add(mod Modifier) {
	m.modifiers = append(m.modifiers, mod)
}

// MinStartEpoch returns the earliest non-negative start epoch across
// scheduled members, or -1 if every member starts immediately.
func (m *Manager) MinStartEpoch() float64 {
	minStart := -1.0
	for _, mod := range m.modifiers {
		s, ok := mod.(interface{ StartEpoch() float64 })
		if !ok {
			continue
		}
		start := s.StartEpoch()
		if start < 0 {
			continue
		}
		if minStart < 0 || start < minStart {
			minStart = start
		}
	}
	return minStart
}

// MaxEndEpoch returns the latest end epoch across scheduled members.
// It returns -1 when any member never ends, and also when no member
// carries an end epoch at all.
func (m *Manager) MaxEndEpoch() float64 {
	maxEnd := -1.0
	for _, mod := range m.modifiers {
		s, ok := mod.(interface{ EndEpoch() float64 })
		if !ok {
			continue
		}
		end := s.EndEpoch()
		if end < 0 {
			return -1.0
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	return maxEnd
}

// Initialize initializes every modifier at the given epoch against the
// shared telemetry manager. Fails on the first member error.
func (m *Manager) Initialize(target any, epoch float64) error {
	m.oplog.Info("initializing modifiers", "count", len(m.modifiers), "epoch", epoch)
	for _, mod := range m.modifiers {
		if err := mod.Initialize(target, epoch, m.loggers); err != nil {
			return fmt.Errorf("manager initialize: %w", err)
		}
	}
	return nil
}

// Finalize finalizes every modifier, continuing past member errors and
// returning the first one encountered.
func (m *Manager) Finalize(target any, resetLoggers bool) error {
	var firstErr error
	for _, mod := range m.modifiers {
		if err := mod.Finalize(target, resetLoggers); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.oplog.Info("finalized modifiers", "count", len(m.modifiers))
	return firstErr
}

// Step runs one training-loop scheduling pass: for each member, checks
// UpdateReady and dispatches ScheduledUpdate when ready, then
// ScheduledLogUpdate.
func (m *Manager) Step(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	for _, mod := range m.modifiers {
		ready, err := mod.UpdateReady(epoch, stepsPerEpoch)
		if err != nil {
			return fmt.Errorf("manager step %s: %w", mod.Name(), err)
		}
		if ready {
			if err := mod.ScheduledUpdate(target, optimizer, epoch, stepsPerEpoch); err != nil {
				return fmt.Errorf("manager step %s: %w", mod.Name(), err)
			}
		}
		if err := mod.ScheduledLogUpdate(target, optimizer, epoch, stepsPerEpoch); err != nil {
			return fmt.Errorf("manager step %s: %w", mod.Name(), err)
		}
	}
	return nil
}

// LossUpdate threads the loss through every member in order.
func (m *Manager) LossUpdate(loss any, target, optimizer any, epoch float64, stepsPerEpoch int) (any, error) {
	var err error
	for _, mod := range m.modifiers {
		loss, err = mod.LossUpdate(loss, target, optimizer, epoch, stepsPerEpoch)
		if err != nil {
			return loss, fmt.Errorf("manager loss update %s: %w", mod.Name(), err)
		}
	}
	return loss, nil
}

// OptimizerPreStep fans out to every member.
func (m *Manager) OptimizerPreStep(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	for _, mod := range m.modifiers {
		if err := mod.OptimizerPreStep(target, optimizer, epoch, stepsPerEpoch); err != nil {
			return fmt.Errorf("manager pre-step %s: %w", mod.Name(), err)
		}
	}
	return nil
}

// OptimizerPostStep fans out to every member.
func (m *Manager) OptimizerPostStep(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	for _, mod := range m.modifiers {
		if err := mod.OptimizerPostStep(target, optimizer, epoch, stepsPerEpoch); err != nil {
			return fmt.Errorf("manager post-step %s: %w", mod.Name(), err)
		}
	}
	return nil
}

// stateKey builds the per-member state-dict key. The index prefix keeps
// two modifiers of the same type distinct.
func stateKey(idx int, mod Modifier) string {
	return fmt.Sprintf("%d_%s", idx, mod.Name())
}

// StateDict collects every member's state under index-qualified type
// names. Members with no state contribute no keys.
func (m *Manager) StateDict() StateDict {
	out := StateDict{}
	for i, mod := range m.modifiers {
		sd := mod.StateDict()
		if len(sd) == 0 {
			continue
		}
		prefix := stateKey(i, mod)
		for k, v := range sd {
			out[prefix+"/"+k] = v
		}
	}
	return out
}

// LoadStateDict routes index-qualified keys back to their members. With
// strict set, keys matching no member fail with a StateDictError
// naming them.
func (m *Manager) LoadStateDict(sd StateDict, strict bool) error {
	perMember := make(map[int]StateDict)
	var unknown []string

	for key, val := range sd {
		prefix, rest, found := strings.Cut(key, "/")
		idx := -1
		if found {
			for i, mod := range m.modifiers {
				if prefix == stateKey(i, mod) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			unknown = append(unknown, key)
			continue
		}
		if perMember[idx] == nil {
			perMember[idx] = StateDict{}
		}
		perMember[idx][rest] = val
	}

	if strict && len(unknown) > 0 {
		sort.Strings(unknown)
		return &StateDictError{Keys: unknown}
	}

	for i, mod := range m.modifiers {
		member := perMember[i]
		if member == nil {
			member = StateDict{}
		}
		if err := mod.LoadStateDict(member, strict); err != nil {
			return fmt.Errorf("manager load state %s: %w", mod.Name(), err)
		}
	}
	return nil
}

// Close closes every member, returning the first error. Intended for
// defer-based teardown of a whole run.
func (m *Manager) Close() error {
	var firstErr error
	for _, mod := range m.modifiers {
		if err := mod.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
