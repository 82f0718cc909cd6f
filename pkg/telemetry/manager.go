// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry routes training-time scalar and string events to
// pluggable sinks, gated by an epoch cadence.
//
// A single Manager is typically shared by every modifier in a training
// run: modifiers ask LogReady whether this epoch warrants an emission,
// then forward tagged scalars/strings which the Manager fans out to all
// attached sinks (console, prometheus, in-memory recorder).
//
// # Thread Safety
//
// The sink list is protected by an RWMutex so cadence queries from
// multiple goroutines are safe. The modifiers driving a Manager are
// themselves single-threaded per instance (see pkg/modifier).
package telemetry

import (
	"math"
	"sync"

	"github.com/AleutianAI/sparsekit/pkg/logging"
)

// Sink receives tagged telemetry events from a Manager.
//
// Implementations must be safe for concurrent use; the Manager does not
// serialize emissions on behalf of its sinks.
type Sink interface {
	// Name identifies the sink in diagnostics.
	Name() string

	// LogScalar records a named scalar at a monotonic step. A negative
	// step means "step unknown" (emission outside the training loop).
	LogScalar(tag string, value float64, step int, level logging.Level)

	// LogString records a named string event at a monotonic step.
	LogString(tag, msg string, step int, level logging.Level)
}

// LogEveryEpoch is the cadence that passes every LogReady query.
const LogEveryEpoch = 0.0

// LogNever is the cadence that disables gated logging entirely.
const LogNever = -1.0

// Manager is the facade modifiers log through. It owns the emission
// cadence (in epoch units) and the attached sinks; it owns no modifier
// state; each modifier tracks its own last-log epoch and passes it to
// LogReady.
type Manager struct {
	mu        sync.RWMutex
	sinks     []Sink
	frequency float64
}

// NewManager creates a Manager emitting at most once per frequency
// epochs to the given sinks. Use LogEveryEpoch to pass every query and
// LogNever to suppress gated emissions.
func NewManager(frequency float64, sinks ...Sink) *Manager {
	m := &Manager{frequency: frequency}
	m.sinks = append(m.sinks, sinks...)
	return m
}

// Frequency returns the configured cadence in epoch units.
func (m *Manager) Frequency() float64 {
	return m.frequency
}

// AddSink attaches another sink. Safe to call while the manager is in
// use.
func (m *Manager) AddSink(s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Sinks returns a snapshot of the attached sinks.
func (m *Manager) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

// Empty reports whether no sinks are attached.
func (m *Manager) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks) == 0
}

// LogReady reports whether an emission should occur at epoch given the
// caller's last emission epoch. Negative epoch or lastLogEpoch values
// mean "unknown" and pass the gate; a LogNever cadence never passes.
func (m *Manager) LogReady(epoch, lastLogEpoch float64) bool {
	if m.frequency < 0 {
		return false
	}
	if epoch < 0 || lastLogEpoch < 0 {
		return true
	}
	return epoch >= lastLogEpoch+m.frequency
}

// EpochToStep converts a real-valued epoch to a monotonic step count.
// Returns -1 when either input is unusable.
func (m *Manager) EpochToStep(epoch float64, stepsPerEpoch int) int {
	if epoch < 0 || stepsPerEpoch <= 0 || math.IsInf(epoch, 1) {
		return -1
	}
	return int(math.Round(epoch * float64(stepsPerEpoch)))
}

// LogScalar fans a tagged scalar out to every attached sink.
func (m *Manager) LogScalar(tag string, value float64, step int, level logging.Level) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.LogScalar(tag, value, step, level)
	}
}

// LogString fans a tagged string event out to every attached sink.
func (m *Manager) LogString(tag, msg string, step int, level logging.Level) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.LogString(tag, msg, step, level)
	}
}
