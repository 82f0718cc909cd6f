// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import (
	"errors"
	"testing"

	"github.com/AleutianAI/sparsekit/pkg/telemetry"
)

// statefulModifier is a scheduled modifier persisting a single value,
// used to exercise manager state-dict routing.
type statefulModifier struct {
	*Scheduled
	value float64
}

func newStatefulModifier(t *testing.T, name string, start, end float64) *statefulModifier {
	t.Helper()
	m := &statefulModifier{}
	sched, err := NewSchedule(start, -1.0, end, -1.0, CompareLessEqual)
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}
	m.Scheduled, err = NewScheduled(sched, WithName(name), WithStrategy(m))
	if err != nil {
		t.Fatalf("NewScheduled() error = %v", err)
	}
	return m
}

func (m *statefulModifier) OnUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	m.value = epoch
	return nil
}

func (m *statefulModifier) StateDict() StateDict {
	return StateDict{"state": {"value": m.value}}
}

func (m *statefulModifier) LoadStateDict(sd StateDict, strict bool) error {
	rest := StateDict{}
	for k, v := range sd {
		if k == "state" {
			m.value = v["value"]
			continue
		}
		rest[k] = v
	}
	return m.Scheduled.LoadStateDict(rest, strict)
}

func newTestManager(t *testing.T, mods ...Modifier) *Manager {
	t.Helper()
	tm := telemetry.NewManager(telemetry.LogEveryEpoch, telemetry.NewRecordingSink())
	return NewManager(tm, nil, mods...)
}

func TestManagerWindow(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 2.0, 8.0)
	b := newStatefulModifier(t, "Beta", 5.0, 12.0)
	mgr := newTestManager(t, a, b)

	if got := mgr.MinStartEpoch(); got != 2.0 {
		t.Errorf("MinStartEpoch() = %v, want 2", got)
	}
	if got := mgr.MaxEndEpoch(); got != 12.0 {
		t.Errorf("MaxEndEpoch() = %v, want 12", got)
	}
}

func TestManagerWindowSentinels(t *testing.T) {
	immediate := newStatefulModifier(t, "Immediate", -1.0, 5.0)
	endless := newStatefulModifier(t, "Endless", 0.0, -1.0)
	mgr := newTestManager(t, immediate, endless)

	if got := mgr.MinStartEpoch(); got != 0.0 {
		t.Errorf("MinStartEpoch() = %v, want 0 (ignoring immediate starts)", got)
	}
	if got := mgr.MaxEndEpoch(); got != -1.0 {
		t.Errorf("MaxEndEpoch() = %v, want -1 when any member never ends", got)
	}
}

func TestManagerWindowEmpty(t *testing.T) {
	mgr := newTestManager(t)

	if got := mgr.MinStartEpoch(); got != -1.0 {
		t.Errorf("MinStartEpoch() = %v, want -1 with no scheduled members", got)
	}
	if got := mgr.MaxEndEpoch(); got != -1.0 {
		t.Errorf("MaxEndEpoch() = %v, want -1 with no scheduled members", got)
	}
}

func TestManagerLifecycleFanOut(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	b := newStatefulModifier(t, "Beta", 2.0, 5.0)
	mgr := newTestManager(t, a, b)

	if err := mgr.Initialize(nil, 0.0); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !a.Initialized() || !b.Initialized() {
		t.Fatal("not every member was initialized")
	}

	// Alpha starts at 0, Beta not yet.
	if err := mgr.Step(nil, nil, 0.0, 100); err != nil {
		t.Fatalf("Step(0) error = %v", err)
	}
	if !a.Started() {
		t.Error("Alpha not started after Step(0)")
	}
	if b.Started() {
		t.Error("Beta started before its window")
	}

	if err := mgr.Step(nil, nil, 2.0, 100); err != nil {
		t.Fatalf("Step(2) error = %v", err)
	}
	if !b.Started() {
		t.Error("Beta not started after Step(2)")
	}

	if err := mgr.Step(nil, nil, 5.0, 100); err != nil {
		t.Fatalf("Step(5) error = %v", err)
	}
	if !a.Ended() || !b.Ended() {
		t.Errorf("ended = (%v, %v) after Step(5), want both true", a.Ended(), b.Ended())
	}

	if err := mgr.Finalize(nil, true); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if a.Initialized() || b.Initialized() {
		t.Error("members still initialized after Finalize")
	}
}

func TestManagerLossUpdateThreading(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	mgr := newTestManager(t, a)

	if err := mgr.Initialize(nil, 0.0); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	loss, err := mgr.LossUpdate(1.25, nil, nil, 0.0, 100)
	if err != nil {
		t.Fatalf("LossUpdate() error = %v", err)
	}
	if loss != 1.25 {
		t.Errorf("LossUpdate() loss = %v, want pass-through 1.25", loss)
	}
}

func TestManagerStateDictRoundTrip(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	b := newStatefulModifier(t, "Beta", 0.0, 5.0)
	mgr := newTestManager(t, a, b)

	if err := mgr.Initialize(nil, 0.0); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := mgr.Step(nil, nil, 0.0, 100); err != nil {
		t.Fatalf("Step(0) error = %v", err)
	}
	a.value = 3.5
	b.value = 7.0

	sd := mgr.StateDict()
	if len(sd) != 2 {
		t.Fatalf("StateDict() has %d keys, want 2: %v", len(sd), sd)
	}
	if got := sd["0_Alpha/state"]["value"]; got != 3.5 {
		t.Errorf("Alpha state = %v, want 3.5", got)
	}
	if got := sd["1_Beta/state"]["value"]; got != 7.0 {
		t.Errorf("Beta state = %v, want 7.0", got)
	}

	// Load into a fresh pair.
	a2 := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	b2 := newStatefulModifier(t, "Beta", 0.0, 5.0)
	mgr2 := newTestManager(t, a2, b2)
	if err := mgr2.LoadStateDict(sd, true); err != nil {
		t.Fatalf("LoadStateDict() error = %v", err)
	}
	if a2.value != 3.5 || b2.value != 7.0 {
		t.Errorf("restored values = (%v, %v), want (3.5, 7.0)", a2.value, b2.value)
	}
}

func TestManagerLoadStateDictStrictUnknownKeys(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	mgr := newTestManager(t, a)

	sd := StateDict{
		"0_Alpha/state":   {"value": 1.0},
		"9_Missing/state": {"value": 2.0},
		"garbage":         {},
	}

	err := mgr.LoadStateDict(sd, true)
	if err == nil {
		t.Fatal("LoadStateDict(strict) = nil, want error for unknown keys")
	}
	if !errors.Is(err, ErrStateDict) {
		t.Errorf("error %v does not match ErrStateDict", err)
	}
	var sde *StateDictError
	if !errors.As(err, &sde) {
		t.Fatalf("error %v is not a *StateDictError", err)
	}
	if len(sde.Keys) != 2 || sde.Keys[0] != "9_Missing/state" || sde.Keys[1] != "garbage" {
		t.Errorf("StateDictError.Keys = %v, want sorted unknown keys", sde.Keys)
	}

	// Lenient load routes what it can and drops the rest.
	if err := mgr.LoadStateDict(sd, false); err != nil {
		t.Fatalf("LoadStateDict(lenient) error = %v", err)
	}
	if a.value != 1.0 {
		t.Errorf("Alpha value = %v, want 1.0", a.value)
	}
}

func TestManagerRunID(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	if a.RunID() == "" {
		t.Fatal("RunID() is empty")
	}
	if a.RunID() == b.RunID() {
		t.Error("two managers share a run id")
	}
}

func TestManagerClose(t *testing.T) {
	a := newStatefulModifier(t, "Alpha", 0.0, 5.0)
	mgr := newTestManager(t, a)

	if err := mgr.Initialize(nil, 0.0); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.Initialized() {
		t.Error("member still initialized after Close")
	}
}
