// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pruning

import (
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/sparsekit/pkg/modifier"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartEpoch = 0.0
	cfg.EndEpoch = 10.0
	return cfg
}

func newTestModifier(t *testing.T, cfg Config) *MagnitudePruningModifier {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func testWeights(n int) Weights {
	layer := make([]float64, n)
	for i := range layer {
		layer[i] = math.Sin(float64(i + 1))
	}
	return Weights{"layer": layer}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with window", func(c *Config) {}, false},
		{"zero-width window", func(c *Config) { c.EndEpoch = c.StartEpoch }, true},
		{"negative start", func(c *Config) { c.StartEpoch = -1.0 }, true},
		{"final below init", func(c *Config) { c.InitSparsity = 0.9; c.FinalSparsity = 0.5 }, true},
		{"zero exponent", func(c *Config) { c.InterExponent = 0 }, true},
		{"linear ramp", func(c *Config) { c.InterExponent = 1.0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSparsityAtRamp(t *testing.T) {
	cfg := testConfig()
	m := newTestModifier(t, cfg)

	if got := m.SparsityAt(-1.0); got != cfg.InitSparsity {
		t.Errorf("SparsityAt(before window) = %v, want init %v", got, cfg.InitSparsity)
	}
	if got := m.SparsityAt(0.0); got != cfg.InitSparsity {
		t.Errorf("SparsityAt(start) = %v, want init %v", got, cfg.InitSparsity)
	}
	if got := m.SparsityAt(10.0); got != cfg.FinalSparsity {
		t.Errorf("SparsityAt(end) = %v, want final %v", got, cfg.FinalSparsity)
	}
	if got := m.SparsityAt(15.0); got != cfg.FinalSparsity {
		t.Errorf("SparsityAt(past end) = %v, want final %v", got, cfg.FinalSparsity)
	}

	// Monotonically non-decreasing across the window.
	prev := cfg.InitSparsity
	for epoch := 0.5; epoch < 10.0; epoch += 0.5 {
		got := m.SparsityAt(epoch)
		if got < prev {
			t.Fatalf("SparsityAt(%v) = %v, decreased from %v", epoch, got, prev)
		}
		prev = got
	}

	// Cubic shape: the midpoint sits above linear interpolation.
	mid := m.SparsityAt(5.0)
	linear := cfg.InitSparsity + 0.5*(cfg.FinalSparsity-cfg.InitSparsity)
	if mid <= linear {
		t.Errorf("SparsityAt(mid) = %v, want above linear %v for cubic ramp", mid, linear)
	}
}

func TestOnUpdateAppliesMasks(t *testing.T) {
	m := newTestModifier(t, testConfig())
	target := testWeights(100)

	if err := m.Initialize(target, 0.0, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer m.Close()

	if err := m.ScheduledUpdate(target, nil, 0.0, 100); err != nil {
		t.Fatalf("ScheduledUpdate(0) error = %v", err)
	}
	if got := Sparsity(target["layer"]); got != 0.05 {
		t.Errorf("sparsity after start edge = %v, want init 0.05", got)
	}
	if got := m.AppliedSparsity(); got != 0.05 {
		t.Errorf("AppliedSparsity() = %v, want 0.05", got)
	}

	// Drive the whole window; sparsity ramps to the final target.
	for epoch := 1.0; epoch <= 10.0; epoch++ {
		ready, err := m.UpdateReady(epoch, 100)
		if err != nil {
			t.Fatalf("UpdateReady(%v) error = %v", epoch, err)
		}
		if !ready {
			continue
		}
		if err := m.ScheduledUpdate(target, nil, epoch, 100); err != nil {
			t.Fatalf("ScheduledUpdate(%v) error = %v", epoch, err)
		}
	}

	if got := Sparsity(target["layer"]); got != 0.85 {
		t.Errorf("sparsity after window = %v, want final 0.85", got)
	}
	if !m.Ended() {
		t.Error("modifier did not end after the sweep")
	}
}

func TestOnUpdateWrongTargetType(t *testing.T) {
	m := newTestModifier(t, testConfig())
	if err := m.Initialize(nil, 0.0, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer m.Close()

	err := m.ScheduledUpdate("not weights", nil, 0.0, 100)
	if err == nil {
		t.Fatal("ScheduledUpdate(wrong target) = nil, want type error")
	}
}

func TestStateDictRoundTrip(t *testing.T) {
	m := newTestModifier(t, testConfig())
	target := testWeights(50)

	if err := m.Initialize(target, 0.0, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.ScheduledUpdate(target, nil, 0.0, 100); err != nil {
		t.Fatalf("ScheduledUpdate() error = %v", err)
	}

	sd := m.StateDict()
	if got := sd["sparsity"]["applied"]; got != 0.05 {
		t.Errorf("state applied = %v, want 0.05", got)
	}
	if got := sd["sparsity"]["last_update_epoch"]; got != 0.0 {
		t.Errorf("state last_update_epoch = %v, want 0", got)
	}

	restored := newTestModifier(t, testConfig())
	if err := restored.LoadStateDict(sd, true); err != nil {
		t.Fatalf("LoadStateDict() error = %v", err)
	}
	if got := restored.AppliedSparsity(); got != 0.05 {
		t.Errorf("restored AppliedSparsity() = %v, want 0.05", got)
	}
}

func TestLoadStateDictStrictUnknownKeys(t *testing.T) {
	m := newTestModifier(t, testConfig())

	sd := modifier.StateDict{
		"sparsity": {"applied": 0.3},
		"momentum": {"value": 1.0},
	}

	err := m.LoadStateDict(sd, true)
	if err == nil {
		t.Fatal("LoadStateDict(strict) = nil, want error for unknown keys")
	}
	if !errors.Is(err, modifier.ErrStateDict) {
		t.Errorf("error %v does not match ErrStateDict", err)
	}

	if err := m.LoadStateDict(sd, false); err != nil {
		t.Fatalf("LoadStateDict(lenient) error = %v", err)
	}
	if got := m.AppliedSparsity(); got != 0.3 {
		t.Errorf("AppliedSparsity() = %v, want 0.3", got)
	}
}

func TestPruningModifierInterface(t *testing.T) {
	m := newTestModifier(t, testConfig())
	var _ modifier.Modifier = m

	if got := m.Name(); got != "MagnitudePruningModifier" {
		t.Errorf("Name() = %q, want MagnitudePruningModifier", got)
	}
	if !m.HasCapability(modifier.CapabilityScheduled) || !m.HasCapability(modifier.CapabilityFrequencyGated) {
		t.Errorf("capabilities = %v, want scheduled and frequency-gated", m.Capabilities())
	}
}
