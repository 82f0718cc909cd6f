// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pruning

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/modifier"
)

// Weights is the target handle convention this modifier understands:
// named weight tensors the training loop exposes for masking. Targets
// of any other type make gated updates fail, surfacing the
// misconfiguration instead of silently not pruning.
type Weights map[string][]float64

// Config declares the recipe-facing parameters.
type Config struct {
	// StartEpoch must be >= 0; the sparsity ramp needs a concrete
	// window.
	StartEpoch float64 `yaml:"start_epoch" validate:"gte=0"`

	// EndEpoch must be strictly greater than StartEpoch.
	EndEpoch float64 `yaml:"end_epoch" validate:"gtfield=StartEpoch"`

	// UpdateFrequency is how often, in epoch units, the mask is
	// recomputed inside the window.
	UpdateFrequency float64 `yaml:"update_frequency"`

	// InitSparsity is the ramp's starting sparsity at StartEpoch.
	InitSparsity float64 `yaml:"init_sparsity" validate:"gte=0,lte=1"`

	// FinalSparsity is the ramp's target sparsity at EndEpoch.
	FinalSparsity float64 `yaml:"final_sparsity" validate:"gte=0,lte=1"`

	// InterExponent shapes the ramp; 3 gives the usual cubic schedule
	// that prunes aggressively early and tapers off.
	InterExponent float64 `yaml:"inter_exponent"`
}

// DefaultConfig returns the parameter defaults applied before recipe
// decoding.
func DefaultConfig() Config {
	return Config{
		UpdateFrequency: 1.0,
		InitSparsity:    0.05,
		FinalSparsity:   0.85,
		InterExponent:   3.0,
	}
}

// MagnitudePruningModifier interpolates a sparsity target across its
// window and re-applies magnitude masks at the update frequency.
type MagnitudePruningModifier struct {
	*modifier.ScheduledUpdater

	cfg Config

	appliedSparsity float64
}

var _ modifier.Modifier = (*MagnitudePruningModifier)(nil)

// New constructs the modifier from config. The schedule uses the
// strictly-greater comparator: a zero-width window cannot host a ramp.
func New(cfg Config) (*MagnitudePruningModifier, error) {
	sched, err := modifier.NewSchedule(cfg.StartEpoch, 0.0, cfg.EndEpoch, 0.0, modifier.CompareStrictlyGreater)
	if err != nil {
		return nil, err
	}
	if cfg.FinalSparsity < cfg.InitSparsity {
		return nil, fmt.Errorf("pruning: final_sparsity %v below init_sparsity %v", cfg.FinalSparsity, cfg.InitSparsity)
	}
	if cfg.InterExponent <= 0 {
		return nil, fmt.Errorf("pruning: inter_exponent must be > 0, got %v", cfg.InterExponent)
	}

	m := &MagnitudePruningModifier{cfg: cfg}
	core, err := modifier.NewScheduledUpdater(sched, cfg.UpdateFrequency, 0.0, modifier.WithStrategy(m))
	if err != nil {
		return nil, err
	}
	m.ScheduledUpdater = core
	return m, nil
}

// AppliedSparsity returns the sparsity applied by the most recent
// gated update.
func (m *MagnitudePruningModifier) AppliedSparsity() float64 { return m.appliedSparsity }

// SparsityAt interpolates the ramp at the given epoch, clamped to the
// window: final + (init - final) * (1 - progress)^exponent.
func (m *MagnitudePruningModifier) SparsityAt(epoch float64) float64 {
	start, end := m.cfg.StartEpoch, m.cfg.EndEpoch
	if epoch <= start {
		return m.cfg.InitSparsity
	}
	if epoch >= end {
		return m.cfg.FinalSparsity
	}
	progress := (epoch - start) / (end - start)
	return m.cfg.FinalSparsity +
		(m.cfg.InitSparsity-m.cfg.FinalSparsity)*math.Pow(1-progress, m.cfg.InterExponent)
}

// OnUpdate recomputes and applies the magnitude mask for the current
// ramp position to every tensor in the target.
func (m *MagnitudePruningModifier) OnUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	weights, ok := target.(Weights)
	if !ok {
		return fmt.Errorf("pruning: target is %T, want pruning.Weights", target)
	}

	sparsity := m.SparsityAt(epoch)
	for name, tensor := range weights {
		if _, err := PruneUnstructured(tensor, sparsity); err != nil {
			return fmt.Errorf("pruning %q: %w", name, err)
		}
	}
	m.appliedSparsity = sparsity
	return nil
}

// OnLogUpdate emits the ramp target and applied sparsity.
func (m *MagnitudePruningModifier) OnLogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	m.LogNamedScalars([]modifier.NamedScalar{
		{Name: "target_sparsity", Value: m.SparsityAt(epoch)},
		{Name: "applied_sparsity", Value: m.appliedSparsity},
	}, epoch, stepsPerEpoch, logging.LevelDebug)
	return nil
}

// stateKeySparsity is the modifier's contribution to the state dict.
const stateKeySparsity = "sparsity"

// StateDict exports the applied sparsity so a resumed run re-applies
// the same mask level before the next gated update.
func (m *MagnitudePruningModifier) StateDict() modifier.StateDict {
	return modifier.StateDict{
		stateKeySparsity: {
			"applied":           m.appliedSparsity,
			"last_update_epoch": m.LastUpdateEpoch(),
		},
	}
}

// LoadStateDict consumes the sparsity entry and delegates any leftover
// keys to the base strict handling.
func (m *MagnitudePruningModifier) LoadStateDict(sd modifier.StateDict, strict bool) error {
	rest := modifier.StateDict{}
	for k, v := range sd {
		if k == stateKeySparsity {
			if applied, ok := v["applied"]; ok {
				m.appliedSparsity = applied
			}
			continue
		}
		rest[k] = v
	}

	if strict && len(rest) > 0 {
		keys := make([]string, 0, len(rest))
		for k := range rest {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &modifier.StateDictError{Keys: keys}
	}
	return nil
}
