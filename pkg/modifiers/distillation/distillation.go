// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package distillation adds a teacher-guided loss term during the
// modifier lifecycle's loss-update phase.
//
// The modifier blends a divergence between temperature-scaled student
// and teacher output distributions into the base loss while its
// schedule window is open. The tensor framework stays outside: outputs
// arrive as plain float slices wrapped in a Loss value by the training
// loop.
package distillation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/modifier"
)

// Loss is the handle the training loop threads through LossUpdate when
// distillation is in play. Base carries the task loss; Outputs carry
// the per-example class scores both models produced for the batch.
// Total is filled in by the modifier.
type Loss struct {
	Base    float64
	Student [][]float64
	Teacher [][]float64
	Labels  []int

	// Total is Base plus the weighted distillation term; valid after
	// LossUpdate while the modifier's window is open, otherwise equal
	// to Base.
	Total float64

	// Distillation is the unweighted divergence term from the last
	// computation.
	Distillation float64
}

// Config declares the recipe-facing parameters.
type Config struct {
	StartEpoch      float64 `yaml:"start_epoch"`
	EndEpoch        float64 `yaml:"end_epoch"`
	UpdateFrequency float64 `yaml:"update_frequency"`

	// NumberOfClasses is the width of the output distributions; the
	// only structurally required parameter.
	NumberOfClasses int `yaml:"number_of_classes" validate:"required,gt=0"`

	// Gain weights the distillation term against the base loss.
	// Conceptually in [0,1]; not range-checked.
	Gain float64 `yaml:"gain"`

	// Temperature softens both distributions before comparison.
	// Conceptually > 0; not range-checked.
	Temperature float64 `yaml:"temperature"`
}

// DefaultConfig returns the parameter defaults applied before recipe
// decoding.
func DefaultConfig() Config {
	return Config{
		StartEpoch:      -1.0,
		EndEpoch:        -1.0,
		UpdateFrequency: modifier.EveryOpportunity,
		Gain:            0.5,
		Temperature:     2.0,
	}
}

// DistillationModifier blends a teacher-guided divergence into the loss
// while its schedule window is open.
type DistillationModifier struct {
	*modifier.ScheduledUpdater

	cfg Config

	lastDistillationLoss float64
	lastTotalLoss        float64
}

var _ modifier.Modifier = (*DistillationModifier)(nil)

// New constructs the modifier from config.
func New(cfg Config) (*DistillationModifier, error) {
	if cfg.NumberOfClasses <= 0 {
		return nil, fmt.Errorf("distillation: number_of_classes is required and must be > 0, got %d", cfg.NumberOfClasses)
	}

	sched, err := modifier.NewSchedule(cfg.StartEpoch, -1.0, cfg.EndEpoch, -1.0, modifier.CompareLessEqual)
	if err != nil {
		return nil, err
	}

	m := &DistillationModifier{cfg: cfg}
	core, err := modifier.NewScheduledUpdater(sched, cfg.UpdateFrequency, -1.0, modifier.WithStrategy(m))
	if err != nil {
		return nil, err
	}
	m.ScheduledUpdater = core
	return m, nil
}

// NumberOfClasses returns the configured output width.
func (m *DistillationModifier) NumberOfClasses() int { return m.cfg.NumberOfClasses }

// Gain returns the distillation weighting.
func (m *DistillationModifier) Gain() float64 { return m.cfg.Gain }

// Temperature returns the softmax temperature.
func (m *DistillationModifier) Temperature() float64 { return m.cfg.Temperature }

// OnUpdate is the gated update hook. Distillation has no per-window
// work beyond the loss term itself, so the edges are bookkeeping only.
func (m *DistillationModifier) OnUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	return nil
}

// OnLossUpdate blends the distillation term into a *Loss handle while
// the window is open. Any other loss handle passes through untouched,
// as do calls outside the open window.
func (m *DistillationModifier) OnLossUpdate(loss any, target, optimizer any, epoch float64, stepsPerEpoch int) (any, error) {
	l, ok := loss.(*Loss)
	if !ok {
		return loss, nil
	}

	l.Total = l.Base
	if !m.Started() || m.Ended() {
		return l, nil
	}

	distill, err := m.ComputeDistillationLoss(l.Student, l.Teacher, l.Labels)
	if err != nil {
		return l, fmt.Errorf("distillation loss: %w", err)
	}

	l.Distillation = distill
	l.Total = m.ComputeTotalLoss(l.Base, distill)
	m.lastDistillationLoss = distill
	m.lastTotalLoss = l.Total
	return l, nil
}

// OnLogUpdate emits the most recent loss terms.
func (m *DistillationModifier) OnLogUpdate(target, optimizer any, epoch float64, stepsPerEpoch int) error {
	m.LogNamedScalars([]modifier.NamedScalar{
		{Name: "distillation_loss", Value: m.lastDistillationLoss},
		{Name: "total_loss", Value: m.lastTotalLoss},
	}, epoch, stepsPerEpoch, logging.LevelDebug)
	return nil
}

// ComputeDistillationLoss returns the mean KL divergence between the
// teacher and student output distributions after temperature scaling,
// scaled by temperature squared so gradients keep their magnitude as
// temperature grows.
func (m *DistillationModifier) ComputeDistillationLoss(student, teacher [][]float64, labels []int) (float64, error) {
	if len(student) != len(teacher) {
		return 0, fmt.Errorf("batch mismatch: %d student rows vs %d teacher rows", len(student), len(teacher))
	}
	if len(student) == 0 {
		return 0, nil
	}

	temp := m.cfg.Temperature
	if temp == 0 {
		temp = 1.0
	}

	var total float64
	for i := range student {
		if len(student[i]) != m.cfg.NumberOfClasses || len(teacher[i]) != m.cfg.NumberOfClasses {
			return 0, fmt.Errorf("row %d: want %d classes, got student=%d teacher=%d",
				i, m.cfg.NumberOfClasses, len(student[i]), len(teacher[i]))
		}
		total += klDivergence(teacher[i], student[i], temp)
	}

	return total / float64(len(student)) * temp * temp, nil
}

// ComputeTotalLoss combines the base loss with the weighted
// distillation term.
func (m *DistillationModifier) ComputeTotalLoss(loss, distillationLoss float64) float64 {
	return loss + m.cfg.Gain*distillationLoss
}

// klDivergence computes KL(p || q) where p and q are the softmax of the
// temperature-scaled score rows. Uses log-sum-exp for stability.
func klDivergence(pScores, qScores []float64, temperature float64) float64 {
	pLog := logSoftmax(pScores, temperature)
	qLog := logSoftmax(qScores, temperature)

	var kl float64
	for i := range pLog {
		p := math.Exp(pLog[i])
		kl += p * (pLog[i] - qLog[i])
	}
	return kl
}

// logSoftmax returns log(softmax(scores / temperature)).
func logSoftmax(scores []float64, temperature float64) []float64 {
	scaled := make([]float64, len(scores))
	for i, v := range scores {
		scaled[i] = v / temperature
	}
	lse := floats.LogSumExp(scaled)
	for i := range scaled {
		scaled[i] -= lse
	}
	return scaled
}
