// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/validation"
)

// ConsoleSink writes telemetry events through a structured logger.
type ConsoleSink struct {
	logger *logging.Logger
}

// NewConsoleSink wraps the given logger as a telemetry sink. A nil
// logger falls back to logging.Default().
func NewConsoleSink(logger *logging.Logger) *ConsoleSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsoleSink{logger: logger}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) LogScalar(tag string, value float64, step int, level logging.Level) {
	s.logger.Log(level, "scalar", "tag", tag, "value", value, "step", step)
}

func (s *ConsoleSink) LogString(tag, msg string, step int, level logging.Level) {
	s.logger.Log(level, msg, "tag", tag, "step", step)
}

const metricsNamespace = "sparsekit"

// PrometheusSink exports scalar telemetry as prometheus gauges labeled
// by tag. String events only increment an event counter; prometheus has
// no string payloads.
//
// Tags are sanitized before use as label values; events whose tag
// cannot be sanitized are dropped and counted.
type PrometheusSink struct {
	scalars  *prometheus.GaugeVec
	lastStep *prometheus.GaugeVec
	events   *prometheus.CounterVec
	dropped  prometheus.Counter
}

// NewPrometheusSink registers the sink's metrics with reg. Pass
// prometheus.DefaultRegisterer for normal operation or a fresh registry
// in tests. Panics on duplicate registration, matching promauto.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		scalars: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "modifier_scalar",
				Help:      "Most recent scalar value logged per telemetry tag",
			},
			[]string{"tag"},
		),
		lastStep: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "modifier_scalar_step",
				Help:      "Training step of the most recent scalar per telemetry tag",
			},
			[]string{"tag"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "modifier_events_total",
				Help:      "Total telemetry events by tag and kind",
			},
			[]string{"tag", "kind"},
		),
		dropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "modifier_events_dropped_total",
				Help:      "Telemetry events dropped due to unusable tags",
			},
		),
	}
}

func (s *PrometheusSink) Name() string { return "prometheus" }

func (s *PrometheusSink) LogScalar(tag string, value float64, step int, level logging.Level) {
	safe, err := validation.SanitizeTag(tag)
	if err != nil {
		s.dropped.Inc()
		return
	}
	s.scalars.WithLabelValues(safe).Set(value)
	if step >= 0 {
		s.lastStep.WithLabelValues(safe).Set(float64(step))
	}
	s.events.WithLabelValues(safe, "scalar").Inc()
}

func (s *PrometheusSink) LogString(tag, msg string, step int, level logging.Level) {
	safe, err := validation.SanitizeTag(tag)
	if err != nil {
		s.dropped.Inc()
		return
	}
	s.events.WithLabelValues(safe, "string").Inc()
}

// ScalarEvent is one recorded scalar emission.
type ScalarEvent struct {
	Tag   string
	Value float64
	Step  int
	Level logging.Level
}

// StringEvent is one recorded string emission.
type StringEvent struct {
	Tag   string
	Msg   string
	Step  int
	Level logging.Level
}

// RecordingSink collects events in memory for assertions in tests.
type RecordingSink struct {
	mu      sync.Mutex
	scalars []ScalarEvent
	strings []StringEvent
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Name() string { return "recording" }

func (s *RecordingSink) LogScalar(tag string, value float64, step int, level logging.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars = append(s.scalars, ScalarEvent{Tag: tag, Value: value, Step: step, Level: level})
}

func (s *RecordingSink) LogString(tag, msg string, step int, level logging.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings = append(s.strings, StringEvent{Tag: tag, Msg: msg, Step: step, Level: level})
}

// Scalars returns a copy of the recorded scalar events.
func (s *RecordingSink) Scalars() []ScalarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScalarEvent, len(s.scalars))
	copy(out, s.scalars)
	return out
}

// Strings returns a copy of the recorded string events.
func (s *RecordingSink) Strings() []StringEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StringEvent, len(s.strings))
	copy(out, s.strings)
	return out
}

// Reset clears all recorded events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars = nil
	s.strings = nil
}

var (
	_ Sink = (*ConsoleSink)(nil)
	_ Sink = (*PrometheusSink)(nil)
	_ Sink = (*RecordingSink)(nil)
)
