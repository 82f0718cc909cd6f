// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"math"
	"testing"

	"github.com/AleutianAI/sparsekit/pkg/logging"
)

func TestLogReady(t *testing.T) {
	tests := []struct {
		name      string
		frequency float64
		epoch     float64
		lastLog   float64
		want      bool
	}{
		{"every epoch first emission", LogEveryEpoch, 0.0, -1.0, true},
		{"every epoch repeat", LogEveryEpoch, 1.0, 1.0, true},
		{"never", LogNever, 5.0, -1.0, false},
		{"interval not elapsed", 1.0, 0.5, 0.0, false},
		{"interval exactly elapsed", 1.0, 1.0, 0.0, true},
		{"interval over-elapsed", 1.0, 3.0, 0.0, true},
		{"unknown epoch passes", 1.0, -1.0, 5.0, true},
		{"unknown last passes", 1.0, 0.5, -1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.frequency)
			if got := m.LogReady(tt.epoch, tt.lastLog); got != tt.want {
				t.Errorf("LogReady(%v, %v) with frequency %v = %v, want %v",
					tt.epoch, tt.lastLog, tt.frequency, got, tt.want)
			}
		})
	}
}

func TestEpochToStep(t *testing.T) {
	tests := []struct {
		name          string
		epoch         float64
		stepsPerEpoch int
		want          int
	}{
		{"origin", 0.0, 100, 0},
		{"whole epoch", 2.0, 100, 200},
		{"fractional epoch", 1.5, 100, 150},
		{"rounds nearest", 1.004, 100, 100},
		{"rounds up", 1.006, 100, 101},
		{"negative epoch", -1.0, 100, -1},
		{"zero steps", 1.0, 0, -1},
		{"negative steps", 1.0, -5, -1},
		{"infinite epoch", math.Inf(1), 100, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(LogEveryEpoch)
			if got := m.EpochToStep(tt.epoch, tt.stepsPerEpoch); got != tt.want {
				t.Errorf("EpochToStep(%v, %d) = %d, want %d", tt.epoch, tt.stepsPerEpoch, got, tt.want)
			}
		})
	}
}

func TestManagerFanOut(t *testing.T) {
	a := NewRecordingSink()
	b := NewRecordingSink()
	m := NewManager(LogEveryEpoch, a, b)

	m.LogScalar("tag", 1.5, 10, logging.LevelInfo)
	m.LogString("tag", "checkpoint", 10, logging.LevelInfo)

	for i, sink := range []*RecordingSink{a, b} {
		if got := len(sink.Scalars()); got != 1 {
			t.Errorf("sink %d scalars = %d, want 1", i, got)
		}
		if got := len(sink.Strings()); got != 1 {
			t.Errorf("sink %d strings = %d, want 1", i, got)
		}
	}

	sc := a.Scalars()[0]
	if sc.Tag != "tag" || sc.Value != 1.5 || sc.Step != 10 {
		t.Errorf("recorded scalar = %+v", sc)
	}
}

func TestManagerAddSink(t *testing.T) {
	m := NewManager(LogEveryEpoch)
	if !m.Empty() {
		t.Fatal("Empty() = false for sink-free manager")
	}

	m.AddSink(NewRecordingSink())
	if m.Empty() {
		t.Error("Empty() = true after AddSink")
	}
	if got := len(m.Sinks()); got != 1 {
		t.Errorf("Sinks() length = %d, want 1", got)
	}
}

func TestRecordingSinkReset(t *testing.T) {
	rec := NewRecordingSink()
	rec.LogScalar("a", 1.0, 0, logging.LevelInfo)
	rec.LogString("a", "msg", 0, logging.LevelInfo)

	rec.Reset()
	if len(rec.Scalars()) != 0 || len(rec.Strings()) != 0 {
		t.Error("Reset() did not clear recorded events")
	}
}
