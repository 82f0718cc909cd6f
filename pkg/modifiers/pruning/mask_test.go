// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pruning

import (
	"math"
	"testing"
)

func TestMaskFromSparsity(t *testing.T) {
	weights := []float64{0.1, -0.9, 0.05, 0.7, -0.02, 0.4, 0.3, -0.6, 0.08, 0.5}

	tests := []struct {
		name      string
		sparsity  float64
		wantZeros int
	}{
		{"none", 0.0, 0},
		{"half", 0.5, 5},
		{"all", 1.0, 10},
		{"rounds", 0.25, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask, err := MaskFromSparsity(weights, tt.sparsity)
			if err != nil {
				t.Fatalf("MaskFromSparsity(%v) error = %v", tt.sparsity, err)
			}
			zeros := 0
			for _, v := range mask {
				if v == 0 {
					zeros++
				}
			}
			if zeros != tt.wantZeros {
				t.Errorf("zeros = %d at sparsity %v, want %d", zeros, tt.sparsity, tt.wantZeros)
			}
		})
	}
}

func TestMaskFromSparsityPrunesSmallestMagnitudes(t *testing.T) {
	weights := []float64{0.1, -0.9, 0.05, 0.7, -0.02}

	mask, err := MaskFromSparsity(weights, 0.4)
	if err != nil {
		t.Fatalf("MaskFromSparsity() error = %v", err)
	}

	// The two smallest magnitudes are 0.02 and 0.05.
	want := Mask{1, 1, 0, 1, 0}
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("mask = %v, want %v", mask, want)
		}
	}
}

func TestMaskFromSparsityRange(t *testing.T) {
	if _, err := MaskFromSparsity([]float64{1}, -0.1); err == nil {
		t.Error("negative sparsity accepted")
	}
	if _, err := MaskFromSparsity([]float64{1}, 1.1); err == nil {
		t.Error("sparsity above 1 accepted")
	}
}

func TestMaskApply(t *testing.T) {
	weights := []float64{1.0, 2.0, 3.0}
	mask := Mask{1, 0, 1}

	out, err := mask.Apply(weights)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out[0] != 1.0 || out[1] != 0.0 || out[2] != 3.0 {
		t.Errorf("Apply() = %v, want [1 0 3]", out)
	}

	if _, err := (Mask{1}).Apply(weights); err == nil {
		t.Error("length mismatch accepted")
	}
}

func TestSparsity(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"dense", []float64{1, 2, 3}, 0},
		{"half", []float64{0, 1, 0, 2}, 0.5},
		{"all zero", []float64{0, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sparsity(tt.weights); got != tt.want {
				t.Errorf("Sparsity(%v) = %v, want %v", tt.weights, got, tt.want)
			}
		})
	}
}

func TestPruneUnstructuredAchievesTarget(t *testing.T) {
	weights := make([]float64, 100)
	for i := range weights {
		weights[i] = math.Sin(float64(i + 1))
	}

	if _, err := PruneUnstructured(weights, 0.85); err != nil {
		t.Fatalf("PruneUnstructured() error = %v", err)
	}
	if got := Sparsity(weights); got != 0.85 {
		t.Errorf("achieved sparsity = %v, want 0.85", got)
	}
}
