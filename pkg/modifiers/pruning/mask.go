// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pruning implements magnitude-based weight pruning driven by
// the scheduled-modifier lifecycle: a sparsity target interpolated
// across the active window, re-applied at the configured update
// frequency.
package pruning

import (
	"fmt"
	"math"
	"sort"
)

// Mask is a 0/1 vector matching a weight tensor's layout.
type Mask []float64

// MaskFromSparsity builds an unstructured magnitude mask: the sparsity
// fraction of weights with the smallest absolute values get 0, the rest
// get 1. Ties at the threshold prune in sort order, so the achieved
// sparsity matches the request to within one element.
func MaskFromSparsity(weights []float64, sparsity float64) (Mask, error) {
	if sparsity < 0 || sparsity > 1 {
		return nil, fmt.Errorf("sparsity %v out of [0, 1]", sparsity)
	}

	n := len(weights)
	mask := make(Mask, n)
	for i := range mask {
		mask[i] = 1
	}
	pruneCount := int(math.Round(sparsity * float64(n)))
	if pruneCount == 0 {
		return mask, nil
	}
	if pruneCount >= n {
		for i := range mask {
			mask[i] = 0
		}
		return mask, nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(weights[idx[a]]) < math.Abs(weights[idx[b]])
	})

	for _, i := range idx[:pruneCount] {
		mask[i] = 0
	}
	return mask, nil
}

// Apply zeroes masked weights in place and returns the slice.
func (m Mask) Apply(weights []float64) ([]float64, error) {
	if len(m) != len(weights) {
		return nil, fmt.Errorf("mask length %d does not match weights length %d", len(m), len(weights))
	}
	for i := range weights {
		weights[i] *= m[i]
	}
	return weights, nil
}

// Sparsity measures the fraction of zero entries in a weight vector.
func Sparsity(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	zeros := 0
	for _, w := range weights {
		if w == 0 {
			zeros++
		}
	}
	return float64(zeros) / float64(len(weights))
}

// PruneUnstructured applies a one-shot magnitude mask at the given
// sparsity, in place.
func PruneUnstructured(weights []float64, sparsity float64) ([]float64, error) {
	mask, err := MaskFromSparsity(weights, sparsity)
	if err != nil {
		return nil, err
	}
	return mask.Apply(weights)
}
