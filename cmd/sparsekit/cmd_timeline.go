// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sparsekit/pkg/recipe"
	"github.com/AleutianAI/sparsekit/pkg/telemetry"

	"github.com/AleutianAI/sparsekit/pkg/modifiers/pruning"
)

var (
	flagTimelineEpochs float64
	flagTimelineSteps  int
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <recipe.yaml>",
	Short: "Dry-run a recipe schedule against a synthetic epoch sweep",
	Long: `timeline loads a recipe and drives it through a whole-epoch sweep
against a small synthetic weight set, printing which modifiers fire at
each epoch and every scalar they log. No training happens; this shows
the schedule a real run would follow.`,
	Args: cobra.ExactArgs(1),
	RunE: runTimeline,
}

func init() {
	timelineCmd.Flags().Float64Var(&flagTimelineEpochs, "epochs", 0, "epochs to sweep; 0 derives from the recipe's end epoch")
	timelineCmd.Flags().IntVar(&flagTimelineSteps, "steps-per-epoch", 100, "synthetic steps per epoch")
	rootCmd.AddCommand(timelineCmd)
}

// syntheticWeights builds a deterministic weight set large enough for
// sparsity ramps to show distinct levels in the output.
func syntheticWeights() pruning.Weights {
	layer := make([]float64, 64)
	for i := range layer {
		layer[i] = math.Sin(float64(i + 1))
	}
	return pruning.Weights{"layer0": layer}
}

func runTimeline(cmd *cobra.Command, args []string) error {
	path := args[0]

	rec := telemetry.NewRecordingSink()
	tm := telemetry.NewManager(telemetry.LogEveryEpoch, rec)

	mgr, err := recipe.LoadFile(path, recipe.Options{Telemetry: tm, Logger: logger})
	if err != nil {
		return fmt.Errorf("recipe %s: %w", path, err)
	}
	defer mgr.Close()

	epochs := flagTimelineEpochs
	if epochs <= 0 {
		epochs = mgr.MaxEndEpoch()
		if epochs < 0 {
			return fmt.Errorf("recipe %s never ends; pass --epochs to bound the sweep", path)
		}
		epochs++
	}

	target := syntheticWeights()
	if err := mgr.Initialize(target, 0.0); err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer mgr.Finalize(target, false)

	fmt.Printf("sweeping %g epochs, %d steps/epoch, run %s\n", epochs, flagTimelineSteps, mgr.RunID())
	for epoch := 0.0; epoch < epochs; epoch++ {
		var fired []string
		for _, mod := range mgr.Modifiers() {
			ready, err := mod.UpdateReady(epoch, flagTimelineSteps)
			if err != nil {
				return fmt.Errorf("epoch %g %s: %w", epoch, mod.Name(), err)
			}
			if ready {
				fired = append(fired, mod.Name())
			}
		}

		if err := mgr.Step(target, nil, epoch, flagTimelineSteps); err != nil {
			return fmt.Errorf("epoch %g: %w", epoch, err)
		}

		line := fmt.Sprintf("epoch %4g:", epoch)
		if len(fired) > 0 {
			line += " fired " + strings.Join(fired, ", ")
		} else {
			line += " idle"
		}
		fmt.Println(line)

		for _, ev := range rec.Scalars() {
			fmt.Printf("    %s = %.4f\n", ev.Tag, ev.Value)
		}
		rec.Reset()
	}

	fmt.Printf("final state:\n")
	for key, vals := range mgr.StateDict() {
		fmt.Printf("  %s: %v\n", key, vals)
	}
	return nil
}
