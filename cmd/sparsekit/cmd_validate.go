// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sparsekit/pkg/recipe"
)

var validateCmd = &cobra.Command{
	Use:   "validate <recipe.yaml>",
	Short: "Validate a modifier recipe",
	Long: `validate parses a recipe with strict decoding and constructs every
modifier in it. Unknown fields, unknown modifier types, and schedule
violations are reported as errors.

Exit codes:
  0  recipe is valid
  1  recipe failed to load or validate`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	mgr, err := recipe.LoadFile(path, recipe.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("recipe %s: %w", path, err)
	}
	defer mgr.Close()

	fmt.Printf("recipe %s: OK (%d modifiers)\n", path, len(mgr.Modifiers()))
	for i, mod := range mgr.Modifiers() {
		fmt.Printf("  %d. %s capabilities=%v\n", i, mod.Name(), capabilityNames(mod))
	}

	minStart := mgr.MinStartEpoch()
	maxEnd := mgr.MaxEndEpoch()
	fmt.Printf("window: start=%s end=%s\n", formatEpoch(minStart, "immediate"), formatEpoch(maxEnd, "never"))
	return nil
}

func formatEpoch(epoch float64, sentinel string) string {
	if epoch < 0 {
		return sentinel
	}
	return fmt.Sprintf("%g", epoch)
}
