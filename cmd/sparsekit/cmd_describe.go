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

	"github.com/AleutianAI/sparsekit/pkg/modifier"
	"github.com/AleutianAI/sparsekit/pkg/recipe"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "List the registered modifier types",
	Run:   runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) {
	types := recipe.Default().Types()
	fmt.Printf("%d registered modifier types:\n", len(types))
	for _, t := range types {
		fmt.Printf("  %s\n", t)
	}
}

// capabilityNames renders a modifier's declared capabilities for
// human-readable output.
func capabilityNames(mod modifier.Modifier) []string {
	var out []string
	for _, c := range []modifier.Capability{
		modifier.CapabilityScheduled,
		modifier.CapabilityFrequencyGated,
		modifier.CapabilityStructural,
	} {
		if mod.HasCapability(c) {
			out = append(out, string(c))
		}
	}
	return out
}
