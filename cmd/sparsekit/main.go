// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// sparsekit is the CLI for working with modifier recipes: validating
// them, listing the registered modifier types, and dry-running a
// schedule timeline without a training loop.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/sparsekit/pkg/logging"

	// Registered modifier types.
	_ "github.com/AleutianAI/sparsekit/pkg/modifiers/distillation"
	_ "github.com/AleutianAI/sparsekit/pkg/modifiers/pruning"
)

var (
	flagLogLevel string
	flagLogJSON  bool

	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sparsekit",
	Short: "Work with sparsekit modifier recipes",
	Long: `sparsekit validates modifier recipes, lists the registered modifier
types, and dry-runs recipe schedules against a synthetic epoch sweep.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger = logging.New(logging.Config{
			Level:     logging.ParseLevel(flagLogLevel),
			Component: "cli",
			JSON:      flagLogJSON,
		})
	}
}
