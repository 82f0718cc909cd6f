// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package modifier implements the scheduled-modifier lifecycle state
// machine that decides when training-time modifications (pruning masks,
// distillation losses, quantization schedules) run, and validates how
// the surrounding training loop drives them.
//
// The package owns orchestration only. What a modification does is
// injected as a strategy value (see Updater and friends); the tensor
// framework, model, and optimizer stay opaque handles the core forwards
// untouched.
//
// # Lifecycle
//
//	Initialize
//	  (loggers attached, idempotent when already populated)
//
//	training loop, each step:
//	  UpdateReady true → ScheduledUpdate → strategy OnUpdate
//	  ScheduledLogUpdate cadence → strategy OnLogUpdate
//	  LossUpdate                     (runs regardless of window)
//	  OptimizerPreStep / OptimizerPostStep        (likewise)
//
//	Finalize (or Close as scoped teardown)
//
// A Scheduled modifier moves through pending → started → ended, gated
// by its Schedule window; started and ended are monotonic until
// Finalize. ScheduledUpdate is the only legal caller of Update, and
// ScheduledLogUpdate the only legal caller of LogUpdate; direct calls
// fail with a LifecycleError. A ScheduledUpdater re-triggers inside
// the open window at its configured update frequency.
//
// # Concurrency
//
// One training loop drives one modifier instance sequentially. The
// reentrancy guards are per-instance and not thread-safe; concurrent
// lifecycle calls on one instance are unsupported. The telemetry
// manager may be shared across modifiers and goroutines.
package modifier
