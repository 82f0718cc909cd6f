// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the modifier lifecycle.
//
// Typed errors returned by this package match these sentinels under
// errors.Is, so callers can branch on the class of failure without
// unpacking the concrete type.
var (
	// ErrLifecycle indicates an operation was invoked in the wrong
	// lifecycle state or through the wrong call path.
	ErrLifecycle = errors.New("modifier lifecycle violation")

	// ErrScheduleValidation indicates a start/end epoch relationship
	// violates the configured comparator or minimum bounds.
	ErrScheduleValidation = errors.New("schedule validation failed")

	// ErrStateDict indicates a strict state-dict load encountered keys
	// this modifier does not consume.
	ErrStateDict = errors.New("state dict contains unconsumed keys")
)

// LifecycleError reports an operation invoked in an illegal lifecycle
// state: before Initialize, while disabled, or bypassing a scheduled_*
// gate. It is always fatal to the call and never retried internally.
type LifecycleError struct {
	// Op is the operation that was rejected, e.g. "Update".
	Op string

	// Reason describes which guard rejected the call.
	Reason string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("modifier: %s: %s", e.Op, e.Reason)
}

func (e *LifecycleError) Is(target error) bool {
	return target == ErrLifecycle
}

// errNotInitialized builds the guard failure every per-step hook raises
// when called before Initialize.
func errNotInitialized(op string) error {
	return &LifecycleError{Op: op, Reason: "modifier must be initialized first"}
}

// errNotEnabled builds the guard failure raised by hooks that require
// the modifier to be enabled.
func errNotEnabled(op string) error {
	return &LifecycleError{Op: op, Reason: "modifier must be enabled"}
}

// ScheduleValidationError reports an illegal schedule configuration.
// Raised at construction and by explicit revalidation after mutation;
// the caller must supply a valid configuration, nothing is corrected
// silently.
type ScheduleValidationError struct {
	// Field names the offending schedule field ("start_epoch",
	// "end_epoch", "update_frequency").
	Field string

	// Reason describes the violated relationship.
	Reason string
}

func (e *ScheduleValidationError) Error() string {
	return fmt.Sprintf("modifier schedule: %s: %s", e.Field, e.Reason)
}

func (e *ScheduleValidationError) Is(target error) bool {
	return target == ErrScheduleValidation
}

// StateDictError reports unconsumed keys during a strict state-dict
// load. Keys holds every key the load could not attribute.
type StateDictError struct {
	Keys []string
}

func (e *StateDictError) Error() string {
	return fmt.Sprintf("modifier state dict: found extra keys [%s]", strings.Join(e.Keys, ", "))
}

func (e *StateDictError) Is(target error) bool {
	return target == ErrStateDict
}
