// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that cross
// trust boundaries.
//
// Telemetry tags become prometheus metric labels and log attributes;
// recipe type names select constructors from a registry. Validating both
// up front keeps malformed or hostile identifiers out of the sinks and
// the registry lookup.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tagPattern matches telemetry tags: a letter or underscore followed by
// word characters, with optional slash-separated segments
// (e.g. "DistillationModifier/kl_loss"). Max total length 128.
var tagPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*(/[A-Za-z_][A-Za-z0-9_.\-]*)*$`)

// typeNamePattern matches registered modifier type names: Go-exported
// identifier shape, 1-64 characters.
var typeNamePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]{0,63}$`)

// ValidateTag validates a telemetry tag before it reaches a metrics or
// logging sink.
//
// Valid tags:
//   - 1-128 characters
//   - segments of letters, digits, underscore, dot, hyphen
//   - segments separated by single slashes
//   - each segment starts with a letter or underscore
//
// Returns an error describing the violation if the tag is invalid.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}

	if len(tag) > 128 {
		return fmt.Errorf("tag too long: %d characters (max 128)", len(tag))
	}

	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("invalid tag format: %q", tag)
	}

	return nil
}

// SanitizeTag normalizes a tag to a sink-safe form: trims whitespace and
// replaces characters outside the allowed set with underscores, then
// validates the result.
//
// Use this on tags derived from runtime type names or user input:
//
//	tag, err := validation.SanitizeTag(rawTag)
//	if err != nil {
//	    return err
//	}
func SanitizeTag(tag string) (string, error) {
	trimmed := strings.TrimSpace(tag)

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-' || r == '/':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	if err := ValidateTag(sanitized); err != nil {
		return "", err
	}
	return sanitized, nil
}

// ValidateTypeName validates a modifier type name before registry
// lookup or registration.
//
// Valid names look like exported Go identifiers: uppercase first letter,
// alphanumeric, 1-64 characters (e.g. "MagnitudePruningModifier").
func ValidateTypeName(name string) error {
	if name == "" {
		return fmt.Errorf("type name cannot be empty")
	}

	if !typeNamePattern.MatchString(name) {
		return fmt.Errorf("invalid type name: %q (must be an exported identifier, 1-64 alphanumeric chars)", name)
	}

	return nil
}
