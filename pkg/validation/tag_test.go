// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		// Valid tags
		{"simple", "loss", false},
		{"type name", "DistillationModifier", false},
		{"namespaced", "DistillationModifier/kl_loss", false},
		{"underscore start", "_internal", false},
		{"dots and hyphens", "layer-3.weight", false},
		{"deep namespace", "a/b/c", false},

		// Invalid tags
		{"empty", "", true},
		{"leading digit", "3loss", true},
		{"leading slash", "/loss", true},
		{"trailing slash", "loss/", true},
		{"double slash", "a//b", true},
		{"spaces", "my loss", true},
		{"newline", "loss\nvalue", true},
		{"brace injection", "loss{job=\"x\"}", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTag(%q) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    string
		wantErr bool
	}{
		{"passthrough", "Modifier/loss", "Modifier/loss", false},
		{"trims space", "  loss  ", "loss", false},
		{"replaces spaces", "my loss", "my_loss", false},
		{"replaces braces", "loss{x}", "loss_x_", false},
		{"empty rejected", "", "", true},
		{"collapses to invalid", "///", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeTag(%q) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeTag(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestValidateTypeName(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		wantErr  bool
	}{
		{"modifier name", "MagnitudePruningModifier", false},
		{"short", "M", false},
		{"with digits", "Stage2Modifier", false},
		{"empty", "", true},
		{"lowercase start", "magnitudePruning", true},
		{"underscore", "My_Modifier", true},
		{"slash", "My/Modifier", true},
		{"too long", "A" + strings.Repeat("b", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTypeName(tt.typeName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTypeName(%q) error = %v, wantErr %v", tt.typeName, err, tt.wantErr)
			}
		})
	}
}
