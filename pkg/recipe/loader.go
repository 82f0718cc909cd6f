// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sparsekit/pkg/logging"
	"github.com/AleutianAI/sparsekit/pkg/modifier"
	"github.com/AleutianAI/sparsekit/pkg/telemetry"
)

// Document is the top-level recipe shape.
type Document struct {
	// Version is the recipe schema version; only "1.0" is accepted.
	Version string `yaml:"version"`

	// Modifiers are built in order; order is preserved in the manager.
	Modifiers []Entry `yaml:"modifiers"`
}

// Entry names one modifier type plus its parameters.
type Entry struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

// SchemaVersion is the recipe version this loader accepts.
const SchemaVersion = "1.0"

var paramValidator = validator.New()

// DecodeParams strictly decodes a params node into a config struct:
// fields absent from the struct are errors. A zero node leaves the
// struct at its defaults. Builders call this before ValidateParams.
func DecodeParams(params *yaml.Node, out any) error {
	if params == nil || params.Kind == 0 {
		return nil
	}

	// yaml.Node.Decode has no strict mode; round-trip through a
	// decoder that does.
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("re-encoding params: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}

// ValidateParams runs struct validation tags over a decoded config.
func ValidateParams(cfg any) error {
	if err := paramValidator.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			f := ve[0]
			return fmt.Errorf("invalid param %q: failed %q constraint", f.Field(), f.Tag())
		}
		return fmt.Errorf("validating params: %w", err)
	}
	return nil
}

// Options configures recipe loading.
type Options struct {
	// Registry resolves modifier types; nil uses the default registry.
	Registry *Registry

	// Telemetry is the shared sink manager handed to the built
	// manager; nil builds one with no sinks.
	Telemetry *telemetry.Manager

	// Logger receives operational messages; nil stays quiet.
	Logger *logging.Logger
}

// Load parses a recipe document and builds a modifier manager from it.
// All decoding is strict; the first invalid entry aborts the load.
func Load(r io.Reader, opts Options) (*modifier.Manager, error) {
	reg := opts.Registry
	if reg == nil {
		reg = Default()
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding recipe: %w", err)
	}

	if doc.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported recipe version %q (want %q)", doc.Version, SchemaVersion)
	}
	if len(doc.Modifiers) == 0 {
		return nil, fmt.Errorf("recipe contains no modifiers")
	}

	mods := make([]modifier.Modifier, 0, len(doc.Modifiers))
	for i, entry := range doc.Modifiers {
		mod, err := reg.Build(entry.Type, &entry.Params)
		if err != nil {
			return nil, fmt.Errorf("recipe modifier %d: %w", i, err)
		}
		mods = append(mods, mod)
	}

	tm := opts.Telemetry
	if tm == nil {
		tm = telemetry.NewManager(telemetry.LogEveryEpoch)
	}

	mgr := modifier.NewManager(tm, opts.Logger, mods...)
	if opts.Logger != nil {
		opts.Logger.Info("recipe loaded", "modifiers", len(mods), "run_id", mgr.RunID())
	}
	return mgr, nil
}

// LoadFile loads a recipe from disk.
func LoadFile(path string, opts Options) (*modifier.Manager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recipe: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}
