// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recipe builds modifier managers from declarative YAML
// recipes.
//
// A recipe names modifier types and their parameters; types resolve
// through a registry of builders that concrete modifier packages
// populate at init time. Decoding is strict end to end: unknown
// document fields, unknown modifier types, and unknown parameters are
// all construction errors.
package recipe

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sparsekit/pkg/modifier"
	"github.com/AleutianAI/sparsekit/pkg/validation"
)

// Builder constructs a modifier from its decoded params node.
type Builder func(params *yaml.Node) (modifier.Modifier, error)

// Registry maps modifier type names to builders.
//
// Thread-safe; packages register at init time and loaders read
// concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a builder under a type name. The name must look like an
// exported identifier; duplicate registration is an error so two
// packages cannot silently fight over a name.
func (r *Registry) Register(typeName string, b Builder) error {
	if err := validation.ValidateTypeName(typeName); err != nil {
		return fmt.Errorf("registering modifier type: %w", err)
	}
	if b == nil {
		return fmt.Errorf("registering modifier type %q: nil builder", typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[typeName]; exists {
		return fmt.Errorf("registering modifier type %q: already registered", typeName)
	}
	r.builders[typeName] = b
	return nil
}

// MustRegister is Register that panics on error; for init-time use.
func (r *Registry) MustRegister(typeName string, b Builder) {
	if err := r.Register(typeName, b); err != nil {
		panic(err.Error())
	}
}

// Build constructs a modifier of the named type.
func (r *Registry) Build(typeName string, params *yaml.Node) (modifier.Modifier, error) {
	if err := validation.ValidateTypeName(typeName); err != nil {
		return nil, fmt.Errorf("building modifier: %w", err)
	}

	r.mu.RLock()
	b, ok := r.builders[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("building modifier: unknown type %q (registered: %v)", typeName, r.Types())
	}
	return b(params)
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.builders))
	for name := range r.builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// defaultRegistry holds the modifier types shipped with sparsekit;
// concrete modifier packages populate it from init.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// MustRegister registers into the default registry, panicking on error.
func MustRegister(typeName string, b Builder) {
	defaultRegistry.MustRegister(typeName, b)
}
