// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package distillation

import (
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/sparsekit/pkg/modifier"
	"github.com/AleutianAI/sparsekit/pkg/recipe"
)

// TypeName is the recipe type this package registers.
const TypeName = "DistillationModifier"

func init() {
	recipe.MustRegister(TypeName, buildFromRecipe)
}

func buildFromRecipe(params *yaml.Node) (modifier.Modifier, error) {
	cfg := DefaultConfig()
	if err := recipe.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if err := recipe.ValidateParams(cfg); err != nil {
		return nil, err
	}
	return New(cfg)
}
