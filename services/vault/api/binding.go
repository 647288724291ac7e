// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/muddelabs/meshvault/services/vault/datatypes"
)

// knownModalities is the closed set of settlement rails.
var knownModalities = map[datatypes.Modality]bool{
	datatypes.ModalityBank:        true,
	datatypes.ModalityMobileMoney: true,
	datatypes.ModalityShadowVault: true,
	datatypes.ModalityHelloPaisa:  true,
	datatypes.ModalityCrypto:      true,
	datatypes.ModalityMeshSync:    true,
}

// init registers the "modality" binding tag so transfer payloads are
// rejected before they reach the engine.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("modality", func(fl validator.FieldLevel) bool {
			return knownModalities[datatypes.Modality(fl.Field().String())]
		})
	}
}
