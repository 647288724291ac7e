// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for externally supplied
// identifiers. The price revaluation endpoint accepts arbitrary symbol
// keys from the market-data producer; validating them here keeps junk
// keys out of the persisted account state.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolPattern matches asset symbols and derived quote keys.
// Allows: uppercase letters, digits, dots (BRK.A), hyphens (BF-B).
// Max length: 12 characters (covers "<SYM>USD" quote keys).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// ValidateSymbol validates an asset symbol or quote key.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q (must be 1-12 uppercase alphanumeric chars, dots, or hyphens)", symbol)
	}
	return nil
}

// SanitizeSymbol normalizes and validates a symbol, returning the
// uppercase form.
func SanitizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if err := ValidateSymbol(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizePriceMap validates and normalizes every key of a price map,
// dropping entries with non-positive prices. Returns an error listing
// all invalid keys if any fail.
func SanitizePriceMap(prices map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(prices))
	var invalid []string
	for symbol, price := range prices {
		normalized, err := SanitizeSymbol(symbol)
		if err != nil {
			invalid = append(invalid, symbol)
			continue
		}
		if price > 0 {
			out[normalized] = price
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid symbols: %v", invalid)
	}
	return out, nil
}
