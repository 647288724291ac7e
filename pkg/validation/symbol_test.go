// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateSymbol verifies accepted and rejected symbol shapes.
func TestValidateSymbol(t *testing.T) {
	valid := []string{"BTC", "ETH", "BTCUSD", "BRK.A", "BF-B", "X", "A23456789012"}
	for _, s := range valid {
		assert.NoError(t, ValidateSymbol(s), "symbol %q", s)
	}

	invalid := []string{"", "btc", "BTC USD", ".BTC", "-X", "TOOLONGSYMBOL", "BTC$", "B TC"}
	for _, s := range invalid {
		assert.Error(t, ValidateSymbol(s), "symbol %q", s)
	}
}

// TestSanitizeSymbol verifies normalization before validation.
func TestSanitizeSymbol(t *testing.T) {
	got, err := SanitizeSymbol("  btc ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", got)

	_, err = SanitizeSymbol(" @bad ")
	assert.Error(t, err)
}

// TestSanitizePriceMap verifies key normalization, non-positive price
// dropping, and the all-invalid-keys error.
func TestSanitizePriceMap(t *testing.T) {
	t.Run("normalizes and filters", func(t *testing.T) {
		out, err := SanitizePriceMap(map[string]float64{
			"btcusd": 100000,
			"ETH":    4000,
			"SOL":    0,  // dropped
			"XMR":    -2, // dropped
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"BTCUSD": 100000, "ETH": 4000}, out)
	})

	t.Run("invalid keys fail the batch", func(t *testing.T) {
		_, err := SanitizePriceMap(map[string]float64{
			"BTC":  100000,
			"b@d!": 1,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "b@d!")
	})

	t.Run("empty input", func(t *testing.T) {
		out, err := SanitizePriceMap(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
