// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault verifies the built-in configuration is valid and carries
// the documented coordination constants.
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Heartbeat.Interval.Std())
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.StaleAfter.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.Yield.TickInterval.Std())
	assert.Equal(t, 30, cfg.Yield.FlushEvery)
	assert.Equal(t, 500, cfg.LedgerCap)
	assert.Equal(t, 1, cfg.Nodes)
	assert.Equal(t, ":8380", cfg.API.Addr)
}

// TestLoadFile verifies YAML layering over defaults.
func TestLoadFile(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("partial file overrides only named fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meshvault.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
heartbeat:
  interval: 500ms
  stale_after: 4s
nodes: 3
log_level: debug
`), 0600))

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.Heartbeat.Interval.Std())
		assert.Equal(t, 4*time.Second, cfg.Heartbeat.StaleAfter.Std())
		assert.Equal(t, 3, cfg.Nodes)
		assert.Equal(t, "debug", cfg.LogLevel)
		// Untouched fields keep their defaults.
		assert.Equal(t, 500, cfg.LedgerCap)
		assert.Equal(t, 30, cfg.Yield.FlushEvery)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("nodes: [unclosed"), 0600))
		_, err := LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("bad duration fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "baddur.yaml")
		require.NoError(t, os.WriteFile(path, []byte("poll_interval: soon"), 0600))
		_, err := LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid duration")
	})
}

// TestValidate verifies coordination-breaking configurations are
// rejected.
func TestValidate(t *testing.T) {
	mutate := func(fn func(*Config)) Config {
		cfg := Default()
		fn(&cfg)
		return cfg
	}

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			"stale window below heartbeat",
			mutate(func(c *Config) { c.Heartbeat.StaleAfter = c.Heartbeat.Interval }),
			"stale_after",
		},
		{
			"non-positive heartbeat",
			mutate(func(c *Config) { c.Heartbeat.Interval = 0 }),
			"heartbeat.interval",
		},
		{
			"non-positive tick",
			mutate(func(c *Config) { c.Yield.TickInterval = 0 }),
			"tick_interval",
		},
		{
			"non-positive flush cadence",
			mutate(func(c *Config) { c.Yield.FlushEvery = 0 }),
			"flush_every",
		},
		{
			"non-positive ledger cap",
			mutate(func(c *Config) { c.LedgerCap = -1 }),
			"ledger_cap",
		},
		{
			"zero nodes",
			mutate(func(c *Config) { c.Nodes = 0 }),
			"nodes",
		},
		{
			"persistent storage without path",
			mutate(func(c *Config) { c.Storage.Path = "" }),
			"storage.path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("in-memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Path = ""
		cfg.Storage.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}
