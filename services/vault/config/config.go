// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads vault coordinator configuration from YAML,
// layered over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like "2s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StorageConfig selects the durable medium.
type StorageConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory uses a volatile store (testing, demos).
	InMemory bool `yaml:"in_memory"`
}

// HeartbeatConfig tunes presence tracking.
type HeartbeatConfig struct {
	Interval   Duration `yaml:"interval"`
	StaleAfter Duration `yaml:"stale_after"`
}

// YieldConfig tunes the yield generator.
type YieldConfig struct {
	TickInterval Duration `yaml:"tick_interval"`
	FlushEvery   int      `yaml:"flush_every"`
	Accelerator  float64  `yaml:"accelerator"`
}

// APIConfig tunes the HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the full coordinator configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Yield     YieldConfig     `yaml:"yield"`
	API       APIConfig       `yaml:"api"`

	// PollInterval is the fallback state refresh cadence.
	PollInterval Duration `yaml:"poll_interval"`

	// LedgerCap bounds ledger retention.
	LedgerCap int `yaml:"ledger_cap"`

	// Nodes is how many coordinator instances to run in this
	// process (>1 simulates a mesh over one shared store).
	Nodes int `yaml:"nodes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path: ".meshvault/data",
		},
		Heartbeat: HeartbeatConfig{
			Interval:   Duration(2 * time.Second),
			StaleAfter: Duration(10 * time.Second),
		},
		Yield: YieldConfig{
			TickInterval: Duration(100 * time.Millisecond),
			FlushEvery:   30,
			Accelerator:  1.000001,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8380",
		},
		PollInterval: Duration(2 * time.Second),
		LedgerCap:    500,
		Nodes:        1,
		LogLevel:     "info",
	}
}

// LoadFile reads a YAML file over the defaults. A missing path returns
// the defaults unchanged.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break coordination
// assumptions (e.g. a staleness window shorter than the heartbeat).
func (c Config) Validate() error {
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive")
	}
	if c.Heartbeat.StaleAfter <= c.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.stale_after must exceed heartbeat.interval")
	}
	if c.Yield.TickInterval <= 0 {
		return fmt.Errorf("yield.tick_interval must be positive")
	}
	if c.Yield.FlushEvery <= 0 {
		return fmt.Errorf("yield.flush_every must be positive")
	}
	if c.LedgerCap <= 0 {
		return fmt.Errorf("ledger_cap must be positive")
	}
	if c.Nodes <= 0 {
		return fmt.Errorf("nodes must be positive")
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	return nil
}
