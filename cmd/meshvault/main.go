// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command meshvault runs and inspects the Mudde mesh ledger
// coordinator.
//
// The coordinator keeps a bounded settlement ledger in a durable
// key-value store, tracks live peer instances over a shared heartbeat
// registry, elects one instance as yield leader, and exposes the whole
// thing over an HTTP API.
//
// Usage:
//
//	meshvault run
//	meshvault run --nodes 3
//	meshvault run --config meshvault.yaml
//	meshvault status
//
// Example requests against a running coordinator:
//
//	curl http://localhost:8380/v1/vault/accounts | jq
//	curl http://localhost:8380/v1/vault/networth
//	curl -X POST http://localhost:8380/v1/vault/transfer \
//	  -H "Content-Type: application/json" \
//	  -d '{"source_id": "CHASE_PRIVATE", "target": "HELLO_PAISA_GLOBAL", "amount": 250}'
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/muddelabs/meshvault/services/vault/config"
	"github.com/muddelabs/meshvault/services/vault/storage"
)

var (
	cfgPath  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "meshvault",
		Short: "Run and inspect the Mudde mesh ledger coordinator",
		Long: `Meshvault is the standalone deployment of the Mudde sovereign ledger.
It persists accounts and settlements in BadgerDB, coordinates any number
of peer instances through a shared heartbeat registry, and generates
yield on the single elected leader.`,
		SilenceUsage: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (missing file falls back to defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig resolves the effective configuration from the config file
// and global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openKV opens the configured durable medium. The returned closer is
// a no-op for the in-memory store.
func openKV(cfg config.Config, logger *slog.Logger) (storage.KV, func() error, error) {
	if cfg.Storage.InMemory {
		return storage.NewMemoryKV(), func() error { return nil }, nil
	}

	bcfg := storage.DefaultBadgerConfig(cfg.Storage.Path)
	bcfg.Logger = logger
	kv, err := storage.OpenBadger(bcfg)
	if err != nil {
		return nil, nil, err
	}
	return kv, kv.Close, nil
}
