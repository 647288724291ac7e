// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muddelabs/meshvault/pkg/logging"
	"github.com/muddelabs/meshvault/services/vault/engine"
	"github.com/muddelabs/meshvault/services/vault/presence"
	"github.com/muddelabs/meshvault/services/vault/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot financial system status block",
	Long: `Reads the shared store without joining the mesh: no heartbeat is
written and no state is mutated, so the output reflects exactly what a
running coordinator would see.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: "meshvault",
	})
	defer logger.Close()
	slogger := logger.Slog()

	kv, closeKV, err := openKV(cfg, slogger)
	if err != nil {
		return err
	}
	defer closeKV()

	store := storage.NewLedgerStore(kv, slogger)
	st := store.Load()

	tracker := presence.NewTracker(presence.TrackerConfig{
		KV:         kv,
		StaleAfter: cfg.Heartbeat.StaleAfter.Std(),
		Logger:     slogger,
	})
	live := tracker.Scan()

	liveNodes := len(live)
	if liveNodes < 1 {
		liveNodes = 1
	}
	velocity := engine.Velocity(st, time.Now(), liveNodes)

	fmt.Print(engine.FormatStatus(st, liveNodes, velocity))
	return nil
}
