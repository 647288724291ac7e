// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vault assembles one coordinator instance (a "node") from its
// four responsibilities: persistent store, presence tracker, yield
// generator, and transaction engine. Several nodes may share one KV
// and one bus, which is exactly how multiple deployments of the
// dashboard coordinate over the same durable medium.
package vault

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/muddelabs/meshvault/services/vault/bus"
	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/config"
	"github.com/muddelabs/meshvault/services/vault/engine"
	"github.com/muddelabs/meshvault/services/vault/presence"
	"github.com/muddelabs/meshvault/services/vault/storage"
	"github.com/muddelabs/meshvault/services/vault/yieldgen"
)

// Node is one coordinator instance with its own identity, sharing
// durable state and the sync channel with any number of peers.
type Node struct {
	ID        string
	Store     *storage.LedgerStore
	Tracker   *presence.Tracker
	Engine    *engine.Engine
	Generator *yieldgen.Generator

	logger *slog.Logger
}

// NewNode wires a node over the shared KV and bus.
// A nil clock uses the system clock; a nil logger uses slog.Default().
func NewNode(cfg config.Config, kv storage.KV, b bus.Bus, clk clock.Clock, logger *slog.Logger) *Node {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}

	nodeID := presence.NewNodeID()
	logger = logger.With("node_id", nodeID)

	store := storage.NewLedgerStore(kv, logger)

	tracker := presence.NewTracker(presence.TrackerConfig{
		KV:         kv,
		NodeID:     nodeID,
		Interval:   cfg.Heartbeat.Interval.Std(),
		StaleAfter: cfg.Heartbeat.StaleAfter.Std(),
		Clock:      clk,
		Logger:     logger,
	})

	eng := engine.New(engine.Config{
		Store:        store,
		Bus:          b,
		Nodes:        tracker,
		NodeID:       nodeID,
		LedgerCap:    cfg.LedgerCap,
		PollInterval: cfg.PollInterval.Std(),
		Clock:        clk,
		Logger:       logger,
	})

	gen := yieldgen.New(yieldgen.Config{
		Ledger:       eng,
		Leadership:   tracker,
		TickInterval: cfg.Yield.TickInterval.Std(),
		FlushEvery:   cfg.Yield.FlushEvery,
		Accelerator:  cfg.Yield.Accelerator,
		Clock:        clk,
		Logger:       logger,
	})

	return &Node{
		ID:        nodeID,
		Store:     store,
		Tracker:   tracker,
		Engine:    eng,
		Generator: gen,
		logger:    logger,
	}
}

// Run drives the heartbeat, yield, and fallback-poll loops until ctx
// is done, then detaches the engine from the sync channel.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("node online")
	defer n.Engine.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.Tracker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.Generator.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.Engine.Run(ctx)
		return nil
	})
	return g.Wait()
}
