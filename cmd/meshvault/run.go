// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/muddelabs/meshvault/pkg/logging"
	"github.com/muddelabs/meshvault/services/vault"
	"github.com/muddelabs/meshvault/services/vault/api"
	"github.com/muddelabs/meshvault/services/vault/bus"
)

var (
	nodesOverride int

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start the coordinator: heartbeats, yield generation, and the HTTP API",
		Long: `Starts one or more coordinator instances over a single shared store.
Every instance heartbeats into the shared registry; the lexicographically
first live instance becomes yield leader. Running with --nodes > 1
simulates a mesh of peer deployments inside one process.`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().IntVar(&nodesOverride, "nodes", 0, "number of in-process coordinator instances (overrides config when > 0)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if nodesOverride > 0 {
		cfg.Nodes = nodesOverride
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "meshvault",
	})
	defer logger.Close()
	slogger := logger.Slog()

	kv, closeKV, err := openKV(cfg, slogger)
	if err != nil {
		return err
	}
	defer closeKV()

	b := bus.NewChannelBus(bus.DefaultChannelName)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	nodes := make([]*vault.Node, 0, cfg.Nodes)
	for i := 0; i < cfg.Nodes; i++ {
		n := vault.NewNode(cfg, kv, b, nil, slogger)
		nodes = append(nodes, n)
		g.Go(func() error { return n.Run(ctx) })
	}
	slogger.Info("coordinator started",
		"nodes", cfg.Nodes,
		"in_memory", cfg.Storage.InMemory,
	)

	if cfg.API.Enabled {
		// The API fronts the first instance; peers converge on the
		// same state through the shared store and sync channel.
		first := nodes[0]
		router := api.NewRouter(first.Engine, first.Tracker, slogger)
		srv := &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			slogger.Info("api listening", "addr", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	slogger.Info("coordinator stopped")
	return err
}
