// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muddelabs/meshvault/services/vault/bus"
	"github.com/muddelabs/meshvault/services/vault/config"
	"github.com/muddelabs/meshvault/services/vault/datatypes"
	"github.com/muddelabs/meshvault/services/vault/storage"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.Storage.Path = ""
	return cfg
}

// TestNewNodeWiring verifies every component comes up with a shared
// identity.
func TestNewNodeWiring(t *testing.T) {
	n := NewNode(testConfig(), storage.NewMemoryKV(), bus.NewChannelBus(""), nil, nil)
	defer n.Engine.Close()

	require.NotEmpty(t, n.ID)
	assert.Equal(t, n.ID, n.Tracker.NodeID())
	assert.Equal(t, n.ID, n.Engine.NodeID())
	assert.Len(t, n.Engine.Accounts(), len(datatypes.DefaultAccounts()))
}

// TestTwoNodesConverge verifies two nodes over one medium see each
// other's mutations without running the background loops.
func TestTwoNodesConverge(t *testing.T) {
	kv := storage.NewMemoryKV()
	b := bus.NewChannelBus("")
	cfg := testConfig()

	a := NewNode(cfg, kv, b, nil, nil)
	defer a.Engine.Close()
	peer := NewNode(cfg, kv, b, nil, nil)
	defer peer.Engine.Close()

	_, err := a.Engine.Transfer("SWISS_NODAL", "OFFSHORE", 500, datatypes.ModalityBank)
	require.NoError(t, err)

	assert.Equal(t, a.Engine.NetWorth(), peer.Engine.NetWorth())
	require.Len(t, peer.Engine.Ledger(), 1)
}

// TestNodeRunStops verifies Run honors context cancellation.
func TestNodeRunStops(t *testing.T) {
	n := NewNode(testConfig(), storage.NewMemoryKV(), bus.NewChannelBus(""), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	// Let the loops start, then stop them.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("node did not stop on context cancellation")
	}
}

// TestLeaderElectionAmongNodes verifies exactly one of the live nodes
// leads once both have heartbeat.
func TestLeaderElectionAmongNodes(t *testing.T) {
	kv := storage.NewMemoryKV()
	b := bus.NewChannelBus("")
	cfg := testConfig()

	a := NewNode(cfg, kv, b, nil, nil)
	defer a.Engine.Close()
	peer := NewNode(cfg, kv, b, nil, nil)
	defer peer.Engine.Close()

	a.Tracker.Heartbeat()
	peer.Tracker.Heartbeat()
	a.Tracker.Heartbeat()

	assert.Equal(t, 2, a.Tracker.LiveCount())
	leaders := 0
	if a.Tracker.IsLeader() {
		leaders++
	}
	if peer.Tracker.IsLeader() {
		leaders++
	}
	assert.Equal(t, 1, leaders)
}
