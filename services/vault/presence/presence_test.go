// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/storage"
)

func newTestTracker(kv storage.KV, nodeID string, clk clock.Clock) *Tracker {
	return NewTracker(TrackerConfig{
		KV:     kv,
		NodeID: nodeID,
		Clock:  clk,
	})
}

// TestNewNodeID verifies identity shape and uniqueness.
func TestNewNodeID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewNodeID()
		assert.Regexp(t, `^NODE_[A-F0-9]{7}$`, id)
		assert.False(t, seen[id], "duplicate node ID %s", id)
		seen[id] = true
	}
}

// TestElectLeader verifies deterministic leader selection.
func TestElectLeader(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := ElectLeader(nil)
		assert.False(t, ok)
	})

	t.Run("lexicographic minimum", func(t *testing.T) {
		leader, ok := ElectLeader([]string{"NODE_C", "NODE_A", "NODE_B"})
		require.True(t, ok)
		assert.Equal(t, "NODE_A", leader)
	})

	t.Run("order independent", func(t *testing.T) {
		a, _ := ElectLeader([]string{"NODE_B", "NODE_A"})
		b, _ := ElectLeader([]string{"NODE_A", "NODE_B"})
		assert.Equal(t, a, b)
	})
}

// TestHeartbeatRegistersAndPrunes verifies the beat/prune cycle against
// a fake clock.
func TestHeartbeatRegistersAndPrunes(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))

	a := newTestTracker(kv, "NODE_A", clk)
	b := newTestTracker(kv, "NODE_B", clk)

	a.Heartbeat()
	b.Heartbeat()
	assert.Equal(t, []string{"NODE_A", "NODE_B"}, b.Live())
	assert.Equal(t, 2, b.LiveCount())

	// A goes silent past the staleness window; B keeps beating.
	clk.Advance(11 * time.Second)
	b.Heartbeat()
	assert.Equal(t, []string{"NODE_B"}, b.Live())
}

// TestLeaderHandoff verifies that when the leading instance goes silent,
// the remaining instance takes over within one staleness window, and
// yields again when the old leader returns.
func TestLeaderHandoff(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))

	a := newTestTracker(kv, "NODE_A", clk)
	b := newTestTracker(kv, "NODE_B", clk)

	a.Heartbeat()
	b.Heartbeat()
	a.Heartbeat() // refresh A's view so it sees B too
	assert.True(t, a.IsLeader())
	assert.False(t, b.IsLeader())

	// A disappears. B becomes leader after the staleness window.
	clk.Advance(11 * time.Second)
	b.Heartbeat()
	leader, ok := b.Leader()
	require.True(t, ok)
	assert.Equal(t, "NODE_B", leader)
	assert.True(t, b.IsLeader())

	// A comes back and leadership reverts deterministically.
	a.Heartbeat()
	b.Heartbeat()
	assert.False(t, b.IsLeader())
	leader, _ = b.Leader()
	assert.Equal(t, "NODE_A", leader)
}

// TestSubscribe verifies immediate delivery and change notification.
func TestSubscribe(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))
	tr := newTestTracker(kv, "NODE_A", clk)

	var calls [][]string
	unsubscribe := tr.Subscribe(func(live []string) { calls = append(calls, live) })

	// Fires immediately with the (empty) current view.
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0])

	tr.Heartbeat()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"NODE_A"}, calls[1])

	// Unchanged view does not renotify.
	clk.Advance(time.Second)
	tr.Heartbeat()
	assert.Len(t, calls, 2)

	unsubscribe()
	clk.Advance(11 * time.Second)
	tr.prune()
	assert.Len(t, calls, 2)
}

// TestScanIsReadOnly verifies Scan reflects the registry without
// announcing the scanning instance.
func TestScanIsReadOnly(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))

	a := newTestTracker(kv, "NODE_A", clk)
	a.Heartbeat()

	observer := newTestTracker(kv, "NODE_OBS", clk)
	assert.Equal(t, []string{"NODE_A"}, observer.Scan())

	// The observer never appeared in anyone's registry.
	a.Heartbeat()
	assert.Equal(t, []string{"NODE_A"}, a.Live())
}

// TestHeartbeatSurvivesMediumFailure verifies failures are swallowed
// and the tracker re-registers once the medium recovers.
func TestHeartbeatSurvivesMediumFailure(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))
	tr := newTestTracker(kv, "NODE_A", clk)

	tr.Heartbeat()
	require.Equal(t, []string{"NODE_A"}, tr.Live())

	kv.FailWrites = true
	kv.FailReads = true
	assert.NotPanics(t, tr.Heartbeat)

	kv.FailWrites = false
	kv.FailReads = false
	tr.Heartbeat()
	assert.Equal(t, []string{"NODE_A"}, tr.Live())
}

// TestCorruptRegistry verifies a corrupt registry degrades to empty
// and self-heals on the next beat.
func TestCorruptRegistry(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))
	require.NoError(t, kv.Set(storage.PresenceKey, []byte("{broken")))

	tr := newTestTracker(kv, "NODE_A", clk)
	tr.Heartbeat()
	assert.Equal(t, []string{"NODE_A"}, tr.Live())
}
