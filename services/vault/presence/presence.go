// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package presence tracks which coordinator instances are alive.
//
// Every instance periodically writes {nodeID: nowMillis} into a shared
// registry key and prunes entries that have gone silent. Liveness is
// eventually consistent: a crashed instance disappears from every other
// instance's view within one staleness window, never instantly and
// never stuck forever.
//
// Concurrent writers are safe without any reload discipline because
// each instance only ever writes its own registry key; conflicts
// resolve last-writer-wins per key.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/storage"
	"github.com/muddelabs/meshvault/services/vault/telemetry"
)

const (
	// DefaultInterval is the heartbeat cadence.
	DefaultInterval = 2 * time.Second

	// DefaultStaleAfter is the liveness timeout. An order of
	// magnitude above the heartbeat interval so a couple of missed
	// beats don't get an instance pruned.
	DefaultStaleAfter = 10 * time.Second
)

// NewNodeID mints the random instance identity for one process
// lifetime. Never persisted; regenerated on every start.
func NewNodeID() string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:7])
	return "NODE_" + frag
}

// ElectLeader returns the leader for a snapshot of live instance IDs:
// the lexicographically smallest entry. Deterministic — every instance
// applying this to the same snapshot picks the same leader.
func ElectLeader(live []string) (string, bool) {
	if len(live) == 0 {
		return "", false
	}
	leader := live[0]
	for _, id := range live[1:] {
		if id < leader {
			leader = id
		}
	}
	return leader, true
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// KV is the shared durable medium. Required.
	KV storage.KV

	// NodeID identifies this instance. Minted if empty.
	NodeID string

	// Key overrides the registry key. Defaults to storage.PresenceKey.
	Key string

	// Interval is the heartbeat cadence. Defaults to DefaultInterval.
	Interval time.Duration

	// StaleAfter is the liveness timeout. Defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	// Clock supplies time; defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Tracker announces this instance's liveness and maintains the local
// view of the live-node list.
//
// Thread Safety: safe for concurrent use.
type Tracker struct {
	kv         storage.KV
	key        string
	nodeID     string
	interval   time.Duration
	staleAfter time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	mu   sync.RWMutex
	live []string
	subs map[string]func([]string)
}

// NewTracker creates a tracker. Heartbeats don't start until Run is
// called; Heartbeat can also be driven manually (tests).
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.NodeID == "" {
		cfg.NodeID = NewNodeID()
	}
	if cfg.Key == "" {
		cfg.Key = storage.PresenceKey
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{
		kv:         cfg.KV,
		key:        cfg.Key,
		nodeID:     cfg.NodeID,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		subs:       make(map[string]func([]string)),
	}
}

// NodeID returns this instance's identity.
func (t *Tracker) NodeID() string { return t.nodeID }

// Run beats immediately, then on every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	t.Heartbeat()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Heartbeat()
		}
	}
}

// Heartbeat performs one tick: announce presence, then prune stale
// entries and refresh the live list. All failures are swallowed and
// logged; an instance that cannot write its heartbeat simply risks
// being pruned by the others.
func (t *Tracker) Heartbeat() {
	t.beat()
	t.prune()
}

// beat writes this instance's registry entry.
func (t *Tracker) beat() {
	registry := t.readRegistry()
	registry[t.nodeID] = t.clock.Now().UnixMilli()
	t.writeRegistry(registry)
}

// prune drops entries older than the staleness window, republishes the
// pruned registry, and refreshes the live list.
func (t *Tracker) prune() {
	registry := t.readRegistry()
	now := t.clock.Now().UnixMilli()
	stale := t.staleAfter.Milliseconds()

	live := make([]string, 0, len(registry))
	removed := false
	for id, last := range registry {
		if now-last < stale {
			live = append(live, id)
		} else {
			delete(registry, id)
			removed = true
		}
	}
	sort.Strings(live)

	if removed {
		t.writeRegistry(registry)
	}
	t.publish(live)
}

// publish installs the new live list and notifies subscribers if it
// changed.
func (t *Tracker) publish(live []string) {
	t.mu.Lock()
	changed := !equalStrings(t.live, live)
	if changed {
		t.live = live
	}
	subs := make([]func([]string), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	if !changed {
		return
	}

	telemetry.LiveNodes.Set(float64(len(live)))
	if leader, ok := ElectLeader(live); ok && leader == t.nodeID {
		telemetry.Leader.Set(1)
	} else {
		telemetry.Leader.Set(0)
	}

	snapshot := append([]string(nil), live...)
	for _, fn := range subs {
		fn(snapshot)
	}
}

// Scan reads the shared registry and returns the nodes inside the
// staleness window without announcing this instance or touching the
// registry. Meant for one-shot inspection.
func (t *Tracker) Scan() []string {
	registry := t.readRegistry()
	now := t.clock.Now().UnixMilli()
	stale := t.staleAfter.Milliseconds()

	live := make([]string, 0, len(registry))
	for id, last := range registry {
		if now-last < stale {
			live = append(live, id)
		}
	}
	sort.Strings(live)
	return live
}

// Live returns the sorted live-node list as last observed.
func (t *Tracker) Live() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.live...)
}

// LiveCount returns the size of the live-node list.
func (t *Tracker) LiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// Leader returns the elected leader for the current live list.
func (t *Tracker) Leader() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ElectLeader(t.live)
}

// IsLeader reports whether this instance is the elected leader.
func (t *Tracker) IsLeader() bool {
	leader, ok := t.Leader()
	return ok && leader == t.nodeID
}

// Subscribe registers a callback for live-list changes. The callback
// fires immediately with the current list. The returned function
// unsubscribes.
func (t *Tracker) Subscribe(fn func(live []string)) func() {
	t.mu.Lock()
	id := uuid.NewString()
	t.subs[id] = fn
	current := append([]string(nil), t.live...)
	t.mu.Unlock()

	fn(current)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// readRegistry parses the shared registry, degrading to empty on any
// failure.
func (t *Tracker) readRegistry() map[string]int64 {
	raw, ok, err := t.kv.Get(t.key)
	if err != nil {
		t.logger.Warn("heartbeat read failed", "key", t.key, "error", err)
		return map[string]int64{}
	}
	if !ok {
		return map[string]int64{}
	}

	registry := map[string]int64{}
	if err := json.Unmarshal(raw, &registry); err != nil {
		t.logger.Warn("heartbeat registry corrupt", "key", t.key, "error", err)
		return map[string]int64{}
	}
	return registry
}

func (t *Tracker) writeRegistry(registry map[string]int64) {
	raw, err := json.Marshal(registry)
	if err != nil {
		t.logger.Warn("heartbeat encode failed", "error", err)
		return
	}
	if err := t.kv.Set(t.key, raw); err != nil {
		t.logger.Warn("heartbeat write failed", "key", t.key, "error", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
