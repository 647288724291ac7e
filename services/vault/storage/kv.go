// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the durable key-value medium shared by all
// coordinator instances, and the ledger store that serializes the vault
// state blob on top of it.
//
// Two KV implementations exist:
//
//   - MemoryKV: map-backed, for tests and in-process simulation
//   - BadgerKV: embedded BadgerDB, for durable single-host deployments
//
// The presence tracker uses the KV primitive directly under its own key;
// only LedgerStore knows the shape of the vault blob.
package storage

import "sync"

// Durable key layout. Conceptually two independent keys: the vault blob
// and the presence registry.
const (
	// LedgerKey holds the serialized VaultState.
	LedgerKey = "MUDDE_SOVEREIGN_LEDGER_V4_MESH"

	// PresenceKey holds the node heartbeat registry.
	PresenceKey = "MUDDE_MESH_NODES_V1"
)

// KV is the minimal durable key-value contract.
//
// Get returns (nil, false, nil) for a missing key. Implementations must
// be safe for concurrent use from multiple coordinator instances.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// MemoryKV is a map-backed KV. It is the test double for BadgerKV and
// the shared medium when several nodes are simulated in one process.
//
// Thread Safety: safe for concurrent use.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites forces Set to fail; used to exercise the
	// best-effort persistence path in tests.
	FailWrites bool

	// FailReads forces Get to fail.
	FailReads bool
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns the value for key, or ok=false when absent.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailReads {
		return nil, false, ErrIO
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores value under key.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrIO
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrIO
	}
	delete(m.data, key)
	return nil
}
