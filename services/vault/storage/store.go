// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/muddelabs/meshvault/services/vault/datatypes"
)

// DefaultYieldRate is the factory compounding rate used when no
// persisted rate exists.
const DefaultYieldRate = 0.00000005

// LedgerStore serializes the vault state blob to the durable KV medium.
//
// Load never fails the caller: on a read or parse error it logs and
// returns the last known good state, so the process degrades to
// best-effort in-memory operation instead of crashing.
//
// Thread Safety: safe for concurrent use.
type LedgerStore struct {
	kv     KV
	logger *slog.Logger

	mu       sync.Mutex
	lastGood datatypes.VaultState
}

// NewLedgerStore creates a store over the given KV.
// A nil logger falls back to slog.Default().
func NewLedgerStore(kv KV, logger *slog.Logger) *LedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerStore{
		kv:       kv,
		logger:   logger,
		lastGood: defaultState(),
	}
}

func defaultState() datatypes.VaultState {
	return datatypes.VaultState{
		Accounts:  datatypes.DefaultAccounts(),
		YieldRate: DefaultYieldRate,
	}
}

// Load reads and parses the durable blob, merging persisted accounts
// onto the factory defaults by ID.
//
// Merge rules:
//   - a default account keeps its metadata but takes the persisted
//     balance, quantity, and lastTx
//   - persisted accounts unknown to the defaults (dynamically created)
//     are preserved, appended after the defaults
//   - a missing reserve anchor account is re-created
//
// Calling Load twice with no intervening write yields identical state.
func (s *LedgerStore) Load() datatypes.VaultState {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.Get(LedgerKey)
	if err != nil {
		s.logger.Error("persistence load failed", "key", LedgerKey, "error", err)
		return s.lastGood.Clone()
	}
	if !ok {
		// First run: nothing persisted yet.
		s.lastGood = defaultState()
		return s.lastGood.Clone()
	}

	var stored datatypes.VaultState
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Error("persistence parse failed", "key", LedgerKey, "error", err)
		return s.lastGood.Clone()
	}

	merged := defaultState()
	if len(stored.Accounts) > 0 {
		merged.Accounts = mergeAccounts(merged.Accounts, stored.Accounts)
	}
	if stored.Ledger != nil {
		merged.Ledger = stored.Ledger
	}
	if !stored.LastSave.IsZero() {
		merged.LastSave = stored.LastSave
	}
	if stored.YieldRate > 0 {
		merged.YieldRate = stored.YieldRate
	}
	ensureAnchor(&merged)

	s.lastGood = merged
	return merged.Clone()
}

// Save serializes the full state synchronously.
//
// The returned error is informational: callers log it and continue with
// in-memory state, they never treat it as fatal.
func (s *LedgerStore) Save(state datatypes.VaultState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("persistence encode failed", "key", LedgerKey, "error", err)
		return err
	}
	if err := s.kv.Set(LedgerKey, raw); err != nil {
		s.logger.Error("persistence save failed", "key", LedgerKey, "error", err)
		return err
	}

	s.mu.Lock()
	s.lastGood = state.Clone()
	s.mu.Unlock()
	return nil
}

// Reset deletes the durable blob, returning the vault to factory state
// on the next Load.
func (s *LedgerStore) Reset() error {
	s.mu.Lock()
	s.lastGood = defaultState()
	s.mu.Unlock()
	if err := s.kv.Delete(LedgerKey); err != nil {
		s.logger.Error("persistence reset failed", "key", LedgerKey, "error", err)
		return err
	}
	return nil
}

// mergeAccounts overlays stored account state onto the defaults.
func mergeAccounts(defaults, stored []datatypes.Account) []datatypes.Account {
	byID := make(map[string]datatypes.Account, len(stored))
	for _, acc := range stored {
		byID[acc.ID] = acc
	}

	merged := make([]datatypes.Account, 0, len(defaults))
	known := make(map[string]bool, len(defaults))
	for _, def := range defaults {
		known[def.ID] = true
		if st, ok := byID[def.ID]; ok {
			def.Balance = st.Balance
			def.Quantity = st.Quantity
			def.LastTx = st.LastTx
		}
		merged = append(merged, def)
	}

	// Dynamically created accounts survive, after the defaults.
	for _, acc := range stored {
		if !known[acc.ID] {
			merged = append(merged, acc)
		}
	}
	return merged
}

// ensureAnchor re-creates the reserve anchor if it went missing.
func ensureAnchor(state *datatypes.VaultState) {
	if state.FindAccount(datatypes.ReserveAnchorID) != nil {
		return
	}
	for _, def := range datatypes.DefaultAccounts() {
		if def.ID == datatypes.ReserveAnchorID {
			state.Accounts = append(state.Accounts, def)
			return
		}
	}
}
