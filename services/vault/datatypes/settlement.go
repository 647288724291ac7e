// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Modality tags the simulated rail that handled a settlement.
// Purely descriptive; it has no behavioral effect beyond labeling.
type Modality string

const (
	ModalityBank        Modality = "BANK"
	ModalityMobileMoney Modality = "MOBILE_MONEY"
	ModalityShadowVault Modality = "SHADOW_VAULT"
	ModalityHelloPaisa  Modality = "HELLO_PAISA"
	ModalityCrypto      Modality = "CRYPTO"
	ModalityMeshSync    Modality = "MESH_SYNC"
)

// SettlementStatus is the terminal marker on a ledger entry. Only
// SETTLED and FAILED entries are ever persisted; there is no multi-step
// pending state.
type SettlementStatus string

const (
	StatusSettled SettlementStatus = "SETTLED"
	StatusFailed  SettlementStatus = "FAILED"
	StatusPending SettlementStatus = "PENDING"
)

// Settlement is one immutable ledger entry. Entries are appended to the
// head of the ledger on every successful mutation and never modified
// after creation.
type Settlement struct {
	ID        string           `json:"id"`
	Amount    float64          `json:"amount"`
	Timestamp time.Time        `json:"timestamp"`
	Hub       string           `json:"hub,omitempty"`
	Status    SettlementStatus `json:"status"`
	Modality  Modality         `json:"modality"`
	Target    string           `json:"target"`
	Fee       float64          `json:"fee,omitempty"`
}

// LedgerCap bounds ledger retention. Oldest entries are dropped first.
const LedgerCap = 500

// NewSettlementID mints a time-derived, collision-free entry ID.
func NewSettlementID(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, at.UnixMilli(), uuid.NewString()[:8])
}
