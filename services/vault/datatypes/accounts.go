// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the vault service:
// financial accounts, settlement records, and the durable state blob that
// every coordinator instance reads and writes.
package datatypes

import "time"

// AccountType categorizes an account and determines yield eligibility.
type AccountType string

const (
	AccountTactical    AccountType = "TACTICAL"
	AccountLiquid      AccountType = "LIQUID"
	AccountSettlement  AccountType = "SETTLEMENT"
	AccountFloat       AccountType = "FLOAT"
	AccountReserve     AccountType = "RESERVE"
	AccountCryptoVault AccountType = "CRYPTO_VAULT"
	AccountCryptoHot   AccountType = "CRYPTO_HOT"
)

// YieldEligible reports whether accounts of this type accrue yield.
func (t AccountType) YieldEligible() bool {
	switch t {
	case AccountReserve, AccountCryptoVault, AccountLiquid, AccountCryptoHot:
		return true
	default:
		return false
	}
}

// Account is a single ledger account.
//
// Balance is a USD-equivalent amount and must never go negative as the
// result of a transfer. For price-tracked accounts (Quantity > 0 and
// AssetSymbol set), Balance stays consistent with the most recently
// applied unit price: Balance ≈ Quantity × price.
type Account struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Balance float64     `json:"balance"`
	Type    AccountType `json:"type"`

	// Descriptive metadata, not invariant-bearing.
	Icon          string `json:"icon,omitempty"`
	LastTx        string `json:"lastTx,omitempty"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	Network       string `json:"network,omitempty"`

	// Set only for price-tracked accounts.
	AssetSymbol string  `json:"assetSymbol,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
}

// PriceTracked reports whether this account tracks an underlying asset
// quantity whose unit price drives the balance.
func (a Account) PriceTracked() bool {
	return a.Quantity > 0 && a.AssetSymbol != ""
}

const (
	// ReceivingAccountID is the default destination for liquidity
	// injections (mission rewards, cross-instance credits).
	ReceivingAccountID = "SHADOW_VAULT"

	// ReserveAnchorID is the reserve account that must always exist.
	// The store re-creates it on load if it went missing from storage.
	ReserveAnchorID = "SOVEREIGN_TRUST"
)

// DefaultAccounts returns a fresh copy of the factory account set.
//
// These defaults are used only for account IDs with no persisted state;
// persisted balances always win on load.
func DefaultAccounts() []Account {
	return []Account{
		{ID: ReceivingAccountID, Name: "Tactical Shadow Vault", Balance: 84050520.00, Type: AccountTactical, Icon: "ShieldCheck", LastTx: "AUTO_SIPHON", RoutingNumber: "CH-93-0000", Network: "INTERNAL_LEDGER"},
		{ID: "SWISS_NODAL", Name: "Swiss Nodal Hub", Balance: 42033680.00, Type: AccountLiquid, Icon: "Landmark", LastTx: "L1_BRIDGE", RoutingNumber: "UBS-CH-8821", Network: "SWIFT"},
		{ID: ReserveAnchorID, Name: "Sovereign Trust Alpha", Balance: 142000000000.00, Type: AccountReserve, Icon: "Lock", LastTx: "QUANTUM_UNLOCK", RoutingNumber: "ZERO-POINT-001", Network: "DEEP_STORAGE"},
		{ID: "BTC_MAIN", Name: "Bitcoin Reserve", Balance: 42750000, Quantity: 450.2, AssetSymbol: "BTC", Type: AccountCryptoVault, Icon: "Bitcoin", LastTx: "COLD_STORE", RoutingNumber: "bc1q-sovereign-001", Network: "BITCOIN_CORE"},
		{ID: "ETH_MAIN", Name: "Ethereum Nexus", Balance: 8500000, Quantity: 2500, AssetSymbol: "ETH", Type: AccountCryptoHot, Icon: "Hexagon", LastTx: "DEFI_YIELD", RoutingNumber: "0x71C...99A", Network: "ETHEREUM"},
		{ID: "SOL_MAIN", Name: "Solana Velocity", Balance: 1875000, Quantity: 12500, AssetSymbol: "SOL", Type: AccountCryptoHot, Icon: "Zap", LastTx: "MEME_SIPHON", RoutingNumber: "88X...11Z", Network: "SOLANA"},
		{ID: "USDT_TREASURY", Name: "Tether Treasury", Balance: 5000000, Quantity: 5000000, AssetSymbol: "USDT", Type: AccountLiquid, Icon: "DollarSign", LastTx: "STABLE_MINT", RoutingNumber: "TRC20-991", Network: "TRON"},
		{ID: "XMR_GHOST", Name: "Monero Ghost", Balance: 935000, Quantity: 5500, AssetSymbol: "XMR", Type: AccountCryptoVault, Icon: "Lock", LastTx: "RING_SIG_04", RoutingNumber: "44A...X99", Network: "MONERO"},
		{ID: "MUDDE_NATIVE", Name: "Mudde Chain Native", Balance: 19880000, Quantity: 14000000, AssetSymbol: "MUDDE", Type: AccountCryptoHot, Icon: "Hexagon", LastTx: "GENESIS_BLOCK", RoutingNumber: "MUDDE-000", Network: "MUDDE-CHAIN"},
	}
}

// PeggedPrices returns assets whose USD price is fixed rather than quoted.
// Revaluation consults this map before any external price feed.
func PeggedPrices() map[string]float64 {
	return map[string]float64{
		"USDT":  1.0,
		"MUDDE": 1.42,
	}
}

// VaultState is the full durable blob persisted under the ledger key.
type VaultState struct {
	Accounts  []Account    `json:"accounts"`
	Ledger    []Settlement `json:"ledger"`
	LastSave  time.Time    `json:"lastSave"`
	YieldRate float64      `json:"yieldRate"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing internal slices to mutation.
func (s VaultState) Clone() VaultState {
	out := s
	out.Accounts = make([]Account, len(s.Accounts))
	copy(out.Accounts, s.Accounts)
	out.Ledger = make([]Settlement, len(s.Ledger))
	copy(out.Ledger, s.Ledger)
	return out
}

// NetWorth sums all account balances.
func (s VaultState) NetWorth() float64 {
	var total float64
	for _, a := range s.Accounts {
		total += a.Balance
	}
	return total
}

// FindAccount returns a pointer into Accounts for the given ID, or nil.
func (s *VaultState) FindAccount(id string) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].ID == id {
			return &s.Accounts[i]
		}
	}
	return nil
}
