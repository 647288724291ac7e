// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the transaction engine: the single gate
// through which every balance-mutating operation passes.
//
// Mutations within one instance are strictly serialized. Each mutation
// reloads the latest persisted snapshot before applying its delta, then
// persists the whole state and broadcasts an UPDATE on the sync
// channel. Across instances the system is eventually consistent: the
// reload-before-mutate discipline minimizes, but the medium's lack of
// compare-and-swap does not eliminate, the lost-update window between
// two instances writing at nearly the same instant.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muddelabs/meshvault/services/vault/bus"
	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/datatypes"
	"github.com/muddelabs/meshvault/services/vault/storage"
	"github.com/muddelabs/meshvault/services/vault/telemetry"
)

// GlobalSettlementHub labels transfer ledger entries.
const GlobalSettlementHub = "GLOBAL_SETTLEMENT_LAYER"

// MeshAggregatorHub labels cross-instance liquidity credits.
const MeshAggregatorHub = "MESH_AGGREGATOR"

// DefaultPollInterval is the fallback cadence at which cached state is
// refreshed even without an incoming UPDATE.
const DefaultPollInterval = 2 * time.Second

// velocityWindow is the ledger lookback used by IncomeVelocity.
const velocityWindow = 30 * time.Second

// NodeCounter supplies the live instance count for velocity estimates.
type NodeCounter interface {
	LiveCount() int
}

// Config configures an Engine.
type Config struct {
	// Store owns durable state. Required.
	Store *storage.LedgerStore

	// Bus is the cross-instance sync channel. Required.
	Bus bus.Bus

	// Nodes supplies the live-node count. Nil means a fixed count
	// of one.
	Nodes NodeCounter

	// NodeID identifies this instance on the sync channel. Required.
	NodeID string

	// LedgerCap bounds ledger retention. Defaults to
	// datatypes.LedgerCap.
	LedgerCap int

	// PollInterval is the fallback refresh cadence for Run.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type singleNode struct{}

func (singleNode) LiveCount() int { return 1 }

// Engine serializes all ledger mutations for one instance and caches
// the latest known shared state for reads.
//
// Thread Safety: safe for concurrent use. At most one mutation is in
// flight at a time; reads never block behind mutations.
type Engine struct {
	store     *storage.LedgerStore
	bus       bus.Bus
	nodes     NodeCounter
	nodeID    string
	ledgerCap int
	pollEvery time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	// gate serializes mutations: IDLE -> LOCKED(reload) ->
	// LOCKED(apply+persist) -> IDLE(notify).
	gate sync.Mutex

	stateMu sync.RWMutex
	state   datatypes.VaultState

	subMu       sync.Mutex
	accountSubs map[string]func([]datatypes.Account)
	ledgerSubs  map[string]func([]datatypes.Settlement)

	busSubID string
}

// New creates an engine, loads the initial snapshot, and attaches to
// the sync channel. Call Close to detach.
func New(cfg Config) *Engine {
	if cfg.Nodes == nil {
		cfg.Nodes = singleNode{}
	}
	if cfg.LedgerCap <= 0 {
		cfg.LedgerCap = datatypes.LedgerCap
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Engine{
		store:       cfg.Store,
		bus:         cfg.Bus,
		nodes:       cfg.Nodes,
		nodeID:      cfg.NodeID,
		ledgerCap:   cfg.LedgerCap,
		pollEvery:   cfg.PollInterval,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		accountSubs: make(map[string]func([]datatypes.Account)),
		ledgerSubs:  make(map[string]func([]datatypes.Settlement)),
	}

	e.state = e.store.Load()

	// Receipt of an UPDATE from another instance triggers an
	// immediate reload; the payload itself is never trusted.
	e.busSubID = e.bus.Subscribe(func(msg bus.SyncMessage) {
		if msg.Type == bus.TypeUpdate && msg.Source != e.nodeID {
			e.Reload()
		}
	})

	e.logger.Info("transaction engine initialized",
		"node_id", e.nodeID,
		"accounts", len(e.state.Accounts))
	return e
}

// NodeID returns this instance's sync identity.
func (e *Engine) NodeID() string { return e.nodeID }

// Close detaches the engine from the sync channel.
func (e *Engine) Close() {
	e.bus.Unsubscribe(e.busSubID)
}

// Run refreshes the cached state on the fallback poll interval until
// ctx is done. Mutations and bus receipts refresh it sooner.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Reload()
		}
	}
}

// Reload re-reads the durable snapshot and notifies subscribers.
func (e *Engine) Reload() {
	st := e.store.Load()
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()
	e.notify()
}

// mutate is the mutual-exclusion gateway for all mutations. It reloads
// the latest persisted state, applies the delta, records an optional
// ledger entry, persists, notifies local subscribers, and broadcasts
// to other instances. No partially-applied state is observable.
func (e *Engine) mutate(op string, apply func(st *datatypes.VaultState) error, entry *datatypes.Settlement) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	st := e.store.Load()
	if err := apply(&st); err != nil {
		return err
	}

	if entry != nil {
		e.appendEntry(&st, *entry)
	}
	st.LastSave = e.clock.Now()

	if err := e.store.Save(st); err != nil {
		// Best effort: continue on in-memory state; the next
		// reload or save retries naturally.
		telemetry.PersistenceFailuresTotal.Inc()
		e.logger.Error("mutation persisted best-effort only", "op", op, "error", err)
	}

	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()

	e.notify()
	e.bus.Publish(bus.SyncMessage{Type: bus.TypeUpdate, Source: e.nodeID})
	telemetry.MutationsTotal.WithLabelValues(op).Inc()
	return nil
}

// appendEntry prepends entry to the ledger, deduplicating by ID and
// enforcing the retention cap (oldest dropped first).
func (e *Engine) appendEntry(st *datatypes.VaultState, entry datatypes.Settlement) {
	for _, existing := range st.Ledger {
		if existing.ID == entry.ID {
			return
		}
	}
	st.Ledger = append([]datatypes.Settlement{entry}, st.Ledger...)
	if len(st.Ledger) > e.ledgerCap {
		st.Ledger = st.Ledger[:e.ledgerCap]
	}
}

// Transfer moves amount out of the source account toward target.
//
// If target names another internal account, that account is credited;
// otherwise the value leaves the ledger. Fails with ErrInvalidSource or
// ErrInsufficientFunds before any mutation occurs. Price-tracked
// accounts have their quantity adjusted proportionally so the unit
// price is preserved.
func (e *Engine) Transfer(sourceID, target string, amount float64, modality datatypes.Modality) (datatypes.Settlement, error) {
	if amount <= 0 {
		telemetry.TransferFailuresTotal.WithLabelValues("invalid_amount").Inc()
		return datatypes.Settlement{}, fmt.Errorf("transfer of %.2f: %w", amount, ErrInvalidAmount)
	}

	now := e.clock.Now()
	settlement := datatypes.Settlement{
		ID:        datatypes.NewSettlementID("TX", now),
		Amount:    amount,
		Timestamp: now,
		Hub:       GlobalSettlementHub,
		Status:    datatypes.StatusSettled,
		Modality:  modality,
		Target:    target,
	}

	err := e.mutate("transfer", func(st *datatypes.VaultState) error {
		src := st.FindAccount(sourceID)
		if src == nil {
			telemetry.TransferFailuresTotal.WithLabelValues("invalid_source").Inc()
			return fmt.Errorf("account %q: %w", sourceID, ErrInvalidSource)
		}
		if src.Balance < amount {
			telemetry.TransferFailuresTotal.WithLabelValues("insufficient_funds").Inc()
			return fmt.Errorf("account %q holds %.2f, need %.2f: %w",
				sourceID, src.Balance, amount, ErrInsufficientFunds)
		}

		debit(src, amount, now)

		if dest := st.FindAccount(target); dest != nil && dest.ID != src.ID {
			credit(dest, amount, now)
		}
		return nil
	}, &settlement)
	if err != nil {
		return datatypes.Settlement{}, err
	}
	return settlement, nil
}

// debit removes amount from acc, shrinking the tracked quantity
// proportionally so balance/quantity (the unit price) is unchanged.
func debit(acc *datatypes.Account, amount float64, now time.Time) {
	if acc.PriceTracked() && acc.Balance > 0 {
		unitPrice := acc.Balance / acc.Quantity
		acc.Quantity -= amount / unitPrice
	}
	acc.Balance -= amount
	acc.LastTx = fmt.Sprintf("TX_%d", now.UnixMilli())
}

// credit adds amount to acc, growing the tracked quantity at the
// current unit price.
func credit(acc *datatypes.Account, amount float64, now time.Time) {
	if acc.PriceTracked() && acc.Balance > 0 {
		unitPrice := acc.Balance / acc.Quantity
		acc.Quantity += amount / unitPrice
	}
	acc.Balance += amount
	acc.LastTx = fmt.Sprintf("TX_%d", now.UnixMilli())
}

// InjectLiquidity credits amount to the designated receiving account.
// Used both for mission-reward style internal credits and for
// reconciling credits that originated on another instance.
func (e *Engine) InjectLiquidity(amount float64, sourceLabel string) (datatypes.Settlement, error) {
	if amount <= 0 {
		return datatypes.Settlement{}, fmt.Errorf("injection of %.2f: %w", amount, ErrInvalidAmount)
	}

	now := e.clock.Now()
	settlement := datatypes.Settlement{
		ID:        datatypes.NewSettlementID("SYNC", now),
		Amount:    amount,
		Timestamp: now,
		Hub:       MeshAggregatorHub,
		Status:    datatypes.StatusSettled,
		Modality:  datatypes.ModalityMeshSync,
		Target:    sourceLabel + "::" + e.nodeID,
	}

	err := e.mutate("inject_liquidity", func(st *datatypes.VaultState) error {
		target := st.FindAccount(datatypes.ReceivingAccountID)
		if target == nil && len(st.Accounts) > 0 {
			target = &st.Accounts[0]
		}
		if target == nil {
			return fmt.Errorf("no receiving account: %w", ErrInvalidSource)
		}
		target.Balance += amount
		target.LastTx = "MESH_RX_" + labelFragment(sourceLabel)
		return nil
	}, &settlement)
	if err != nil {
		return datatypes.Settlement{}, err
	}
	return settlement, nil
}

func labelFragment(label string) string {
	if parts := strings.SplitN(label, "_", 3); len(parts) > 1 {
		return parts[1]
	}
	return "NODE"
}

// RevaluePrices recomputes balance = quantity × price for every
// price-tracked account whose symbol resolves in prices (directly or
// via the derived "<SYM>USD" key), after consulting the pegged-price
// map. A zero or absent price leaves the account untouched.
func (e *Engine) RevaluePrices(prices map[string]float64) error {
	pegged := datatypes.PeggedPrices()
	return e.mutate("revalue_prices", func(st *datatypes.VaultState) error {
		for i := range st.Accounts {
			acc := &st.Accounts[i]
			if !acc.PriceTracked() {
				continue
			}
			price, ok := pegged[acc.AssetSymbol]
			if !ok {
				if p, found := prices[acc.AssetSymbol+"USD"]; found {
					price = p
				} else {
					price = prices[acc.AssetSymbol]
				}
			}
			if price > 0 {
				acc.Balance = acc.Quantity * price
			}
		}
		return nil
	}, nil)
}

// FlushYield adds each pending increment to its account's balance.
// Increments are silent balance growth: no per-flush ledger entry is
// recorded, the aggregate balance is the only audit trail.
func (e *Engine) FlushYield(pending map[string]float64) error {
	if len(pending) == 0 {
		return nil
	}

	var flushed float64
	err := e.mutate("flush_yield", func(st *datatypes.VaultState) error {
		for i := range st.Accounts {
			if gain, ok := pending[st.Accounts[i].ID]; ok && gain > 0 {
				st.Accounts[i].Balance += gain
				flushed += gain
			}
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}

	telemetry.YieldFlushesTotal.Inc()
	telemetry.YieldFlushedUSD.Add(flushed)
	return nil
}

// ResetVault deletes the durable blob and reloads factory state.
func (e *Engine) ResetVault() error {
	e.gate.Lock()
	defer e.gate.Unlock()

	if err := e.store.Reset(); err != nil {
		return err
	}
	st := e.store.Load()
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()

	e.notify()
	e.bus.Publish(bus.SyncMessage{Type: bus.TypeUpdate, Source: e.nodeID})
	return nil
}

// snapshot returns the cached state without copying slices; callers
// must not retain or mutate it.
func (e *Engine) snapshot() datatypes.VaultState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Accounts returns the latest locally-cached account list.
func (e *Engine) Accounts() []datatypes.Account {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return append([]datatypes.Account(nil), e.state.Accounts...)
}

// Ledger returns the latest locally-cached ledger, most recent first.
func (e *Engine) Ledger() []datatypes.Settlement {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return append([]datatypes.Settlement(nil), e.state.Ledger...)
}

// NetWorth sums all cached balances.
func (e *Engine) NetWorth() float64 {
	return e.snapshot().NetWorth()
}

// LastSaveTime returns the persisted-at timestamp of the cached state.
func (e *Engine) LastSaveTime() time.Time {
	return e.snapshot().LastSave
}

// YieldRate returns the current compounding rate.
func (e *Engine) YieldRate() float64 {
	return e.snapshot().YieldRate
}

// SetYieldRate updates the cached compounding rate. The new rate is
// persisted with the next mutation's save.
func (e *Engine) SetYieldRate(rate float64) {
	if rate <= 0 {
		return
	}
	e.stateMu.Lock()
	e.state.YieldRate = rate
	e.stateMu.Unlock()
}

// Velocity derives a USD/sec rate for a state snapshot: settled ledger
// throughput over the last 30 seconds plus the theoretical yield rate
// scaled by the live instance count.
func Velocity(st datatypes.VaultState, now time.Time, liveNodes int) float64 {
	var ledgerTotal float64
	for _, tx := range st.Ledger {
		if tx.Status == datatypes.StatusSettled && now.Sub(tx.Timestamp) < velocityWindow {
			ledgerTotal += tx.Amount
		}
	}

	if liveNodes < 1 {
		liveNodes = 1
	}
	estimated := st.NetWorth() * st.YieldRate * 5 * float64(liveNodes)

	return ledgerTotal/velocityWindow.Seconds() + estimated
}

// IncomeVelocity computes Velocity for this engine's cached state and
// node view.
func (e *Engine) IncomeVelocity() float64 {
	return Velocity(e.snapshot(), e.clock.Now(), e.nodes.LiveCount())
}

// HftEarnings sums settled amounts targeting the HFT scalp strategy.
func (e *Engine) HftEarnings() float64 {
	var total float64
	for _, tx := range e.snapshot().Ledger {
		if tx.Target == "HFT_ALGO_SCALP" && tx.Status == datatypes.StatusSettled {
			total += tx.Amount
		}
	}
	return total
}

// SubscribeAccounts registers a callback for account list changes. It
// fires immediately with the current snapshot and returns an
// unsubscribe function.
func (e *Engine) SubscribeAccounts(fn func(accounts []datatypes.Account)) func() {
	e.subMu.Lock()
	id := uuid.NewString()
	e.accountSubs[id] = fn
	e.subMu.Unlock()

	fn(e.Accounts())

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.accountSubs, id)
	}
}

// SubscribeLedger registers a callback for ledger changes. It fires
// immediately with the current snapshot and returns an unsubscribe
// function.
func (e *Engine) SubscribeLedger(fn func(ledger []datatypes.Settlement)) func() {
	e.subMu.Lock()
	id := uuid.NewString()
	e.ledgerSubs[id] = fn
	e.subMu.Unlock()

	fn(e.Ledger())

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.ledgerSubs, id)
	}
}

// notify pushes current snapshots to all local subscribers.
func (e *Engine) notify() {
	accounts := e.Accounts()
	ledger := e.Ledger()

	e.subMu.Lock()
	accSubs := make([]func([]datatypes.Account), 0, len(e.accountSubs))
	for _, fn := range e.accountSubs {
		accSubs = append(accSubs, fn)
	}
	ledSubs := make([]func([]datatypes.Settlement), 0, len(e.ledgerSubs))
	for _, fn := range e.ledgerSubs {
		ledSubs = append(ledSubs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range accSubs {
		fn(accounts)
	}
	for _, fn := range ledSubs {
		fn(ledger)
	}
}
