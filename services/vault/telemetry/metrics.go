// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry defines Prometheus metrics for the vault coordinator.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MutationsTotal counts engine mutations by operation.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshvault_mutations_total",
		Help: "Total ledger mutations by operation",
	}, []string{"op"})

	// TransferFailuresTotal counts rejected transfers by reason.
	TransferFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshvault_transfer_failures_total",
		Help: "Transfers rejected before mutation, by reason",
	}, []string{"reason"})

	// PersistenceFailuresTotal counts swallowed durable I/O failures.
	PersistenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshvault_persistence_failures_total",
		Help: "Durable load/save failures absorbed by best-effort degradation",
	})

	// LiveNodes tracks the size of the live-node list seen locally.
	LiveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshvault_live_nodes",
		Help: "Number of live instances in the presence registry",
	})

	// Leader is 1 while this instance believes it is the leader.
	Leader = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshvault_leader",
		Help: "1 if this instance is the elected leader, else 0",
	})

	// YieldFlushesTotal counts yield flush batches applied.
	YieldFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshvault_yield_flushes_total",
		Help: "Yield pending-map flushes applied to the ledger",
	})

	// YieldFlushedUSD accumulates flushed yield value.
	YieldFlushedUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshvault_yield_flushed_usd_total",
		Help: "Cumulative USD-equivalent yield flushed to balances",
	})
)
