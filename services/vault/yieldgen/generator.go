// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package yieldgen accrues simulated yield on eligible accounts.
//
// Only the elected leader accrues: increments accumulate in an
// in-memory pending map and are flushed through the transaction engine
// every few seconds. This bounds durable writes to a handful per
// second no matter how many instances are open, while each instance's
// UI still shows a smoothly ticking number between flushes. An
// instance that loses leadership discards its pending map so stale
// deltas are never double-applied when it regains the lead.
package yieldgen

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/datatypes"
)

const (
	// DefaultTickInterval is the accrual cadence.
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultFlushEvery flushes pending yield every N ticks
	// (30 ticks of 100ms ≈ one durable write per 3 seconds).
	DefaultFlushEvery = 30

	// DefaultAccelerator slowly compounds the yield rate per
	// normalized tick.
	DefaultAccelerator = 1.000001

	// tickNormalization converts elapsed wall-clock time into
	// accrual ticks (1 tick = 200ms).
	tickNormalization = 200 * time.Millisecond

	// maxElapsed clamps the wall-clock delta so a suspended
	// instance doesn't accrue an unbounded burst on wake.
	maxElapsed = 10 * time.Second
)

// Ledger is the engine surface the generator needs.
type Ledger interface {
	Accounts() []datatypes.Account
	YieldRate() float64
	SetYieldRate(rate float64)
	FlushYield(pending map[string]float64) error
}

// Leadership reports whether this instance currently leads.
type Leadership interface {
	IsLeader() bool
}

// Config configures a Generator.
type Config struct {
	// Ledger is the flush target. Required.
	Ledger Ledger

	// Leadership gates accrual. Required.
	Leadership Leadership

	// TickInterval defaults to DefaultTickInterval.
	TickInterval time.Duration

	// FlushEvery defaults to DefaultFlushEvery.
	FlushEvery int

	// Accelerator defaults to DefaultAccelerator.
	Accelerator float64

	// Rand supplies the volatility jitter; defaults to a
	// time-seeded source. Inject a fixed seed in tests.
	Rand *rand.Rand

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Generator runs the fixed-interval accrual tick.
//
// Thread Safety: safe for concurrent use, though ticks normally arrive
// from a single run loop.
type Generator struct {
	ledger      Ledger
	leadership  Leadership
	tickEvery   time.Duration
	flushEvery  int
	accelerator float64
	clock       clock.Clock
	logger      *slog.Logger

	mu           sync.Mutex
	rng          *rand.Rand
	pending      map[string]float64
	lastTick     time.Time
	flushCounter int
}

// New creates a generator. Ticks don't start until Run is called;
// Tick can also be driven manually (tests).
func New(cfg Config) *Generator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	if cfg.Accelerator <= 0 {
		cfg.Accelerator = DefaultAccelerator
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		ledger:      cfg.Ledger,
		leadership:  cfg.Leadership,
		tickEvery:   cfg.TickInterval,
		flushEvery:  cfg.FlushEvery,
		accelerator: cfg.Accelerator,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		rng:         cfg.Rand,
		pending:     make(map[string]float64),
		lastTick:    cfg.Clock.Now(),
	}
}

// Run ticks on the configured interval until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Tick performs one accrual step. Non-leaders discard any locally
// accumulated pending increments instead of accruing.
func (g *Generator) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.leadership.IsLeader() {
		if len(g.pending) > 0 {
			g.pending = make(map[string]float64)
		}
		g.flushCounter = 0
		g.lastTick = g.clock.Now()
		return
	}

	g.accrue()

	g.flushCounter++
	if g.flushCounter >= g.flushEvery {
		g.flushCounter = 0
		g.flushLocked()
	}
}

// accrue computes strictly non-negative increments for every
// yield-eligible account from elapsed wall-clock time and the
// compounding rate.
func (g *Generator) accrue() {
	now := g.clock.Now()
	elapsed := now.Sub(g.lastTick)
	g.lastTick = now

	if elapsed <= 0 {
		return
	}
	if elapsed > maxElapsed {
		elapsed = maxElapsed
	}
	ticks := float64(elapsed) / float64(tickNormalization)

	rate := g.ledger.YieldRate() * math.Pow(g.accelerator, ticks)
	g.ledger.SetYieldRate(rate)

	for _, acc := range g.ledger.Accounts() {
		if !acc.Type.YieldEligible() {
			continue
		}
		// Volatility affects magnitude, never direction.
		volatility := 0.8 + g.rng.Float64()*0.4
		gain := math.Abs(acc.Balance * rate * volatility * ticks)
		if gain > 0 {
			g.pending[acc.ID] += gain
		}
	}
}

// Flush applies pending increments through the engine immediately.
func (g *Generator) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushLocked()
}

func (g *Generator) flushLocked() {
	if len(g.pending) == 0 {
		return
	}
	toApply := g.pending
	g.pending = make(map[string]float64)

	if err := g.ledger.FlushYield(toApply); err != nil {
		g.logger.Warn("yield flush failed", "accounts", len(toApply), "error", err)
	}
}

// Pending returns a copy of the unsaved per-account increments.
func (g *Generator) Pending() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.pending))
	for id, gain := range g.pending {
		out[id] = gain
	}
	return out
}
