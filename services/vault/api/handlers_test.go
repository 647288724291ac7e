// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muddelabs/meshvault/services/vault/bus"
	"github.com/muddelabs/meshvault/services/vault/clock"
	"github.com/muddelabs/meshvault/services/vault/datatypes"
	"github.com/muddelabs/meshvault/services/vault/engine"
	"github.com/muddelabs/meshvault/services/vault/presence"
	"github.com/muddelabs/meshvault/services/vault/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter builds a router over fresh in-memory infrastructure.
func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()

	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.UnixMilli(1700000000000))
	e := engine.New(engine.Config{
		Store:  storage.NewLedgerStore(kv, nil),
		Bus:    bus.NewMockBus(),
		NodeID: "NODE_API",
		Clock:  clk,
	})
	t.Cleanup(e.Close)

	tracker := presence.NewTracker(presence.TrackerConfig{
		KV:     kv,
		NodeID: "NODE_API",
		Clock:  clk,
	})
	tracker.Heartbeat()

	return NewRouter(e, tracker, nil), e
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHealth verifies the liveness endpoint.
func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// TestGetAccounts verifies the account list endpoint.
func TestGetAccounts(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/vault/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Accounts []datatypes.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Accounts, len(datatypes.DefaultAccounts()))
}

// TestGetNodes verifies the presence endpoint reports the leader.
func TestGetNodes(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/vault/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		NodeID string   `json:"node_id"`
		Nodes  []string `json:"nodes"`
		Leader string   `json:"leader"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NODE_API", resp.NodeID)
	assert.Equal(t, []string{"NODE_API"}, resp.Nodes)
	assert.Equal(t, "NODE_API", resp.Leader)
}

// TestPostTransfer verifies success and each rejection mapping.
func TestPostTransfer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		router, e := newTestRouter(t)
		before := e.NetWorth()

		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", TransferRequest{
			SourceID: "SWISS_NODAL",
			Target:   "HELLO_PAISA_GLOBAL",
			Amount:   1000,
			Modality: string(datatypes.ModalityHelloPaisa),
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Settlement datatypes.Settlement `json:"settlement"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, datatypes.StatusSettled, resp.Settlement.Status)
		assert.InDelta(t, before-1000, e.NetWorth(), 1e-3)
	})

	t.Run("unknown source maps to 404", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", TransferRequest{
			SourceID: "NO_SUCH", Target: "X", Amount: 10, Modality: "BANK",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_source")
	})

	t.Run("insufficient funds maps to 422", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", TransferRequest{
			SourceID: "SWISS_NODAL", Target: "X", Amount: 1e15, Modality: "BANK",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "insufficient_funds")
		assert.Contains(t, w.Body.String(), string(datatypes.StatusFailed))
	})

	t.Run("binding rejects non-positive amount", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", map[string]any{
			"source_id": "SWISS_NODAL", "target": "X", "amount": -5, "modality": "BANK",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown modality rejected", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", TransferRequest{
			SourceID: "SWISS_NODAL", Target: "X", Amount: 10, Modality: "CARRIER_PIGEON",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", map[string]any{"amount": 10})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestPostInject verifies the liquidity injection endpoint.
func TestPostInject(t *testing.T) {
	router, e := newTestRouter(t)
	before := e.NetWorth()

	w := doJSON(t, router, http.MethodPost, "/v1/vault/inject", InjectRequest{
		Amount: 2500,
		Label:  "MISSION_GAMMA_01",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, before+2500, e.NetWorth(), 1e-3)
	assert.Contains(t, w.Body.String(), "MISSION_GAMMA_01::NODE_API")
}

// TestPostPrices verifies sanitization and revaluation.
func TestPostPrices(t *testing.T) {
	t.Run("revalues tracked accounts", func(t *testing.T) {
		router, e := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/v1/vault/prices", PricesRequest{
			Prices: map[string]float64{"btcusd": 100000},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var btc datatypes.Account
		for _, acc := range e.Accounts() {
			if acc.ID == "BTC_MAIN" {
				btc = acc
			}
		}
		assert.InDelta(t, btc.Quantity*100000, btc.Balance, 1e-6)
	})

	t.Run("invalid symbols rejected", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/v1/vault/prices", PricesRequest{
			Prices: map[string]float64{"b@d": 1},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestDeleteState verifies the factory reset endpoint.
func TestDeleteState(t *testing.T) {
	router, e := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/vault/transfer", TransferRequest{
		SourceID: "SWISS_NODAL", Target: "X", Amount: 10, Modality: "BANK",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, e.Ledger())

	w = doJSON(t, router, http.MethodDelete, "/v1/vault/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.Ledger())
}

// TestGetStatus verifies the formatted status endpoint.
func TestGetStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/vault/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "=== FINANCIAL SYSTEM STATUS ===")
}

// TestGetVelocityAndNetWorth verifies the derived read endpoints.
func TestGetVelocityAndNetWorth(t *testing.T) {
	router, e := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/vault/networth", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nw struct {
		NetWorth float64 `json:"net_worth"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nw))
	assert.Equal(t, e.NetWorth(), nw.NetWorth)

	w = doJSON(t, router, http.MethodGet, "/v1/vault/velocity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		IncomeVelocity float64 `json:"income_velocity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Positive(t, v.IncomeVelocity)
}
