// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the vault coordinator over HTTP: read endpoints
// for the dashboard, mutation endpoints for tool-call dispatch, a
// Prometheus metrics endpoint, and a websocket feed of live updates.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muddelabs/meshvault/pkg/validation"
	"github.com/muddelabs/meshvault/services/vault/datatypes"
	"github.com/muddelabs/meshvault/services/vault/engine"
	"github.com/muddelabs/meshvault/services/vault/presence"
)

// TransferRequest is the transfer mutation payload.
type TransferRequest struct {
	SourceID string  `json:"source_id" binding:"required"`
	Target   string  `json:"target" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Modality string  `json:"modality" binding:"required,modality"`
}

// InjectRequest is the liquidity injection payload.
type InjectRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Label  string  `json:"label" binding:"required"`
}

// PricesRequest is the price revaluation payload.
type PricesRequest struct {
	Prices map[string]float64 `json:"prices" binding:"required"`
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetAccounts returns the current account list.
func GetAccounts(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"accounts": e.Accounts()})
	}
}

// GetLedger returns the settlement ledger, most recent first.
func GetLedger(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ledger": e.Ledger()})
	}
}

// GetNetWorth returns the summed balance of all accounts.
func GetNetWorth(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"net_worth": e.NetWorth()})
	}
}

// GetVelocity returns the derived income velocity in USD/sec.
func GetVelocity(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"income_velocity": e.IncomeVelocity()})
	}
}

// GetNodes returns the live-node list and the elected leader.
func GetNodes(t *presence.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		live := t.Live()
		leader, _ := presence.ElectLeader(live)
		c.JSON(http.StatusOK, gin.H{
			"node_id": t.NodeID(),
			"nodes":   live,
			"leader":  leader,
		})
	}
}

// GetStatus returns the formatted financial status block.
func GetStatus(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, e.FormattedStatus())
	}
}

// PostTransfer executes a transfer through the transaction engine.
//
// Rejected transfers return 422 with a distinct reason so the caller
// can show a clearly labeled failure, never a silent no-op.
func PostTransfer(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		settlement, err := e.Transfer(req.SourceID, req.Target, req.Amount, datatypes.Modality(req.Modality))
		if err != nil {
			status := http.StatusUnprocessableEntity
			reason := "rejected"
			switch {
			case errors.Is(err, engine.ErrInvalidSource):
				status = http.StatusNotFound
				reason = "invalid_source"
			case errors.Is(err, engine.ErrInsufficientFunds):
				reason = "insufficient_funds"
			case errors.Is(err, engine.ErrInvalidAmount):
				reason = "invalid_amount"
			}
			c.JSON(status, gin.H{"error": err.Error(), "reason": reason, "status": datatypes.StatusFailed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settlement": settlement})
	}
}

// PostInject credits the receiving account with external liquidity.
func PostInject(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		settlement, err := e.InjectLiquidity(req.Amount, req.Label)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "status": datatypes.StatusFailed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settlement": settlement})
	}
}

// PostPrices revalues price-tracked accounts from a quote map.
func PostPrices(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PricesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		prices, err := validation.SanitizePriceMap(req.Prices)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := e.RevaluePrices(prices); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"revalued": len(prices)})
	}
}

// DeleteState resets the vault to factory state.
func DeleteState(e *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := e.ResetVault(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reset": true})
	}
}
