// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muddelabs/meshvault/services/vault/engine"
	"github.com/muddelabs/meshvault/services/vault/presence"
)

// NewRouter builds the vault HTTP API.
func NewRouter(e *engine.Engine, t *presence.Tracker, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1/vault")
	{
		v1.GET("/accounts", GetAccounts(e))
		v1.GET("/ledger", GetLedger(e))
		v1.GET("/networth", GetNetWorth(e))
		v1.GET("/velocity", GetVelocity(e))
		v1.GET("/nodes", GetNodes(t))
		v1.GET("/status", GetStatus(e))
		v1.GET("/ws", HandleUpdatesWebSocket(e, logger))

		v1.POST("/transfer", PostTransfer(e))
		v1.POST("/inject", PostInject(e))
		v1.POST("/prices", PostPrices(e))

		v1.DELETE("/state", DeleteState(e))
	}

	return router
}
