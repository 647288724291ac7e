// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/muddelabs/meshvault/services/vault/datatypes"
	"github.com/muddelabs/meshvault/services/vault/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin dashboard clients only; the API is not exposed
	// beyond the host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// updateFrame is one websocket message: a fresh snapshot pushed on
// every account-list change.
type updateFrame struct {
	Type     string              `json:"type"`
	Accounts []datatypes.Account `json:"accounts"`
	NetWorth float64             `json:"net_worth"`
	At       time.Time           `json:"at"`
}

// HandleUpdatesWebSocket streams account snapshots to a dashboard
// client whenever the ledger changes, mirroring the in-process
// subscription contract over the wire.
func HandleUpdatesWebSocket(e *engine.Engine, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		done := make(chan struct{})

		unsubscribe := e.SubscribeAccounts(func(accounts []datatypes.Account) {
			frame := updateFrame{
				Type:     "UPDATE",
				Accounts: accounts,
				NetWorth: e.NetWorth(),
				At:       time.Now(),
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			select {
			case <-done:
				return
			default:
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Debug("websocket write failed", "error", err)
			}
		})
		defer unsubscribe()

		// Read loop exists only to detect client disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}
}
