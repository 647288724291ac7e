// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"strings"

	"github.com/muddelabs/meshvault/services/vault/datatypes"
)

// FormatStatus renders a human-readable financial status block for a
// state snapshot. Used by the CLI status command and the status API.
func FormatStatus(st datatypes.VaultState, liveNodes int, velocity float64) string {
	var b strings.Builder
	b.WriteString("=== FINANCIAL SYSTEM STATUS ===\n")
	fmt.Fprintf(&b, "TOTAL GLOBAL LIQUIDITY: $%.2f\n", st.NetWorth())
	fmt.Fprintf(&b, "GROWTH VELOCITY: $%.2f / sec\n", velocity)
	fmt.Fprintf(&b, "ACTIVE DEPLOYMENTS: %d (Hive Mind)\n", liveNodes)
	b.WriteString("STORAGE INTEGRITY: VERIFIED (Mudde-V4-Mesh)\n")
	b.WriteString("ACCOUNTS:\n")
	for _, acc := range st.Accounts {
		symbol := acc.AssetSymbol
		if symbol == "" {
			symbol = "USD"
		}
		if acc.Quantity > 0 {
			fmt.Fprintf(&b, "- %s [%s]: %.4f ($%.2f)\n", acc.Name, symbol, acc.Quantity, acc.Balance)
		} else {
			fmt.Fprintf(&b, "- %s [%s]: ($%.2f)\n", acc.Name, symbol, acc.Balance)
		}
	}
	return b.String()
}

// FormattedStatus renders the status block for this engine's cached
// state and node view.
func (e *Engine) FormattedStatus() string {
	nodes := e.nodes.LiveCount()
	if nodes < 1 {
		nodes = 1
	}
	return FormatStatus(e.snapshot(), nodes, e.IncomeVelocity())
}
