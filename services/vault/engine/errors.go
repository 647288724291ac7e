// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "errors"

// Sentinel errors for the engine package. InvalidSource and
// InsufficientFunds are surfaced to callers and never retried;
// persistence failures are absorbed internally and only logged.
var (
	// ErrInvalidSource indicates a transfer referenced an account ID
	// not present in the current snapshot.
	ErrInvalidSource = errors.New("invalid source account")

	// ErrInsufficientFunds indicates the transfer amount exceeds the
	// source account's balance.
	ErrInsufficientFunds = errors.New("insufficient liquidity")

	// ErrInvalidAmount indicates a non-positive mutation amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)
