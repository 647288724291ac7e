// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import "errors"

// Sentinel errors for the storage package.
var (
	// ErrIO indicates a durable read or write failed.
	ErrIO = errors.New("storage i/o failure")

	// ErrCorrupt indicates a persisted payload could not be parsed.
	ErrCorrupt = errors.New("corrupt persisted payload")
)
