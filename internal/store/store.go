/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"context"
	"errors"

	"accrual-ledger-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrStorageRead         = errors.New("unable to read ledger snapshot")
	ErrStorageWrite        = errors.New("unable to write ledger snapshot")
	ErrInvalidCreditAmount = errors.New("credit amount must not be negative")
	ErrEmptyAccountId      = errors.New("account id cannot be empty")
)

// SnapshotStore defines the contract that every backend (file, SQLite, ...) must satisfy.
//
// Load always returns a usable snapshot. A missing snapshot is not an error; an
// unreadable or corrupt one yields an empty snapshot together with an error
// wrapping ErrStorageRead, which callers treat as a warning.
//
// Save replaces the whole persisted snapshot. On failure it returns an error
// wrapping ErrStorageWrite and leaves the previously saved snapshot intact.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snapshot *models.Snapshot) error

	// --- Lifecycle ---
	Close()
}
