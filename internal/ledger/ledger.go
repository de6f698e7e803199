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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"accrual-ledger-go/internal/metrics"
	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns the account map and enrollment set. Every read and mutation,
// including the write-through to the backing store, runs under mu, so each
// operation is atomic with respect to every other.
type Ledger struct {
	mu       sync.Mutex
	snapshot *models.Snapshot
	store    store.SnapshotStore
	metrics  *metrics.LedgerMetrics
}

// Open loads the snapshot from st once. A load failure is logged and the
// ledger starts empty; it never prevents the ledger from opening.
func Open(ctx context.Context, st store.SnapshotStore) *Ledger {
	snapshot, err := st.Load(ctx)
	if err != nil {
		zap.L().Warn("Failed to load ledger snapshot, starting with empty ledger", zap.Error(err))
	}
	if snapshot == nil {
		snapshot = models.NewSnapshot()
	}

	l := &Ledger{
		snapshot: snapshot,
		store:    st,
		metrics:  metrics.Ledger(),
	}
	l.metrics.SetEnrolled(len(snapshot.Enrolled))

	zap.L().Info("Ledger opened",
		zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("enrolled", len(snapshot.Enrolled)))
	return l
}

// EnsureAccount creates a zero account for id if none exists. Repeat calls
// change nothing and do not write.
func (l *Ledger) EnsureAccount(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrEmptyAccountId
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.snapshot.Accounts[id]; ok {
		return nil
	}

	l.snapshot.Accounts[id] = models.Account{Remainder: decimal.Zero}
	zap.L().Info("Account created", zap.String("user_id", id))
	return l.persistLocked(ctx)
}

// Credit adds amount (in units, possibly fractional) to the account, moving
// every whole unit out of the remainder into the balance.
func (l *Ledger) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	if id == "" {
		return store.ErrEmptyAccountId
	}
	if amount.IsNegative() {
		zap.L().Error("Rejected negative credit",
			zap.String("user_id", id),
			zap.String("amount", amount.String()))
		return fmt.Errorf("%w: %s", store.ErrInvalidCreditAmount, amount.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.snapshot.Accounts[id]
	after := applyCredit(before, amount)
	l.snapshot.Accounts[id] = after

	zap.L().Debug("Credited account",
		zap.String("user_id", id),
		zap.String("amount", amount.String()),
		zap.Int64("old_balance_units", before.BalanceUnits),
		zap.Int64("new_balance_units", after.BalanceUnits),
		zap.String("remainder", after.Remainder.String()))

	return l.persistLocked(ctx)
}

// applyCredit is the exact accrual step: remainder' = remainder + amount,
// whole = floor(remainder'), balance += whole, remainder' -= whole.
func applyCredit(account models.Account, amount decimal.Decimal) models.Account {
	remainder := account.Remainder.Add(amount)
	whole := remainder.Floor()
	return models.Account{
		BalanceUnits: account.BalanceUnits + whole.IntPart(),
		Remainder:    remainder.Sub(whole),
	}
}

// Balance returns BalanceUnits + Remainder for id in the unit scale. Unknown
// ids read as zero and are not created.
func (l *Ledger) Balance(id string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.snapshot.Accounts[id]
	if !ok {
		return decimal.Zero
	}
	return account.Total()
}

// Account returns a copy of the account for id
func (l *Ledger) Account(id string) (models.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.snapshot.Accounts[id]
	return account, ok
}

// Enroll opts id into accrual, creating its account if needed. Enrolling
// twice is a no-op.
func (l *Ledger) Enroll(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrEmptyAccountId
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, enrolled := l.snapshot.Enrolled[id]
	_, exists := l.snapshot.Accounts[id]
	if enrolled && exists {
		return nil
	}
	if !exists {
		l.snapshot.Accounts[id] = models.Account{Remainder: decimal.Zero}
	}
	l.snapshot.Enrolled[id] = struct{}{}
	l.metrics.SetEnrolled(len(l.snapshot.Enrolled))

	zap.L().Info("Account enrolled", zap.String("user_id", id))
	return l.persistLocked(ctx)
}

// Unenroll removes id from accrual. Unenrolling a non-member is a no-op.
func (l *Ledger) Unenroll(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrEmptyAccountId
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.snapshot.Enrolled[id]; !ok {
		return nil
	}
	delete(l.snapshot.Enrolled, id)
	l.metrics.SetEnrolled(len(l.snapshot.Enrolled))

	zap.L().Info("Account unenrolled", zap.String("user_id", id))
	return l.persistLocked(ctx)
}

// Enrolled returns the enrollment set, sorted
func (l *Ledger) Enrolled() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshot.EnrolledIds()
}

// Snapshot returns a deep copy of the current in-memory state
func (l *Ledger) Snapshot() *models.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.snapshot.Clone()
}

// Flush rewrites the full snapshot to the backing store
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.persistLocked(ctx)
}

// persistLocked writes the whole snapshot through to the store. On failure the
// in-memory state stays authoritative; the next mutation rewrites everything.
// Caller must hold mu.
func (l *Ledger) persistLocked(ctx context.Context) error {
	err := l.store.Save(ctx, l.snapshot)
	if err == nil {
		l.metrics.RecordStorageWrite(metrics.ResultOk)
		return nil
	}

	l.metrics.RecordStorageWrite(metrics.ResultError)
	zap.L().Error("Failed to persist ledger snapshot; in-memory state kept",
		zap.Int("accounts", len(l.snapshot.Accounts)),
		zap.Int("enrolled", len(l.snapshot.Enrolled)),
		zap.Error(err))
	if errors.Is(err, store.ErrStorageWrite) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
}
