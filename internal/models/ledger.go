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

package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Account is a single user's accrued balance.
// BalanceUnits counts whole units (cents); Remainder holds the credited
// sub-unit amount in [0, 1) that has not yet become a whole unit.
type Account struct {
	BalanceUnits int64           `json:"balanceCents" db:"balance_units"`
	Remainder    decimal.Decimal `json:"remainderCents" db:"remainder"`
}

// Total returns BalanceUnits + Remainder in the unit scale
func (a Account) Total() decimal.Decimal {
	return decimal.NewFromInt(a.BalanceUnits).Add(a.Remainder)
}

// Equal reports whether both accounts hold exactly the same amounts
func (a Account) Equal(other Account) bool {
	return a.BalanceUnits == other.BalanceUnits && a.Remainder.Equal(other.Remainder)
}

// Snapshot is the complete persisted ledger state: every account plus the
// enrollment set. It is always saved and loaded as one unit.
type Snapshot struct {
	Accounts map[string]Account
	Enrolled map[string]struct{}
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Accounts: make(map[string]Account),
		Enrolled: make(map[string]struct{}),
	}
}

// Clone returns a deep copy
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Accounts: make(map[string]Account, len(s.Accounts)),
		Enrolled: make(map[string]struct{}, len(s.Enrolled)),
	}
	for id, account := range s.Accounts {
		out.Accounts[id] = account
	}
	for id := range s.Enrolled {
		out.Enrolled[id] = struct{}{}
	}
	return out
}

// Equal compares accounts by exact value and enrollment sets by membership
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.Accounts) != len(other.Accounts) || len(s.Enrolled) != len(other.Enrolled) {
		return false
	}
	for id, account := range s.Accounts {
		o, ok := other.Accounts[id]
		if !ok || !account.Equal(o) {
			return false
		}
	}
	for id := range s.Enrolled {
		if _, ok := other.Enrolled[id]; !ok {
			return false
		}
	}
	return true
}

// AccountIds returns all account identifiers in sorted order
func (s *Snapshot) AccountIds() []string {
	ids := make([]string, 0, len(s.Accounts))
	for id := range s.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnrolledIds returns the enrollment set in sorted order
func (s *Snapshot) EnrolledIds() []string {
	ids := make([]string, 0, len(s.Enrolled))
	for id := range s.Enrolled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
