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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"accrual-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("unknown command")

// Enroll opts the user into accrual
func (s *CommandService) Enroll(ctx context.Context, userId string) error {
	if userId == "" {
		return fmt.Errorf("user_id is required")
	}

	// The in-memory enrollment stands even when the write fails; the next
	// write persists it.
	if err := s.ledger.Enroll(ctx, userId); err != nil {
		if !errors.Is(err, store.ErrStorageWrite) {
			zap.L().Error("Failed to enroll user", zap.String("user_id", userId), zap.Error(err))
			return fmt.Errorf("failed to enroll: %w", err)
		}
		zap.L().Warn("Enrollment not yet persisted", zap.String("user_id", userId), zap.Error(err))
	}
	return nil
}

// Unenroll stops accrual for the user
func (s *CommandService) Unenroll(ctx context.Context, userId string) error {
	if userId == "" {
		return fmt.Errorf("user_id is required")
	}

	if err := s.ledger.Unenroll(ctx, userId); err != nil {
		if !errors.Is(err, store.ErrStorageWrite) {
			zap.L().Error("Failed to unenroll user", zap.String("user_id", userId), zap.Error(err))
			return fmt.Errorf("failed to unenroll: %w", err)
		}
		zap.L().Warn("Unenrollment not yet persisted", zap.String("user_id", userId), zap.Error(err))
	}
	return nil
}

// GetDisplayBalance returns the balance in currency units with a fixed number
// of decimals, e.g. "1.10". Unknown users get an empty account created.
func (s *CommandService) GetDisplayBalance(ctx context.Context, userId string) (string, error) {
	if userId == "" {
		return "", fmt.Errorf("user_id is required")
	}

	// A failed write still leaves the account in memory, so the read can proceed.
	if err := s.ledger.EnsureAccount(ctx, userId); err != nil {
		if !errors.Is(err, store.ErrStorageWrite) {
			return "", fmt.Errorf("failed to create account: %w", err)
		}
		zap.L().Warn("Balance query could not persist new account", zap.String("user_id", userId), zap.Error(err))
	}

	return FormatUnits(s.ledger.Balance(userId), s.unitsPerCurrency, s.displayDecimals), nil
}

// FormatUnits converts an amount in smallest units into display currency
func FormatUnits(units decimal.Decimal, unitsPerCurrency int64, decimals int32) string {
	return units.Div(decimal.NewFromInt(unitsPerCurrency)).StringFixed(decimals)
}

// Execute runs one text command: "enroll <id>", "unenroll <id>" or "balance <id>".
func (s *CommandService) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrUnknownCommand)
	}
	if len(fields) != 2 {
		return "", fmt.Errorf("%w: usage: enroll|unenroll|balance <user_id>", ErrUnknownCommand)
	}

	command, userId := strings.ToLower(fields[0]), fields[1]
	switch command {
	case "enroll":
		if err := s.Enroll(ctx, userId); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is now enrolled", userId), nil
	case "unenroll":
		if err := s.Unenroll(ctx, userId); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is no longer enrolled", userId), nil
	case "balance":
		balance, err := s.GetDisplayBalance(ctx, userId)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s has %s", userId, balance), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}
