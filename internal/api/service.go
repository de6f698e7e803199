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
	"fmt"

	"accrual-ledger-go/internal/ledger"
)

// CommandService is the surface chat commands call into
type CommandService struct {
	ledger           *ledger.Ledger
	unitsPerCurrency int64
	displayDecimals  int32
}

func NewCommandService(l *ledger.Ledger, unitsPerCurrency int64, displayDecimals int32) *CommandService {
	return &CommandService{
		ledger:           l,
		unitsPerCurrency: unitsPerCurrency,
		displayDecimals:  displayDecimals,
	}
}

// HealthCheck confirms the snapshot can still be written
func (s *CommandService) HealthCheck(ctx context.Context) error {
	if err := s.ledger.Flush(ctx); err != nil {
		return fmt.Errorf("ledger health check failed: %w", err)
	}
	return nil
}
