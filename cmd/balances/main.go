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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"accrual-ledger-go/internal/api"
	"accrual-ledger-go/internal/common"
	"accrual-ledger-go/internal/config"
	"accrual-ledger-go/internal/database"
	"accrual-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts int
	enrolled      int
	total         decimal.Decimal // whole units plus remainders
}

func printAccount(id string, account models.Account, enrolled bool, cfg *models.Config, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	status := "paused"
	if enrolled {
		status = "accruing"
	}

	fmt.Printf("%s %-24s: %14s (units: %d, remainder: %s, %s)\n",
		symbol,
		id,
		api.FormatUnits(account.Total(), cfg.Ledger.UnitsPerCurrency, cfg.Ledger.DisplayDecimals),
		account.BalanceUnits,
		account.Remainder.String(),
		status)
}

func printAccounts(snapshot *models.Snapshot, ids []string, cfg *models.Config) balanceStats {
	stats := balanceStats{total: decimal.Zero}
	for i, id := range ids {
		account := snapshot.Accounts[id]
		_, enrolled := snapshot.Enrolled[id]

		stats.totalAccounts++
		stats.total = stats.total.Add(account.Total())
		if enrolled {
			stats.enrolled++
		}

		printAccount(id, account, enrolled, cfg, i == len(ids)-1)
	}
	return stats
}

func main() {
	ctx := context.Background()

	// Parse command line flags
	userFlag := flag.String("user", "", "Show a single user id (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	// Read the snapshot directly; the report never writes
	st, err := common.OpenReportStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open snapshot store", zap.Error(err))
	}
	defer st.Close()

	snapshot, err := st.Load(ctx)
	if err != nil {
		logger.Warn("Snapshot could not be read, report will be empty", zap.Error(err))
	}

	ids := snapshot.AccountIds()
	if *userFlag != "" {
		if _, ok := snapshot.Accounts[*userFlag]; !ok {
			logger.Fatal("User not found", zap.String("user_id", *userFlag))
		}
		ids = []string{*userFlag}
	}

	// Print header
	common.PrintHeader("ACCRUAL BALANCE REPORT", common.DefaultWidth)
	common.PrintBoxSeparator(78)

	stats := printAccounts(snapshot, ids, cfg)

	if dbService, ok := st.(*database.Service); ok {
		if w, err := dbService.LastWrite(ctx); err != nil {
			logger.Warn("Failed to read snapshot metadata", zap.Error(err))
		} else if w != nil {
			fmt.Printf("\nLast saved %s (write %s)\n", w.WrittenAt.Format("2006-01-02 15:04:05"), w.Id)
		}

		if since, err := dbService.EnrollmentTimes(ctx); err != nil {
			logger.Warn("Failed to read enrollment times", zap.Error(err))
		} else {
			for _, id := range ids {
				if t, ok := since[id]; ok {
					fmt.Printf("%-24s accruing since %s\n", id, t.Format("2006-01-02 15:04:05"))
				}
			}
		}
	}

	// Print footer summary
	summary := fmt.Sprintf("SUMMARY: %d accounts, %d accruing, %s total (balances and remainders)",
		stats.totalAccounts, stats.enrolled,
		api.FormatUnits(stats.total, cfg.Ledger.UnitsPerCurrency, cfg.Ledger.DisplayDecimals))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("enrolled", stats.enrolled))
}
