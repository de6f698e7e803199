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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"accrual-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	BackendFile   = "file"
	BackendSqlite = "sqlite"
	BackendMemory = "memory"
)

func Load() (*models.Config, error) {
	tickPeriod, err := getEnvDuration("ACCRUAL_TICK_PERIOD", 60*time.Second)
	if err != nil {
		return nil, err
	}

	hourlyRate, err := getEnvDecimal("ACCRUAL_HOURLY_RATE", decimal.RequireFromString("22.00"))
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Ledger: models.LedgerConfig{
			StorageBackend:   strings.ToLower(getEnvString("LEDGER_STORAGE_BACKEND", BackendFile)),
			StoragePath:      getEnvString("LEDGER_STORAGE_PATH", "ledger.json"),
			UnitsPerCurrency: int64(getEnvInt("LEDGER_UNITS_PER_CURRENCY", 100)),
			DisplayDecimals:  int32(getEnvInt("LEDGER_DISPLAY_DECIMALS", 2)),
		},
		Accrual: models.AccrualConfig{
			HourlyRate:        hourlyRate,
			TickPeriod:        tickPeriod,
			DivisionPrecision: int32(getEnvInt("ACCRUAL_DIVISION_PRECISION", 16)),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "ledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 1),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Log: models.LogConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ""),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ledger cannot run with
func Validate(cfg *models.Config) error {
	switch cfg.Ledger.StorageBackend {
	case BackendFile, BackendSqlite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q, %q or %q)", cfg.Ledger.StorageBackend, BackendFile, BackendSqlite, BackendMemory)
	}
	if cfg.Ledger.UnitsPerCurrency <= 0 {
		return fmt.Errorf("units per currency must be positive, got %d", cfg.Ledger.UnitsPerCurrency)
	}
	if cfg.Ledger.DisplayDecimals < 0 {
		return fmt.Errorf("display decimals cannot be negative, got %d", cfg.Ledger.DisplayDecimals)
	}
	if cfg.Accrual.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %v", cfg.Accrual.TickPeriod)
	}
	if cfg.Accrual.TickPeriod > time.Hour {
		return fmt.Errorf("tick period cannot exceed one hour, got %v", cfg.Accrual.TickPeriod)
	}
	if cfg.Accrual.HourlyRate.IsNegative() {
		return fmt.Errorf("hourly rate cannot be negative, got %s", cfg.Accrual.HourlyRate.String())
	}
	if cfg.Accrual.DivisionPrecision <= 0 {
		return fmt.Errorf("division precision must be positive, got %d", cfg.Accrual.DivisionPrecision)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
