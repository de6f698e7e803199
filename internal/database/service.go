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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.SnapshotStore.
var _ store.SnapshotStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := openDb(ctx, cfg, cfg.Path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// OpenReadOnly opens an existing database without creating the file or the
// schema. Save on the returned service always fails.
func OpenReadOnly(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	zap.L().Info("Opening SQLite database read-only", zap.String("file", cfg.Path))
	db, err := openDb(ctx, cfg, cfg.Path+"?_busy_timeout=5000&_query_only=true")
	if err != nil {
		return nil, err
	}
	return &Service{db: db}, nil
}

func validateConfig(cfg models.DatabaseConfig) error {
	if cfg.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	return nil
}

func openDb(ctx context.Context, cfg models.DatabaseConfig, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Accounts: one row per user, whole units plus the exact sub-unit remainder
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance_units INTEGER NOT NULL DEFAULT 0 CHECK (balance_units >= 0),
		remainder TEXT NOT NULL DEFAULT '0',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		write_id TEXT NOT NULL DEFAULT ''
	);

	-- Enrollments: users currently opted into accrual
	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		enrolled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		write_id TEXT NOT NULL DEFAULT ''
	);

	-- Snapshot metadata: describes the most recent successful save
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
		write_id TEXT NOT NULL,
		written_at TIMESTAMP NOT NULL,
		accounts INTEGER NOT NULL,
		enrolled INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
