package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Ledger   LedgerConfig
	Accrual  AccrualConfig
	Database DatabaseConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// LedgerConfig holds snapshot storage and display settings
type LedgerConfig struct {
	StorageBackend   string // "file", "sqlite" or "memory"
	StoragePath      string
	UnitsPerCurrency int64
	DisplayDecimals  int32
}

// AccrualConfig holds scheduler settings
type AccrualConfig struct {
	HourlyRate        decimal.Decimal // currency units per hour
	TickPeriod        time.Duration
	DivisionPrecision int32
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string
}
