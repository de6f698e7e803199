package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"accrual-ledger-go/internal/config"
	"accrual-ledger-go/internal/database"
	"accrual-ledger-go/internal/filestore"
	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store/memory"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
)

func testConfig(t *testing.T, backend string) *models.Config {
	t.Helper()
	dir := t.TempDir()
	return &models.Config{
		Ledger: models.LedgerConfig{
			StorageBackend:   backend,
			StoragePath:      filepath.Join(dir, "ledger.json"),
			UnitsPerCurrency: 100,
			DisplayDecimals:  2,
		},
		Accrual: models.AccrualConfig{
			HourlyRate:        decimal.NewFromInt(22),
			TickPeriod:        time.Minute,
			DivisionPrecision: 16,
		},
		Database: models.DatabaseConfig{
			Path:         filepath.Join(dir, "ledger.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
			PingTimeout:  time.Second,
		},
	}
}

func TestOpenSnapshotStore(t *testing.T) {
	ctx := context.Background()

	st, err := OpenSnapshotStore(ctx, testConfig(t, config.BackendFile))
	if err != nil {
		t.Fatalf("file backend failed: %v", err)
	}
	if _, ok := st.(*filestore.Service); !ok {
		t.Errorf("Expected *filestore.Service, got %T", st)
	}

	st, err = OpenSnapshotStore(ctx, testConfig(t, config.BackendSqlite))
	if err != nil {
		t.Fatalf("sqlite backend failed: %v", err)
	}
	if _, ok := st.(*database.Service); !ok {
		t.Errorf("Expected *database.Service, got %T", st)
	}
	st.Close()

	st, err = OpenSnapshotStore(ctx, testConfig(t, config.BackendMemory))
	if err != nil {
		t.Fatalf("memory backend failed: %v", err)
	}
	if _, ok := st.(*memory.Store); !ok {
		t.Errorf("Expected *memory.Store, got %T", st)
	}

	if _, err := OpenSnapshotStore(ctx, testConfig(t, "tape")); err == nil {
		t.Errorf("Expected error for unknown backend")
	}
}

func TestOpenReportStore_DoesNotCreateDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendSqlite)

	if _, err := OpenReportStore(ctx, cfg); err == nil {
		t.Fatalf("Expected error for a missing database")
	}
	if _, err := os.Stat(cfg.Database.Path); !os.IsNotExist(err) {
		t.Fatalf("Expected no database file to be created, stat err: %v", err)
	}

	writer, err := OpenSnapshotStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenSnapshotStore failed: %v", err)
	}
	writer.Close()

	st, err := OpenReportStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenReportStore failed: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*database.Service); !ok {
		t.Errorf("Expected *database.Service, got %T", st)
	}
}

func TestInitializeServices(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendFile)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeServices failed: %v", err)
	}
	defer services.Close()

	if _, err := services.Commands.Execute(ctx, "enroll alice"); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	services.Scheduler.RunTick(ctx)

	// A second set of services on the same file sees the accrued state.
	again, err := InitializeServices(ctx, cfg)
	if err != nil {
		t.Fatalf("InitializeServices failed: %v", err)
	}
	defer again.Close()

	got, err := again.Commands.GetDisplayBalance(ctx, "alice")
	if err != nil {
		t.Fatalf("GetDisplayBalance failed: %v", err)
	}
	if got != "0.37" {
		t.Errorf("Expected 0.37 after one tick, got %s", got)
	}
	if enrolled := again.Ledger.Enrolled(); len(enrolled) != 1 || enrolled[0] != "alice" {
		t.Errorf("Expected alice to stay enrolled, got %v", enrolled)
	}
}

func TestInitializeLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "ledger.log")
	logger, cleanup := InitializeLogger(models.LogConfig{Level: "debug", File: logFile, MaxSizeMB: 1, MaxBackups: 1})
	defer cleanup()

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("Expected debug level to be enabled")
	}
	logger.Info("hello")
}
