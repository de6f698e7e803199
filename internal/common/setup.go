package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"accrual-ledger-go/internal/accrual"
	"accrual-ledger-go/internal/api"
	"accrual-ledger-go/internal/config"
	"accrual-ledger-go/internal/database"
	"accrual-ledger-go/internal/filestore"
	"accrual-ledger-go/internal/ledger"
	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"
	"accrual-ledger-go/internal/store/memory"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Store     store.SnapshotStore
	Ledger    *ledger.Ledger
	Scheduler *accrual.Scheduler
	Commands  *api.CommandService
}

// InitializeLogger builds a production zap logger at the configured level.
// With cfg.File set, output also goes to a size-rotated file.
func InitializeLogger(cfg models.LogConfig) (*zap.Logger, func()) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			log.Printf("Unknown log level %q, using info\n", cfg.Level)
			level = zap.InfoLevel
		}
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zapCfg.EncoderConfig),
			zapcore.AddSync(rotator),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
		if rotator != nil {
			if err := rotator.Close(); err != nil {
				log.Printf("Failed to close log file: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// OpenSnapshotStore opens the configured persistence backend
func OpenSnapshotStore(ctx context.Context, cfg *models.Config) (store.SnapshotStore, error) {
	switch cfg.Ledger.StorageBackend {
	case config.BackendFile:
		return filestore.NewService(cfg.Ledger.StoragePath)
	case config.BackendSqlite:
		return database.NewService(ctx, cfg.Database)
	case config.BackendMemory:
		zap.L().Warn("Using in-memory snapshot store; balances will not survive a restart")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Ledger.StorageBackend)
	}
}

// OpenReportStore opens the configured backend for reading only. A missing
// SQLite database is an error rather than being created.
func OpenReportStore(ctx context.Context, cfg *models.Config) (store.SnapshotStore, error) {
	if cfg.Ledger.StorageBackend == config.BackendSqlite {
		return database.OpenReadOnly(ctx, cfg.Database)
	}
	return OpenSnapshotStore(ctx, cfg)
}

// InitializeServices opens the store, loads the ledger and wires the
// scheduler and command surface around it. The scheduler is not started.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	st, err := OpenSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l := ledger.Open(ctx, st)

	scheduler, err := accrual.NewScheduler(accrual.SchedulerConfig{
		Ledger:            l,
		HourlyRate:        cfg.Accrual.HourlyRate,
		UnitsPerCurrency:  cfg.Ledger.UnitsPerCurrency,
		TickPeriod:        cfg.Accrual.TickPeriod,
		DivisionPrecision: cfg.Accrual.DivisionPrecision,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Services{
		Store:     st,
		Ledger:    l,
		Scheduler: scheduler,
		Commands:  api.NewCommandService(l, cfg.Ledger.UnitsPerCurrency, cfg.Ledger.DisplayDecimals),
	}, nil
}

func (cs *Services) Close() {
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stderr: invalid argument")
}
