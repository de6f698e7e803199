package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second connection would see a different in-memory database.
	db.SetMaxOpenConns(1)

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func sampleSnapshot() *models.Snapshot {
	s := models.NewSnapshot()
	s.Accounts["alice"] = models.Account{BalanceUnits: 2200, Remainder: decimal.Zero}
	s.Accounts["bob"] = models.Account{BalanceUnits: 73, Remainder: decimal.RequireFromString("0.3333333333333334")}
	s.Enrolled["alice"] = struct{}{}
	s.Enrolled["dave"] = struct{}{}
	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	want := sampleSnapshot()

	if err := service.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := service.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestSave_ReplacesPreviousSnapshot(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	next := models.NewSnapshot()
	next.Accounts["carol"] = models.Account{BalanceUnits: 1}
	if err := service.Save(ctx, next); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := service.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(next) {
		t.Errorf("Expected only the latest snapshot, got %+v", got)
	}
}

func TestLoad_EmptyDatabase(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	got, err := service.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Accounts) != 0 || len(got.Enrolled) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", got)
	}
}

func TestLoad_CorruptRemainder(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.db.Exec(queryUpsertAccount, "alice", 5, "not-a-number", time.Now(), "manual"); err != nil {
		t.Fatalf("Failed to insert corrupt row: %v", err)
	}

	got, err := service.Load(ctx)
	if !errors.Is(err, store.ErrStorageRead) {
		t.Fatalf("Expected ErrStorageRead, got %v", err)
	}
	if got == nil || len(got.Accounts) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", got)
	}
}

func TestLoad_RemainderOutOfRange(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	if _, err := service.db.Exec(queryUpsertAccount, "alice", 5, "1.5", time.Now(), "manual"); err != nil {
		t.Fatalf("Failed to insert row: %v", err)
	}

	if _, err := service.Load(context.Background()); !errors.Is(err, store.ErrStorageRead) {
		t.Errorf("Expected ErrStorageRead, got %v", err)
	}
}

func TestSave_ClosedDatabase(t *testing.T) {
	service, cleanup := setupTestDb(t)
	cleanup()

	err := service.Save(context.Background(), sampleSnapshot())
	if !errors.Is(err, store.ErrStorageWrite) {
		t.Errorf("Expected ErrStorageWrite, got %v", err)
	}
}

func TestLastWrite(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	w, err := service.LastWrite(ctx)
	if err != nil {
		t.Fatalf("LastWrite failed: %v", err)
	}
	if w != nil {
		t.Fatalf("Expected no write metadata before first save, got %+v", w)
	}

	if err := service.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	w, err = service.LastWrite(ctx)
	if err != nil {
		t.Fatalf("LastWrite failed: %v", err)
	}
	if w == nil || w.Id == "" {
		t.Fatalf("Expected write metadata, got %+v", w)
	}
	if w.Accounts != 2 || w.Enrolled != 2 {
		t.Errorf("Expected 2 accounts and 2 enrolled, got %d and %d", w.Accounts, w.Enrolled)
	}
}

func TestNewService_FileDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	}

	service, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := service.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	service.Close()

	reopened, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(sampleSnapshot()) {
		t.Errorf("Expected persisted snapshot after reopen, got %+v", got)
	}
}

func TestSave_KeepsEnrollmentAndUpdateTimes(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	firstEnrolled, err := service.EnrollmentTimes(ctx)
	if err != nil {
		t.Fatalf("EnrollmentTimes failed: %v", err)
	}
	var aliceUpdated time.Time
	if err := service.db.QueryRow("SELECT updated_at FROM accounts WHERE id = ?", "alice").Scan(&aliceUpdated); err != nil {
		t.Fatalf("Failed to read updated_at: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// bob changes, alice does not, dave leaves, erin joins.
	next := sampleSnapshot()
	next.Accounts["bob"] = models.Account{BalanceUnits: 110, Remainder: decimal.New(1, -16)}
	delete(next.Enrolled, "dave")
	next.Enrolled["erin"] = struct{}{}
	if err := service.Save(ctx, next); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := service.EnrollmentTimes(ctx)
	if err != nil {
		t.Fatalf("EnrollmentTimes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected alice and erin enrolled, got %v", got)
	}
	if !got["alice"].Equal(firstEnrolled["alice"]) {
		t.Errorf("Expected alice's enrollment time %v to be kept, got %v", firstEnrolled["alice"], got["alice"])
	}
	if !got["erin"].After(firstEnrolled["alice"]) {
		t.Errorf("Expected erin's enrollment time to be the second save, got %v", got["erin"])
	}

	var aliceAfter, bobAfter time.Time
	if err := service.db.QueryRow("SELECT updated_at FROM accounts WHERE id = ?", "alice").Scan(&aliceAfter); err != nil {
		t.Fatalf("Failed to read updated_at: %v", err)
	}
	if err := service.db.QueryRow("SELECT updated_at FROM accounts WHERE id = ?", "bob").Scan(&bobAfter); err != nil {
		t.Fatalf("Failed to read updated_at: %v", err)
	}
	if !aliceAfter.Equal(aliceUpdated) {
		t.Errorf("Expected unchanged account to keep updated_at %v, got %v", aliceUpdated, aliceAfter)
	}
	if !bobAfter.After(aliceUpdated) {
		t.Errorf("Expected changed account to get a new updated_at, got %v", bobAfter)
	}

	loaded, err := service.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Equal(next) {
		t.Errorf("Expected latest snapshot, got %+v", loaded)
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	}

	if _, err := OpenReadOnly(ctx, cfg); err == nil {
		t.Fatalf("Expected error opening a missing database read-only")
	}
	if _, err := os.Stat(cfg.Path); !os.IsNotExist(err) {
		t.Fatalf("Expected read-only open not to create %s, stat err: %v", cfg.Path, err)
	}

	writer, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := writer.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	writer.Close()

	reader, err := OpenReadOnly(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer reader.Close()

	got, err := reader.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(sampleSnapshot()) {
		t.Errorf("Expected saved snapshot, got %+v", got)
	}
	if err := reader.Save(ctx, models.NewSnapshot()); !errors.Is(err, store.ErrStorageWrite) {
		t.Errorf("Expected read-only save to fail with ErrStorageWrite, got %v", err)
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"no connections", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}
