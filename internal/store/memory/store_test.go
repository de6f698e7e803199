package memory

import (
	"context"
	"errors"
	"testing"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"
)

func TestStore_RoundTrip(t *testing.T) {
	m := NewStore()
	ctx := context.Background()

	s := models.NewSnapshot()
	s.Accounts["alice"] = models.Account{BalanceUnits: 3}
	s.Enrolled["alice"] = struct{}{}

	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.Accounts["alice"] = models.Account{BalanceUnits: 99}

	got, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Accounts["alice"].BalanceUnits != 3 {
		t.Errorf("Expected saved copy to be isolated from later mutation, got %d", got.Accounts["alice"].BalanceUnits)
	}
	if m.Saves() != 1 {
		t.Errorf("Expected 1 save, got %d", m.Saves())
	}
}

func TestStore_InjectedFailures(t *testing.T) {
	m := NewStore()
	ctx := context.Background()

	m.FailLoads(errors.New("boom"))
	snapshot, err := m.Load(ctx)
	if !errors.Is(err, store.ErrStorageRead) || snapshot == nil {
		t.Errorf("Expected ErrStorageRead with empty snapshot, got %v, %v", snapshot, err)
	}

	m.FailSaves(errors.New("disk full"))
	if err := m.Save(ctx, models.NewSnapshot()); !errors.Is(err, store.ErrStorageWrite) {
		t.Errorf("Expected ErrStorageWrite, got %v", err)
	}
	if m.Saved() != nil {
		t.Errorf("Expected nothing saved after failure")
	}
}
