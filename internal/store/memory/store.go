package memory

import (
	"context"
	"fmt"
	"sync"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"
)

// Compile-time check: *Store must satisfy store.SnapshotStore.
var _ store.SnapshotStore = (*Store)(nil)

// Store keeps the saved snapshot in process memory. Nothing survives a
// restart; it backs ephemeral runs and tests.
type Store struct {
	mu      sync.Mutex
	saved   *models.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func NewStore() *Store {
	return &Store{}
}

// NewStoreWith returns a store whose next Load yields a copy of snapshot
func NewStoreWith(snapshot *models.Snapshot) *Store {
	return &Store{saved: snapshot.Clone()}
}

func (m *Store) Load(_ context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return models.NewSnapshot(), fmt.Errorf("%w: %v", store.ErrStorageRead, m.loadErr)
	}
	if m.saved == nil {
		return models.NewSnapshot(), nil
	}
	return m.saved.Clone(), nil
}

func (m *Store) Save(_ context.Context, snapshot *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageWrite, m.saveErr)
	}
	m.saved = snapshot.Clone()
	m.saves++
	return nil
}

func (m *Store) Close() {}

// FailLoads makes every Load report err
func (m *Store) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// FailSaves makes every Save report err until called again with nil
func (m *Store) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns the number of successful saves
func (m *Store) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Saved returns a copy of the last successfully saved snapshot, or nil
func (m *Store) Saved() *models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil
	}
	return m.saved.Clone()
}
