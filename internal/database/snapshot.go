package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"accrual-ledger-go/internal/models"
	"accrual-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotWrite describes the most recent successful Save
type SnapshotWrite struct {
	Id        string
	WrittenAt time.Time
	Accounts  int
	Enrolled  int
}

// Load reads every account and enrollment row into a snapshot. Unreadable
// rows invalidate the whole snapshot.
func (s *Service) Load(ctx context.Context) (*models.Snapshot, error) {
	snapshot, err := s.loadSnapshot(ctx)
	if err != nil {
		return models.NewSnapshot(), fmt.Errorf("%w: %v", store.ErrStorageRead, err)
	}

	zap.L().Info("Loaded ledger snapshot from database",
		zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("enrolled", len(snapshot.Enrolled)))
	return snapshot, nil
}

func (s *Service) loadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snapshot := models.NewSnapshot()

	rows, err := s.db.QueryContext(ctx, queryGetAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	one := decimal.NewFromInt(1)
	for rows.Next() {
		var id, remainderStr string
		var units int64
		if err := rows.Scan(&id, &units, &remainderStr); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		remainder, err := decimal.NewFromString(remainderStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse remainder '%s' for %s: %w", remainderStr, id, err)
		}
		if units < 0 || remainder.IsNegative() || remainder.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("account %s out of range: units=%d remainder=%s", id, units, remainder.String())
		}

		snapshot.Accounts[id] = models.Account{BalanceUnits: units, Remainder: remainder}
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	enrolled, err := s.db.QueryContext(ctx, queryGetEnrollments)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(enrolled)

	for enrolled.Next() {
		var id string
		if err := enrolled.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		snapshot.Enrolled[id] = struct{}{}
	}

	if err := enrolled.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}

	return snapshot, nil
}

// Save atomically replaces the stored snapshot inside a single transaction
func (s *Service) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if err := s.saveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageWrite, err)
	}
	return nil
}

func (s *Service) saveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	writeId := uuid.New().String()
	now := time.Now().UTC()

	// updated_at only moves when the amounts change; enrolled_at is kept for
	// ids that stay enrolled.
	for _, id := range snapshot.AccountIds() {
		account := snapshot.Accounts[id]
		if _, err := tx.ExecContext(ctx, queryUpsertAccount, id, account.BalanceUnits, account.Remainder.String(), now, writeId); err != nil {
			return fmt.Errorf("failed to write account %s: %w", id, err)
		}
	}
	for _, id := range snapshot.EnrolledIds() {
		if _, err := tx.ExecContext(ctx, queryUpsertEnrollment, id, now, writeId); err != nil {
			return fmt.Errorf("failed to write enrollment %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, queryDeleteStaleAccounts, writeId); err != nil {
		return fmt.Errorf("failed to remove stale accounts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryDeleteStaleEnrollments, writeId); err != nil {
		return fmt.Errorf("failed to remove stale enrollments: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryUpsertSnapshotMeta, writeId, now, len(snapshot.Accounts), len(snapshot.Enrolled)); err != nil {
		return fmt.Errorf("failed to record snapshot metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("Saved ledger snapshot to database",
		zap.String("write_id", writeId),
		zap.Int("accounts", len(snapshot.Accounts)),
		zap.Int("enrolled", len(snapshot.Enrolled)))
	return nil
}

// LastWrite returns metadata about the most recent save, or nil if nothing has been saved yet
func (s *Service) LastWrite(ctx context.Context) (*SnapshotWrite, error) {
	var w SnapshotWrite
	err := s.db.QueryRowContext(ctx, queryGetSnapshotMeta).Scan(&w.Id, &w.WrittenAt, &w.Accounts, &w.Enrolled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot metadata: %w", err)
	}
	return &w, nil
}

// EnrollmentTimes returns when each currently enrolled id was first enrolled
func (s *Service) EnrollmentTimes(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, queryGetEnrollmentTimes)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	times := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var enrolledAt time.Time
		if err := rows.Scan(&id, &enrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		times[id] = enrolledAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}
	return times, nil
}
