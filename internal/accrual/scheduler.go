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

package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"accrual-ledger-go/internal/metrics"
	"accrual-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the subset of the ledger the scheduler needs
type Ledger interface {
	Enrolled() []string
	EnsureAccount(ctx context.Context, id string) error
	Credit(ctx context.Context, id string, amount decimal.Decimal) error
}

type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// SchedulerConfig contains configuration for Scheduler
type SchedulerConfig struct {
	Ledger            Ledger
	HourlyRate        decimal.Decimal // currency units per hour
	UnitsPerCurrency  int64
	TickPeriod        time.Duration
	DivisionPrecision int32
}

// TickResult summarises one tick
type TickResult struct {
	RunId    string
	Enrolled int
	Credited int
	Failed   int
}

// Scheduler credits every enrolled account a fixed amount once per tick
type Scheduler struct {
	ledger     Ledger
	tickPeriod time.Duration
	perTick    decimal.Decimal
	metrics    *metrics.LedgerMetrics

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewScheduler creates a new accrual scheduler
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("scheduler requires a ledger")
	}
	if cfg.TickPeriod <= 0 {
		return nil, fmt.Errorf("tick period must be positive, got %v", cfg.TickPeriod)
	}
	if cfg.HourlyRate.IsNegative() {
		return nil, fmt.Errorf("hourly rate cannot be negative, got %s", cfg.HourlyRate.String())
	}
	if cfg.UnitsPerCurrency <= 0 {
		return nil, fmt.Errorf("units per currency must be positive, got %d", cfg.UnitsPerCurrency)
	}
	if cfg.DivisionPrecision <= 0 {
		cfg.DivisionPrecision = 16
	}

	return &Scheduler{
		ledger:     cfg.Ledger,
		tickPeriod: cfg.TickPeriod,
		perTick:    PerTickAmount(cfg.HourlyRate, cfg.UnitsPerCurrency, cfg.TickPeriod, cfg.DivisionPrecision),
		metrics:    metrics.Ledger(),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// PerTickAmount converts an hourly rate in currency units into the amount of
// smallest units credited per tick: rate * units * period / 1h, rounded at
// precision fractional digits.
func PerTickAmount(hourlyRate decimal.Decimal, unitsPerCurrency int64, period time.Duration, precision int32) decimal.Decimal {
	perHour := hourlyRate.Mul(decimal.NewFromInt(unitsPerCurrency))
	return perHour.Mul(decimal.NewFromInt(int64(period))).
		DivRound(decimal.NewFromInt(int64(time.Hour)), precision)
}

func (s *Scheduler) PerTickAmount() decimal.Decimal {
	return s.perTick
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done is closed once the loop has exited
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneChan
}

// Start launches the tick loop. The loop stops when ctx is cancelled or Stop
// is called; either is only observed between ticks.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	s.state.Store(int32(StateRunning))
	go s.tickLoop(ctx)

	zap.L().Info("Accrual scheduler started",
		zap.Duration("tick_period", s.tickPeriod),
		zap.String("per_tick_units", s.perTick.String()))
	return nil
}

// Stop requests shutdown and waits for the loop to exit, which can take up to
// one tick period.
func (s *Scheduler) Stop() {
	zap.L().Info("Stopping accrual scheduler")
	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.started.Load() {
		<-s.doneChan
	}
	zap.L().Info("Accrual scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.doneChan)
	defer s.state.Store(int32(StateStopped))

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	for {
		if s.cancelled(ctx) {
			return
		}
		s.RunTick(ctx)

		// Wait out the period; cancellation is checked at the next boundary.
		<-ticker.C
	}
}

func (s *Scheduler) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

// RunTick credits every currently enrolled account once. A failure on one
// account is logged and does not stop the others.
func (s *Scheduler) RunTick(ctx context.Context) TickResult {
	enrolled := s.ledger.Enrolled()
	result := TickResult{
		RunId:    uuid.New().String(),
		Enrolled: len(enrolled),
	}
	s.metrics.RecordTick()

	for _, id := range enrolled {
		if err := s.creditOne(ctx, id); err != nil {
			result.Failed++
			s.metrics.RecordCredit(metrics.ResultError)
			zap.L().Error("Failed to accrue for account",
				zap.String("run_id", result.RunId),
				zap.String("user_id", id),
				zap.Error(err))
			continue
		}
		result.Credited++
		s.metrics.RecordCredit(metrics.ResultOk)
	}

	zap.L().Debug("Accrual tick complete",
		zap.String("run_id", result.RunId),
		zap.Int("enrolled", result.Enrolled),
		zap.Int("credited", result.Credited),
		zap.Int("failed", result.Failed))
	return result
}

func (s *Scheduler) creditOne(ctx context.Context, id string) error {
	// A failed write still leaves the account in memory; only other errors
	// mean there is nothing to credit.
	if err := s.ledger.EnsureAccount(ctx, id); err != nil {
		if !errors.Is(err, store.ErrStorageWrite) {
			return fmt.Errorf("ensure account: %w", err)
		}
		zap.L().Warn("New account not yet persisted, crediting anyway",
			zap.String("user_id", id),
			zap.Error(err))
	}
	if err := s.ledger.Credit(ctx, id, s.perTick); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}
