package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOk    = "ok"
	ResultError = "error"
)

type LedgerMetrics struct {
	ticks            prometheus.Counter
	credits          *prometheus.CounterVec
	storageWrites    *prometheus.CounterVec
	enrolledAccounts prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			ticks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "accrual_ticks_total",
				Help: "Number of accrual scheduler ticks processed.",
			}),
			credits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "accrual_credits_total",
				Help: "Accrual credits applied to enrolled accounts by result.",
			}, []string{"result"}),
			storageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_storage_writes_total",
				Help: "Snapshot write-through attempts by result.",
			}, []string{"result"}),
			enrolledAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_enrolled_accounts",
				Help: "Accounts currently enrolled in accrual.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.ticks,
			ledgerRegistry.credits,
			ledgerRegistry.storageWrites,
			ledgerRegistry.enrolledAccounts,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) RecordTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *LedgerMetrics) RecordCredit(result string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(result).Inc()
}

func (m *LedgerMetrics) RecordStorageWrite(result string) {
	if m == nil {
		return
	}
	m.storageWrites.WithLabelValues(result).Inc()
}

func (m *LedgerMetrics) SetEnrolled(count int) {
	if m == nil {
		return
	}
	m.enrolledAccounts.Set(float64(count))
}
