// Package metrics registers the wallet's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics is safe to use through a nil pointer, which records nothing.
type WalletMetrics struct {
	transactions  *prometheus.CounterVec
	settled       *prometheus.CounterVec
	compensations prometheus.Counter
	inFlight      prometheus.Gauge
	submitLatency prometheus.Histogram
	reconciles    *prometheus.CounterVec
	adjustments   prometheus.Counter
	rpcs          *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
}

var (
	walletOnce     sync.Once
	walletRegistry *WalletMetrics
)

// Wallet returns the lazily registered wallet metrics.
func Wallet() *WalletMetrics {
	walletOnce.Do(func() {
		walletRegistry = &WalletMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Ledger entries appended, by kind.",
			}, []string{"kind"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "ledger",
				Name:      "settled_total",
				Help:      "Chain-backed entries that reached a terminal status.",
			}, []string{"status"}),
			compensations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "coordinator",
				Name:      "compensations_total",
				Help:      "Submissions reversed after a terminal chain failure.",
			}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "happypaisa",
				Subsystem: "coordinator",
				Name:      "in_flight",
				Help:      "Chain submissions committed locally but not yet settled.",
			}),
			submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "happypaisa",
				Subsystem: "gateway",
				Name:      "settle_duration_seconds",
				Help:      "Time from dispatch to a terminal chain outcome.",
				Buckets:   prometheus.DefBuckets,
			}),
			reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "sync",
				Name:      "reconciliations_total",
				Help:      "Reconciliation passes by outcome.",
			}, []string{"outcome"}),
			adjustments: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "sync",
				Name:      "adjustments_total",
				Help:      "Balances overwritten from the chain.",
			}),
			rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "happypaisa",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "gRPC requests by method and status code.",
			}, []string{"method", "code"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "happypaisa",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "gRPC handler latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			walletRegistry.transactions,
			walletRegistry.settled,
			walletRegistry.compensations,
			walletRegistry.inFlight,
			walletRegistry.submitLatency,
			walletRegistry.reconciles,
			walletRegistry.adjustments,
			walletRegistry.rpcs,
			walletRegistry.rpcLatency,
		)
	})
	return walletRegistry
}

func (m *WalletMetrics) TransactionAppended(kind string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind).Inc()
}

func (m *WalletMetrics) Settled(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(status).Inc()
	m.submitLatency.Observe(elapsed.Seconds())
}

func (m *WalletMetrics) Compensated() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

func (m *WalletMetrics) InFlight(delta int) {
	if m == nil {
		return
	}
	m.inFlight.Add(float64(delta))
}

// Reconciled counts one pass; outcome is "ok", "adjusted" or "error".
func (m *WalletMetrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(outcome).Inc()
	if outcome == "adjusted" {
		m.adjustments.Inc()
	}
}

func (m *WalletMetrics) ObserveRPC(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcs.WithLabelValues(method, code).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
