// Package metrics exposes Prometheus instrumentation for both the
// streaming and scheduled engines against a private registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for the runner.
	Registry = prometheus.NewRegistry()

	mu sync.RWMutex

	// OrdersSubmitted counts orders that passed the safety pipeline and
	// were POSTed to the brokerage, labeled by engine and side.
	OrdersSubmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperrunner",
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Orders submitted to the brokerage",
		},
		[]string{"engine", "side"},
	)

	// OrdersRejected counts safety-rail rejections, labeled by reason.
	OrdersRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperrunner",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Orders rejected by the safety pipeline",
		},
		[]string{"engine", "reason"},
	)

	// TicksProcessed counts ticks dispatched to strategies, per symbol.
	TicksProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperrunner",
			Subsystem: "stream",
			Name:      "ticks_processed_total",
			Help:      "Ticks dispatched to strategies",
		},
		[]string{"symbol"},
	)

	// ActivePositions tracks the number of open positions per algorithm.
	ActivePositions = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paperrunner",
			Subsystem: "portfolio",
			Name:      "active_positions",
			Help:      "Number of open positions",
		},
		[]string{"algorithm_id"},
	)

	// AccountEquity tracks the most recently refreshed account equity.
	AccountEquity = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paperrunner",
			Subsystem: "account",
			Name:      "equity",
			Help:      "Last refreshed brokerage account equity",
		},
	)
)

// RecordOrderSubmitted increments the submitted-order counter.
func RecordOrderSubmitted(engine, side string) {
	mu.RLock()
	defer mu.RUnlock()
	OrdersSubmitted.WithLabelValues(engine, side).Inc()
}

// RecordOrderRejected increments the rejected-order counter for reason.
func RecordOrderRejected(engine, reason string) {
	mu.RLock()
	defer mu.RUnlock()
	OrdersRejected.WithLabelValues(engine, reason).Inc()
}

// RecordTick increments the tick counter for symbol.
func RecordTick(symbol string) {
	mu.RLock()
	defer mu.RUnlock()
	TicksProcessed.WithLabelValues(symbol).Inc()
}

// SetActivePositions sets the open-position gauge for an algorithm.
func SetActivePositions(algorithmID string, count int) {
	mu.Lock()
	defer mu.Unlock()
	ActivePositions.WithLabelValues(algorithmID).Set(float64(count))
}

// SetAccountEquity sets the account-equity gauge.
func SetAccountEquity(equity float64) {
	mu.Lock()
	defer mu.Unlock()
	AccountEquity.Set(equity)
}

// Init registers the standard go/process collectors.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
