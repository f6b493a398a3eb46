// Package metrics exposes Prometheus instruments for billing operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/septivank/electricity-billing/internal/ledger"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_operations_total",
			Help: "Total number of ledger operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	operationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_operation_duration_seconds",
			Help:    "Ledger operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	consumptionKWhTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_consumption_kwh_total",
			Help: "Billed consumption per tariff channel.",
		},
		[]string{"channel"},
	)
	billedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_amount_total",
			Help: "Sum of billed amounts.",
		},
	)
	resetsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_counter_resets_total",
			Help: "Counter rollovers detected per tariff channel.",
		},
		[]string{"channel"},
	)
	anomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_consumption_anomalies_total",
			Help: "Billed consumption flagged as anomalous per tariff channel.",
		},
		[]string{"channel"},
	)
)

// ObserveOperation records the outcome and latency of a ledger operation
func ObserveOperation(operation string, err error, dur time.Duration) {
	operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	operationDurationSeconds.WithLabelValues(operation).Observe(dur.Seconds())
}

// ObserveRecord records the consumption, amount and resets of a billing record
func ObserveRecord(rec *ledger.BillingRecord) {
	// negative consumption is still billed but cannot feed a counter
	if rec.DayConsumption > 0 {
		consumptionKWhTotal.WithLabelValues("day").Add(rec.DayConsumption)
	}
	if rec.NightConsumption > 0 {
		consumptionKWhTotal.WithLabelValues("night").Add(rec.NightConsumption)
	}
	if rec.TotalAmount > 0 {
		billedAmountTotal.Add(rec.TotalAmount)
	}
	if rec.DayResetDetected {
		resetsDetectedTotal.WithLabelValues("day").Inc()
	}
	if rec.NightResetDetected {
		resetsDetectedTotal.WithLabelValues("night").Inc()
	}
}

// ObserveAnomaly counts a flagged channel
func ObserveAnomaly(channel string) {
	anomaliesTotal.WithLabelValues(channel).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ledger.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
