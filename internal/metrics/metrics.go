package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_ledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wallet_ledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Withdrawal execution outcomes, incremented once per worker tick from the
// run summaries.
var (
	withdrawalsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet_ledger",
		Subsystem: "worker",
		Name:      "withdrawals_processed_total",
		Help:      "Withdrawals picked up by the executor",
	})

	withdrawalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_ledger",
			Subsystem: "worker",
			Name:      "withdrawal_outcomes_total",
			Help:      "Withdrawal outcomes by result",
		},
		[]string{"outcome"},
	)

	reconciliationResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet_ledger",
			Subsystem: "worker",
			Name:      "reconciliation_resolutions_total",
			Help:      "Reconciliation task resolutions by result",
		},
		[]string{"result"},
	)
)

func RecordWithdrawalOutcomes(processed, succeeded, failed, insufficientFunds, unknown, queued int) {
	withdrawalsProcessed.Add(float64(processed))
	withdrawalOutcomes.WithLabelValues("succeeded").Add(float64(succeeded))
	withdrawalOutcomes.WithLabelValues("failed").Add(float64(failed))
	withdrawalOutcomes.WithLabelValues("insufficient_funds").Add(float64(insufficientFunds))
	withdrawalOutcomes.WithLabelValues("unknown").Add(float64(unknown))
	withdrawalOutcomes.WithLabelValues("reconciliation_queued").Add(float64(queued))
}

func RecordReconciliation(markedUnknown, resolvedSuccess, resolvedFailure, resolved, pending int) {
	reconciliationResolutions.WithLabelValues("marked_unknown").Add(float64(markedUnknown))
	reconciliationResolutions.WithLabelValues("resolved_success").Add(float64(resolvedSuccess))
	reconciliationResolutions.WithLabelValues("resolved_failure").Add(float64(resolvedFailure))
	reconciliationResolutions.WithLabelValues("resolved_terminal").Add(float64(resolved))
	reconciliationResolutions.WithLabelValues("pending").Add(float64(pending))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
