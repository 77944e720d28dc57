package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_gateway_requests_total",
			Help: "Total number of copilot gateway requests by outcome.",
		},
		[]string{"outcome"},
	)
	gatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_gateway_latency_seconds",
			Help:    "End-to-end copilot gateway latency in seconds by outcome.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45},
		},
		[]string{"outcome"},
	)
	assistantRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_assistant_run_duration_seconds",
			Help:    "Time from run creation to terminal status (or timeout) in seconds.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 30},
		},
		[]string{"status"},
	)
	assistantRunPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_assistant_run_polls",
			Help:    "Number of run status polls per assistant run.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
		},
	)
	policyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_policy_rejections_total",
			Help: "Total number of generated statements rejected by the SQL policy, by rule.",
		},
		[]string{"rule"},
	)
	executedRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_executed_rows",
			Help:    "Rows returned per executed copilot statement.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		gatewayRequestsTotal,
		gatewayLatencySeconds,
		assistantRunDurationSeconds,
		assistantRunPolls,
		policyRejectionsTotal,
		executedRows,
	)
}

func ObserveGatewayOutcome(outcome string, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(outcome).Inc()
	gatewayLatencySeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func ObserveAssistantRun(status string, polls int, elapsed time.Duration) {
	assistantRunDurationSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
	if polls > 0 {
		assistantRunPolls.Observe(float64(polls))
	}
}

func IncrementPolicyRejection(rule string) {
	policyRejectionsTotal.WithLabelValues(rule).Inc()
}

func ObserveExecutedRows(count int) {
	if count < 0 {
		count = 0
	}
	executedRows.Observe(float64(count))
}
