package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		verifyRequests,
		verifyDuration,
		fulfillmentsTotal,
		gatewayCalls,
	)
}

var (
	// Count of verify calls grouped by result and bounded reason.
	// result: ok|fail
	// reason (fail only): not_found|rejected|amount_mismatch|gateway_error|rate_limited|bad_request|unknown
	verifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of verify-and-fulfill calls by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Latency of the verify flow grouped by result.
	verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of the verify-and-fulfill flow in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	// Fulfillment grants by payment type and outcome.
	// outcome: granted|duplicate|error
	fulfillmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_fulfillments_total",
			Help: "Fulfillment grants by payment type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// Outbound gateway calls by operation and result.
	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Outbound payment gateway calls by operation and result.",
		},
		[]string{"op", "result"},
	)
)

func IncVerify(result, reason string) {
	verifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
}

func ObserveVerifyDuration(result string, seconds float64) {
	verifyDuration.WithLabelValues(norm(result)).Observe(seconds)
}

func IncFulfillment(paymentType, outcome string) {
	fulfillmentsTotal.WithLabelValues(norm(paymentType), norm(outcome)).Inc()
}

func IncGatewayCall(op, result string) {
	gatewayCalls.WithLabelValues(norm(op), norm(result)).Inc()
}
