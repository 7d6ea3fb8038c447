package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the fan voting service.
// Capture and verification run in the attendance client, which has no
// metrics endpoint; only the service-side counters are registered here.
type Metrics struct {
	// Ballot metrics
	BallotsAccepted prometheus.Counter
	BallotsRejected *prometheus.CounterVec

	// Tally metrics
	TalliesComputed prometheus.Counter
	TallyDuration   prometheus.Histogram
	TallyBallots    prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Ballot metrics
		BallotsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanvote_ballots_accepted_total",
			Help: "Total number of ballots accepted and stored",
		}),
		BallotsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanvote_ballots_rejected_total",
			Help: "Total number of ballots rejected at the submission boundary",
		}, []string{"reason"}),

		// Tally metrics
		TalliesComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanvote_tallies_computed_total",
			Help: "Total number of aggregate results computed",
		}),
		TallyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanvote_tally_duration_seconds",
			Help:    "Duration of full-scan tally computations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		TallyBallots: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanvote_tally_ballots",
			Help:    "Number of ballots scanned per tally",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1 to ~260k
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanvote_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fanvote_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanvote_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordBallotAccepted increments the accepted ballots counter
func (m *Metrics) RecordBallotAccepted() {
	m.BallotsAccepted.Inc()
}

// RecordBallotRejected records a rejected ballot by reason
func (m *Metrics) RecordBallotRejected(reason string) {
	m.BallotsRejected.WithLabelValues(reason).Inc()
}

// RecordTally records a computed tally
func (m *Metrics) RecordTally(ballotCount int, durationSeconds float64) {
	m.TalliesComputed.Inc()
	m.TallyDuration.Observe(durationSeconds)
	m.TallyBallots.Observe(float64(ballotCount))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
