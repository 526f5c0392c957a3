// Package metrics provides Prometheus metrics for the sonarboard server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sonarboard",
			Name:      "http_requests_total",
			Help:      "Total number of handled HTTP requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration measures request handling time.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sonarboard",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// UpstreamErrorsTotal counts failed SonarQube calls.
	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sonarboard",
			Name:      "upstream_errors_total",
			Help:      "Total number of failed SonarQube API calls",
		},
		[]string{"operation"},
	)

	// DroppedSamplesTotal counts history samples the grouping engine discarded.
	DroppedSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sonarboard",
			Name:      "dropped_samples_total",
			Help:      "History samples dropped for an invalid date or value",
		},
	)

	// LastSnapshot is the unix time of the latest dashboard snapshot.
	LastSnapshot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sonarboard",
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time the dashboard snapshot was last replaced",
		},
	)
)

// RecordRequest records one handled request.
func RecordRequest(route string, status int, d time.Duration) {
	RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordUpstreamError records a failed upstream call.
func RecordUpstreamError(operation string) {
	UpstreamErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordDropped adds n dropped samples.
func RecordDropped(n int) {
	if n > 0 {
		DroppedSamplesTotal.Add(float64(n))
	}
}

// SetSnapshot records when the snapshot was replaced.
func SetSnapshot(at time.Time) {
	LastSnapshot.Set(float64(at.Unix()))
}
