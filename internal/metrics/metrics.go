// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepCellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikelab_sweep_cells_total",
			Help: "Grid cells evaluated by optimizer sweeps",
		},
		[]string{"mode", "outcome"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strikelab_sweep_duration_seconds",
			Help:    "Wall time of optimizer sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"mode"},
	)

	MaxPainTimestampsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikelab_maxpain_timestamps_total",
			Help: "Timestamps processed by max-pain sweeps",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strikelab_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "strikelab_http_request_duration_seconds",
			Help: "HTTP request latency",
		},
		[]string{"route"},
	)
)

// ObserveSweep records one finished sweep.
func ObserveSweep(mode string, ok, failed int, elapsed time.Duration) {
	SweepCellsTotal.WithLabelValues(mode, "ok").Add(float64(ok))
	SweepCellsTotal.WithLabelValues(mode, "failed").Add(float64(failed))
	SweepDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveMaxPain records the outcome counts of one max-pain sweep.
func ObserveMaxPain(ok, failed int) {
	MaxPainTimestampsTotal.WithLabelValues("ok").Add(float64(ok))
	MaxPainTimestampsTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveHTTP records one served request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
