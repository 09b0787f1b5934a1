// metrics.go - Metrics collection for the resource machine daemon
package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armd",
		Name:      "http_requests_total",
		Help:      "HTTP requests by path and status code.",
	}, []string{"path", "code"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "armd",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	proofGeneration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "armd",
		Name:      "proof_generation_seconds",
		Help:      "Time to build and prove a transaction, by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"kind"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armd",
		Name:      "errors_total",
		Help:      "Errors by type.",
	}, []string{"type"})

	startTime = time.Now()

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "armd",
		Name:      "uptime_seconds",
		Help:      "Seconds since the daemon started.",
	}, func() float64 { return time.Since(startTime).Seconds() })
)

func RecordProofGeneration(kind string, d time.Duration) {
	proofGeneration.WithLabelValues(kind).Observe(d.Seconds())
}

func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
