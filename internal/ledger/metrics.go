// metrics.go - Prometheus metrics for ledger submissions.

package ledger

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"resourcemachine/internal/arm"
)

var (
	submitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arm",
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Submitted transactions by outcome.",
	}, []string{"result"})

	submitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arm",
		Subsystem: "ledger",
		Name:      "submit_duration_seconds",
		Help:      "Time to check, verify and append a transaction.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	commitments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arm",
		Subsystem: "ledger",
		Name:      "commitments",
		Help:      "Commitments in the ledger's commitment tree.",
	})

	nullifiers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arm",
		Subsystem: "ledger",
		Name:      "nullifiers",
		Help:      "Nullifiers recorded as spent.",
	})
)

// result labels a submission outcome.
func result(err error) string {
	switch {
	case err == nil:
		return "appended"
	case errors.Is(err, ErrDoubleSpend):
		return "double_spend"
	case errors.Is(err, ErrUnknownRoot):
		return "unknown_root"
	case arm.IsMalformed(err):
		return "malformed"
	default:
		return "invalid"
	}
}

func observeSubmit(err error, d time.Duration) {
	submitted.WithLabelValues(result(err)).Inc()
	submitDuration.Observe(d.Seconds())
}

func setSizes(cms, nfs int) {
	commitments.Set(float64(cms))
	nullifiers.Set(float64(nfs))
}
