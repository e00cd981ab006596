package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rxmetrics",
		Subsystem: "pipeline",
		Name:      "units_total",
		Help:      "Units of work processed, by category and outcome.",
	}, []string{"category", "status"})

	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rxmetrics",
		Subsystem: "pipeline",
		Name:      "rows_written_total",
		Help:      "Result rows persisted, by category.",
	}, []string{"category"})

	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rxmetrics",
		Subsystem: "pipeline",
		Name:      "unit_duration_seconds",
		Help:      "Time spent computing and persisting one unit.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"category"})
)

func observeUnit(category string, u UnitResult) {
	status := "ok"
	if u.Err != nil {
		status = "error"
	}
	unitsTotal.WithLabelValues(category, status).Inc()
	unitDuration.WithLabelValues(category).Observe(u.Duration.Seconds())
	if u.Err == nil {
		rowsWritten.WithLabelValues(category).Add(float64(u.Rows))
	}
}
