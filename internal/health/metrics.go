package health

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names exposed on /metrics.
const (
	MetricUptime          = "reconciler_uptime_seconds"
	MetricEventsProcessed = "reconciler_events_processed_total"
	MetricErrors          = "reconciler_errors_total"
)

// newMetricsHandler builds a dedicated registry whose collectors read
// straight from stats at scrape time.
func newMetricsHandler(stats *Stats) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: MetricUptime,
			Help: "Seconds since the reconciler started",
		}, func() float64 {
			return stats.Uptime().Seconds()
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: MetricEventsProcessed,
			Help: "Purchase events that resulted in a confirmed allowlist grant",
		}, func() float64 {
			return float64(stats.Snapshot().EventsProcessed)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: MetricErrors,
			Help: "Errors caught while polling or handling events",
		}, func() float64 {
			return float64(stats.Snapshot().Errors)
		}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
