package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upstream_requests_total",
			Help: "Total number of upstream catalog API requests.",
		},
		[]string{"endpoint", "status"},
	)
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_upstream_request_duration_seconds",
			Help:    "Histogram of upstream request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	gatewayWaitSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_gateway_wait_seconds_total",
			Help: "Time spent waiting on the rate-limit gateway.",
		},
		[]string{"reason"},
	)
	quotaRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_gateway_quota_retries_total",
			Help: "Requests resubmitted after a quota-exceeded response.",
		},
	)
	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_runs_total",
			Help: "Completed sync runs by channel and status.",
		},
		[]string{"channel", "status"},
	)
	syncItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_items_total",
			Help: "Items handled by sync runs.",
		},
		[]string{"channel", "entity", "outcome"},
	)
	orphansHiddenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_orphans_hidden_total",
			Help: "Local products hidden because upstream stopped returning them.",
		},
		[]string{"channel"},
	)
	httpPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_panics_total",
			Help: "Panics recovered while serving API requests.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamRequestDuration)
	prometheus.MustRegister(gatewayWaitSeconds)
	prometheus.MustRegister(quotaRetriesTotal)
	prometheus.MustRegister(syncRunsTotal)
	prometheus.MustRegister(syncItemsTotal)
	prometheus.MustRegister(orphansHiddenTotal)
	prometheus.MustRegister(httpPanicsTotal)
}

// RecordUpstream records one upstream round trip.
func RecordUpstream(endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	upstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

// RecordWait records time a caller was held back by the gateway.
func RecordWait(reason string, d time.Duration) {
	if d <= 0 {
		return
	}
	gatewayWaitSeconds.WithLabelValues(reason).Add(d.Seconds())
}

func RecordQuotaRetry() {
	quotaRetriesTotal.Inc()
}

func RecordSyncRun(channel, status string) {
	syncRunsTotal.WithLabelValues(channel, status).Inc()
}

func RecordSyncItems(channel, entity string, processed, failed int) {
	syncItemsTotal.WithLabelValues(channel, entity, "processed").Add(float64(processed))
	syncItemsTotal.WithLabelValues(channel, entity, "failed").Add(float64(failed))
}

func RecordOrphansHidden(channel string, n int) {
	orphansHiddenTotal.WithLabelValues(channel).Add(float64(n))
}

// RecordPanic counts a recovered handler panic by route template.
func RecordPanic(route string) {
	if route == "" {
		route = "unmatched"
	}
	httpPanicsTotal.WithLabelValues(route).Inc()
}

// classifyStatus maps a status code to its class; 0 means the request never
// got a response.
func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	} else if statusCode == 0 {
		return "error"
	}
	return "unknown"
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
