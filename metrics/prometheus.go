package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served by the read API.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of read API request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_upstream_requests_total",
			Help: "Total number of requests issued against the Colruyt gateway.",
		},
		[]string{"upstream", "status"},
	)
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colruyt_upstream_request_duration_seconds",
			Help:    "Histogram of Colruyt gateway request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"upstream", "status"},
	)
	upstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_upstream_retries_total",
			Help: "Total number of retried gateway attempts.",
		},
		[]string{"upstream"},
	)
	pagesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_pages_fetched_total",
			Help: "Pages fetched successfully during collection runs.",
		},
		[]string{"resource"},
	)
	pagesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_pages_failed_total",
			Help: "Pages dropped after exhausting their retry budget.",
		},
		[]string{"resource"},
	)
	recordsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_records_ingested_total",
			Help: "Records written by the ingestion transaction.",
		},
		[]string{"entity"},
	)
	priceChangesEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_price_changes_emitted_total",
			Help: "Price changes produced by the diff engine.",
		},
		[]string{"bucket"},
	)
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "colruyt_pipeline_runs_total",
			Help: "Pipeline runs by terminal state.",
		},
		[]string{"pipeline", "result"},
	)
	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "colruyt_pipeline_duration_seconds",
			Help:    "Histogram of full pipeline run durations.",
			Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 1800},
		},
		[]string{"pipeline"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(upstreamRequestsTotal)
	prometheus.MustRegister(upstreamRequestDuration)
	prometheus.MustRegister(upstreamRetriesTotal)
	prometheus.MustRegister(pagesFetchedTotal)
	prometheus.MustRegister(pagesFailedTotal)
	prometheus.MustRegister(recordsIngestedTotal)
	prometheus.MustRegister(priceChangesEmittedTotal)
	prometheus.MustRegister(pipelineRunsTotal)
	prometheus.MustRegister(pipelineDuration)
}

// RecordRequest records metrics for one read API request.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordUpstreamRequest records metrics for one gateway attempt.
func RecordUpstreamRequest(upstream string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	upstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
	upstreamRequestDuration.WithLabelValues(upstream, status).Observe(duration.Seconds())
}

// RecordUpstreamRetry counts a retried gateway attempt.
func RecordUpstreamRetry(upstream string) {
	upstreamRetriesTotal.WithLabelValues(upstream).Inc()
}

// RecordPageFetched counts a page fetched during a collection run.
func RecordPageFetched(resource string) {
	pagesFetchedTotal.WithLabelValues(resource).Inc()
}

// RecordFailedPage counts a page dropped from a collection run.
func RecordFailedPage(resource string) {
	pagesFailedTotal.WithLabelValues(resource).Inc()
}

// RecordIngestedRecords counts records written for one entity.
func RecordIngestedRecords(entity string, count int) {
	if count > 0 {
		recordsIngestedTotal.WithLabelValues(entity).Add(float64(count))
	}
}

// RecordPriceChangesEmitted counts diff output split by bucket.
func RecordPriceChangesEmitted(created, updated int) {
	if created > 0 {
		priceChangesEmittedTotal.WithLabelValues("created").Add(float64(created))
	}
	if updated > 0 {
		priceChangesEmittedTotal.WithLabelValues("updated").Add(float64(updated))
	}
}

// RecordPipelineRun records the outcome and duration of one run.
func RecordPipelineRun(pipeline, result string, duration time.Duration) {
	pipelineRunsTotal.WithLabelValues(pipeline, result).Inc()
	pipelineDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// classifyStatus maps an HTTP status code onto its class label.
func classifyStatus(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		return "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		return "4xx"
	} else if statusCode >= 500 && statusCode < 600 {
		return "5xx"
	}
	return "unknown"
}

// MetricsHandler returns the HTTP handler exporting Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
