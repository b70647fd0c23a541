package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Outstanding jobs awaiting a poll
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsPending    metric.Int64UpDownCounter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("biketrack")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics. Job durations are worker-reported, so buckets cover
	// script execution rather than request handling.
	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Worker-reported job execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"jobs_total",
		metric.WithDescription("Total number of jobs created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"job_errors_total",
		metric.WithDescription("Total number of jobs reported failed or timed out"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsPending, err = meter.Int64UpDownCounter(
		"jobs_pending",
		metric.WithDescription("Jobs awaiting a poll: incremented on create, decremented on claim or when a newer job for the same target supersedes them (saturation; jobs that expire unclaimed are not observed and drift the gauge until restart)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a new job entering the store.
func (m *Metrics) RecordJobCreated(ctx context.Context, jobType, target string) {
	attrs := metric.WithAttributes(typeAttr(jobType), targetAttr(target))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsPending.Add(ctx, 1, attrs)
}

// RecordJobClaimed records a job being handed to a polling worker.
func (m *Metrics) RecordJobClaimed(ctx context.Context, jobType, target string) {
	m.JobsPending.Add(ctx, -1, metric.WithAttributes(typeAttr(jobType), targetAttr(target)))
}

// RecordJobSuperseded records a pending job displaced from its target's
// queue slot by a newer create. It will never be claimed, so it leaves
// the pending gauge here.
func (m *Metrics) RecordJobSuperseded(ctx context.Context, jobType, target string) {
	m.JobsPending.Add(ctx, -1, metric.WithAttributes(typeAttr(jobType), targetAttr(target)))
}

// RecordJobCompleted records a worker-reported terminal result.
func (m *Metrics) RecordJobCompleted(ctx context.Context, jobType, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(typeAttr(jobType), outcomeAttr(outcome))
	m.JobDuration.Record(ctx, durationSeconds, attrs)

	if outcome != "done" {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}
