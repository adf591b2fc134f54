package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/nosferatu"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Task queue metrics
	TasksEnqueuedTotal      metric.Int64Counter
	TaskQueueFullTotal      metric.Int64Counter
	TasksDispatchedTotal    metric.Int64Counter
	TaskDispatchErrorsTotal metric.Int64Counter
	TaskQueueWait           metric.Float64Histogram

	// Request pipeline metrics
	RequestsTotal        metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	PanicsRecoveredTotal metric.Int64Counter
	CrossOriginTotal     metric.Int64Counter

	// Translation metrics
	TranslationsMissingTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments created before InitTelemetry delegate to the global provider
// once it is installed.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Task queue metrics
	m.TasksEnqueuedTotal, _ = meter.Int64Counter(
		"nosferatu.tasks.enqueued.total",
		metric.WithDescription("Total number of messages accepted by the task queue"),
		metric.WithUnit("{message}"),
	)

	m.TaskQueueFullTotal, _ = meter.Int64Counter(
		"nosferatu.tasks.queue_full.total",
		metric.WithDescription("Total number of enqueue calls that had to wait for capacity"),
		metric.WithUnit("{message}"),
	)

	m.TasksDispatchedTotal, _ = meter.Int64Counter(
		"nosferatu.tasks.dispatched.total",
		metric.WithDescription("Total number of messages handled by the dispatcher"),
		metric.WithUnit("{message}"),
	)

	m.TaskDispatchErrorsTotal, _ = meter.Int64Counter(
		"nosferatu.tasks.dispatch.errors.total",
		metric.WithDescription("Total number of messages the dispatcher failed to handle"),
		metric.WithUnit("{error}"),
	)

	m.TaskQueueWait, _ = meter.Float64Histogram(
		"nosferatu.tasks.queue_wait.duration",
		metric.WithDescription("Time between scheduling a task and the dispatcher handling it"),
		metric.WithUnit("ms"),
	)

	// Request pipeline metrics
	m.RequestsTotal, _ = meter.Int64Counter(
		"nosferatu.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"nosferatu.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	m.PanicsRecoveredTotal, _ = meter.Int64Counter(
		"nosferatu.http.panics.recovered.total",
		metric.WithDescription("Total number of handler panics converted to the panic page"),
		metric.WithUnit("{panic}"),
	)

	m.CrossOriginTotal, _ = meter.Int64Counter(
		"nosferatu.http.cross_origin.total",
		metric.WithDescription("Total number of state changing requests that failed the cross origin check"),
		metric.WithUnit("{request}"),
	)

	// Translation metrics
	m.TranslationsMissingTotal, _ = meter.Int64Counter(
		"nosferatu.i18n.missing.total",
		metric.WithDescription("Total number of translations resolved to a sentinel string"),
		metric.WithUnit("{lookup}"),
	)

	return m
}
