package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	buildCounter        metric.Int64Counter
	buildLatency        metric.Float64Histogram
	interceptionCounter metric.Int64Counter
	attachedCounter     metric.Int64Counter
)

// BuildMetrics captures the fields recorded for one build invocation.
type BuildMetrics struct {
	Key      string
	Outcome  string
	Depth    int
	Duration time.Duration
}

// InterceptionMetrics captures the fields recorded when a build is intercepted.
type InterceptionMetrics struct {
	Key        string
	ProxyType  string
	Behaviors  int
	Interfaces int
}

// RecordBuild emits the build counter and latency histogram.
func RecordBuild(ctx context.Context, m BuildMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("build.key", m.Key),
		attribute.String("build.outcome", m.Outcome),
		attribute.Bool("build.nested", m.Depth > 0),
	)
	buildCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		buildLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

// RecordInterception counts a build whose constructor was redirected to a proxy.
func RecordInterception(ctx context.Context, m InterceptionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	interceptionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("build.key", m.Key),
		attribute.String("proxy.type", m.ProxyType),
		attribute.Int("proxy.behaviors", m.Behaviors),
		attribute.Int("proxy.interfaces", m.Interfaces),
	))
}

// RecordBehaviorsAttached counts behaviors attached to a freshly built proxy.
func RecordBehaviorsAttached(ctx context.Context, key string, count int) {
	if count <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil {
		return
	}

	attachedCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("build.key", key)))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("intercept.container")

		buildCounter, metricsInitErr = meter.Int64Counter(
			"intercept.builds_total",
			metric.WithDescription("Container builds partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		buildLatency, metricsInitErr = meter.Float64Histogram(
			"intercept.build.duration_ms",
			metric.WithDescription("Observed build latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		interceptionCounter, metricsInitErr = meter.Int64Counter(
			"intercept.interceptions_total",
			metric.WithDescription("Builds redirected to a proxy type"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		attachedCounter, metricsInitErr = meter.Int64Counter(
			"intercept.behaviors_attached_total",
			metric.WithDescription("Interception behaviors attached to built proxies"),
			metric.WithUnit("{count}"),
		)
	})

	return metricsInitErr
}
