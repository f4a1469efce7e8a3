package behaviors

import (
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polisai/polis-intercept/pkg/domain"
)

// Metrics counts intercepted calls and observes their latency.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

// NewMetrics registers the call metrics on registry. A nil registry creates a
// private one. Metrics created on the same registry share collectors.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercept_calls_total",
			Help: "Total number of intercepted calls by type, method and outcome",
		},
		[]string{"type", "method", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intercept_call_duration_seconds",
			Help:    "Intercepted call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type", "method"},
	)

	var err error
	if calls, err = register(registry, calls); err != nil {
		return nil, err
	}
	if duration, err = register(registry, duration); err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, duration: duration, registry: registry}, nil
}

func register[C prometheus.Collector](registry *prometheus.Registry, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Registry returns the registry holding the call metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Invoke records the call outcome and latency.
func (m *Metrics) Invoke(inv *domain.Invocation, next domain.InvokeFunc) domain.MethodReturn {
	start := time.Now()
	ret := next(inv)

	outcome := "ok"
	if ret.Err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(inv.TypeName, inv.Method, outcome).Inc()
	m.duration.WithLabelValues(inv.TypeName, inv.Method).Observe(time.Since(start).Seconds())
	return ret
}

// RequiredInterfaces returns nil.
func (m *Metrics) RequiredInterfaces() []reflect.Type { return nil }

// WillExecute returns true.
func (m *Metrics) WillExecute() bool { return true }

var _ domain.Behavior = (*Metrics)(nil)
