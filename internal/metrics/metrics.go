// Package metrics exports cover resolution counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

const namespace = "coverfetch"

// Result labels.
const (
	ResultSuccess       = "success"
	ResultNotApplicable = "not_applicable"
	ResultSuppressed    = "suppressed"
	ResultTransport     = "transport"
	ResultRejected      = "rejected"
	ResultWrite         = "write"
	ResultCancelled     = "cancelled"
	ResultExhausted     = "exhausted"
	ResultError         = "error"
)

// Metrics implements cover.Observer on its own registry.
type Metrics struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sessions *prometheus.CounterVec
	latency  prometheus.Histogram
}

var _ cover.Observer = (*Metrics)(nil)

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Cover source attempts by source and result.",
		}, []string{"source", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_attempt_duration_seconds",
			Help:      "Time spent in one cover source attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"source"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Finished cover resolutions by winning source and result.",
		}, []string{"source", "result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Time from song start to a cover or to giving up.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.duration,
		m.sessions,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt counts one source attempt.
func (m *Metrics) ObserveAttempt(kind cover.Kind, err error, elapsed time.Duration) {
	m.attempts.WithLabelValues(string(kind), Result(err)).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveOutcome counts one finished resolution.
func (m *Metrics) ObserveOutcome(o cover.Outcome) {
	source := "none"
	if o.Cover != nil {
		source = string(o.Cover.Source)
	}
	m.sessions.WithLabelValues(source, Result(o.Err)).Inc()
	m.latency.Observe(o.Elapsed.Seconds())
}

// Result maps an attempt error to its label. ErrExhausted is checked first
// since it wraps the last attempt's error.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, cover.ErrExhausted):
		return ResultExhausted
	case errors.Is(err, cover.ErrCancelled):
		return ResultCancelled
	case errors.Is(err, cover.ErrNotApplicable):
		return ResultNotApplicable
	case errors.Is(err, cover.ErrSuppressed):
		return ResultSuppressed
	case errors.Is(err, cover.ErrTransport):
		return ResultTransport
	case errors.Is(err, cover.ErrRemoteRejected):
		return ResultRejected
	case errors.Is(err, cover.ErrWrite):
		return ResultWrite
	}
	return ResultError
}
