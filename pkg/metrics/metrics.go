// Package metrics exposes ledger activity as Prometheus metrics. A Metrics
// value implements usage.Recorder and alerts.Recorder and owns its registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/usageledger/pkg/usage"
)

const namespace = "usage_ledger"

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	Checks       *prometheus.CounterVec
	Consumes     *prometheus.CounterVec
	Consumed     *prometheus.CounterVec
	PlanChanges  *prometheus.CounterVec
	Resets       *prometheus.CounterVec
	StepRuns     *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	Requests     *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
}

// Option configures New.
type Option func(*options)

type options struct {
	runtime bool
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) {
		o.runtime = true
	}
}

// New creates the collectors on a fresh registry.
func New(opts ...Option) *Metrics {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Usage checks by field and outcome.",
		}, []string{"field", "outcome"}),
		Consumes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumes_total",
			Help:      "Decrement calls by field and outcome.",
		}, []string{"field", "outcome"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_units_total",
			Help:      "Units taken from metered ledgers by field.",
		}, []string{"field"}),
		PlanChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_changes_total",
			Help:      "Plan changes applied, by target plan.",
		}, []string{"plan_id"}),
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_resets_total",
			Help:      "Expired subscriptions reset, by resulting status.",
		}, []string{"status"}),
		StepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_check_subscriptions_total",
			Help:      "Subscriptions handled by daily check steps.",
		}, []string{"step", "result"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "daily_check_duration_seconds",
			Help:      "Duration of daily check steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"step"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.Checks, m.Consumes, m.Consumed, m.PlanChanges, m.Resets,
		m.StepRuns, m.StepDuration, m.Requests, m.Latency,
	)
	if o.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordCheck(field usage.Field, outcome usage.Outcome) {
	m.Checks.WithLabelValues(string(field), string(outcome)).Inc()
}

func (m *Metrics) RecordConsume(field usage.Field, count int64, outcome usage.Outcome) {
	m.Consumes.WithLabelValues(string(field), string(outcome)).Inc()
	if outcome == usage.OutcomeAllowed {
		m.Consumed.WithLabelValues(string(field)).Add(float64(count))
	}
}

func (m *Metrics) RecordPlanChange(planID string) {
	m.PlanChanges.WithLabelValues(planID).Inc()
}

func (m *Metrics) RecordReset(status string) {
	m.Resets.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordStep(step string, processed, failed int, took time.Duration) {
	m.StepRuns.WithLabelValues(step, "ok").Add(float64(processed))
	m.StepRuns.WithLabelValues(step, "failed").Add(float64(failed))
	m.StepDuration.WithLabelValues(step).Observe(took.Seconds())
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int, took time.Duration) {
	m.Requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.Latency.WithLabelValues(method, route).Observe(took.Seconds())
}
