// Package observability exposes Prometheus collectors for agent runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the agent loop. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	Runs             *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RunTurns         prometheus.Histogram
	ToolCalls        *prometheus.CounterVec
	ToolDuration     *prometheus.HistogramVec
	ProviderRequests *prometheus.CounterVec
	ProviderRetries  *prometheus.CounterVec
	ParseOutcomes    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolloop_runs_total",
		Help: "Agent runs by terminal status",
	}, []string{"status"})

	runDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolloop_run_duration_seconds",
		Help:    "Agent run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	turns := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "toolloop_run_turns",
		Help:    "Model turns taken per run",
		Buckets: prometheus.LinearBuckets(1, 1, 12),
	})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolloop_tool_calls_total",
		Help: "Tool executions by tool, status and error kind",
	}, []string{"tool", "status", "kind"})

	toolDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolloop_tool_duration_seconds",
		Help:    "Tool execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	providerReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolloop_provider_requests_total",
		Help: "Model provider requests by provider and outcome",
	}, []string{"provider", "outcome"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolloop_provider_retries_total",
		Help: "Retried model provider requests",
	}, []string{"provider"})

	parses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolloop_parse_outcomes_total",
		Help: "Parsed model completions by outcome kind",
	}, []string{"kind"})

	reg.MustRegister(runs, runDur, turns, toolCalls, toolDur, providerReqs, retries, parses)

	return &Metrics{
		registry:         reg,
		Runs:             runs,
		RunDuration:      runDur,
		RunTurns:         turns,
		ToolCalls:        toolCalls,
		ToolDuration:     toolDur,
		ProviderRequests: providerReqs,
		ProviderRetries:  retries,
		ParseOutcomes:    parses,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, turns int, duration time.Duration) {
	if m == nil {
		return
	}
	status = orUnknown(status)
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.RunTurns.Observe(float64(turns))
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(tool, status, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	tool = orUnknown(tool)
	if kind == "" {
		kind = "none"
	}
	m.ToolCalls.WithLabelValues(tool, orUnknown(status), kind).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordProviderRequest records the final outcome of a provider call.
func (m *Metrics) RecordProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(orUnknown(provider), orUnknown(outcome)).Inc()
}

// RecordProviderRetry records a retried provider call.
func (m *Metrics) RecordProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(orUnknown(provider)).Inc()
}

// RecordParse records a parser outcome.
func (m *Metrics) RecordParse(kind string) {
	if m == nil {
		return
	}
	m.ParseOutcomes.WithLabelValues(orUnknown(kind)).Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
