// Package metrics provides Prometheus metrics for outpipe.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Pipeline metrics
	RunsTotal    *prometheus.CounterVec
	StepRuns     *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec

	// Delivery metrics
	SendsTotal     *prometheus.CounterVec
	SplitSegments  prometheus.Histogram
	RecallsTotal   *prometheus.CounterVec
	RecallsPending prometheus.Gauge

	// Inbound metrics
	InboundTotal  *prometheus.CounterVec
	Conversations prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpipe_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		StepRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpipe_step_runs_total",
				Help: "Total number of step executions by outcome",
			},
			[]string{"step", "outcome"},
		),
		StepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outpipe_step_duration_seconds",
				Help:    "Duration of step executions in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 15, 30},
			},
			[]string{"step"},
		),
		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpipe_sends_total",
				Help: "Total number of messages handed to a channel",
			},
			[]string{"platform", "status"},
		),
		SplitSegments: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outpipe_split_segments",
				Help:    "Number of segments produced per split",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 12, 20},
			},
		),
		RecallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpipe_recalls_total",
				Help: "Total number of scheduled recalls by result",
			},
			[]string{"status"},
		),
		RecallsPending: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "outpipe_recalls_pending",
				Help: "Number of recall tasks currently waiting",
			},
		),
		InboundTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpipe_inbound_messages_total",
				Help: "Total number of inbound messages observed",
			},
			[]string{"platform"},
		),
		Conversations: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "outpipe_conversations",
				Help: "Number of conversations with in-memory state",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRun counts one pipeline run.
func (m *Metrics) RecordRun(delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "aborted"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStep counts one step execution; outcome is continue, abort or panic.
func (m *Metrics) RecordStep(step, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StepRuns.WithLabelValues(step, outcome).Inc()
	m.StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordSend counts one delivery attempt.
func (m *Metrics) RecordSend(platform string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SendsTotal.WithLabelValues(platform, status).Inc()
}

// RecordSplit observes the segment count of one split.
func (m *Metrics) RecordSplit(segments int) {
	if m == nil {
		return
	}
	m.SplitSegments.Observe(float64(segments))
}

// RecallScheduled marks a recall task as pending.
func (m *Metrics) RecallScheduled() {
	if m == nil {
		return
	}
	m.RecallsPending.Inc()
}

// RecallFinished records the end of a recall task; status is ok, error or cancelled.
func (m *Metrics) RecallFinished(status string) {
	if m == nil {
		return
	}
	m.RecallsPending.Dec()
	m.RecallsTotal.WithLabelValues(status).Inc()
}

// RecordInbound counts one observed inbound message.
func (m *Metrics) RecordInbound(platform string) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabelValues(platform).Inc()
}

// SetConversations reports the number of tracked conversations.
func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}
