// Package metrics exposes prometheus collectors for pipeline execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "media_pipeline"

type Metrics struct {
	StepExecutions   *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	PipelineOutcomes *prometheus.CounterVec
	JobAttempts      *prometheus.CounterVec
	Signals          *prometheus.CounterVec
	InFlightJobs     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StepExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_executions_total",
				Help:      "Step executions by pipeline type, step and outcome.",
			},
			[]string{"pipeline_type", "step", "outcome"},
		),
		StepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Wall time of a step execution.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"pipeline_type", "step"},
		),
		PipelineOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipelines_finished_total",
				Help:      "Pipelines reaching a terminal state.",
			},
			[]string{"pipeline_type", "status"},
		),
		JobAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_attempts_total",
				Help:      "Queue job attempts by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		Signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_signals_total",
				Help:      "Inbound completion signals by outcome.",
			},
			[]string{"outcome"},
		),
		InFlightJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing on this worker.",
		}),
		gatherer: gatherer,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStep(pipelineType, step, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepExecutions.WithLabelValues(pipelineType, step, outcome).Inc()
	m.StepDuration.WithLabelValues(pipelineType, step).Observe(d.Seconds())
}

func (m *Metrics) PipelineFinished(pipelineType, status string) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(pipelineType, status).Inc()
}

func (m *Metrics) JobAttempt(kind, outcome string) {
	if m == nil {
		return
	}
	m.JobAttempts.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Signal(outcome string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.InFlightJobs.Inc()
}

func (m *Metrics) JobDone() {
	if m == nil {
		return
	}
	m.InFlightJobs.Dec()
}
