// Package metrics exports pipeline and lineage counters in Prometheus format.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SafeMap/internal/domain"
	"SafeMap/internal/lineage"
	"SafeMap/internal/usecase"
)

const namespace = "safemap"

// Lineage operation results.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Metrics holds all SafeMap collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	PipelineRuns     *prometheus.CounterVec
	PipelineRecords  *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	LineageOps       *prometheus.CounterVec
}

var (
	_ usecase.Recorder = (*Metrics)(nil)
	_ lineage.Recorder = (*Metrics)(nil)
)

// New registers collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),
		PipelineRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_records_total",
			Help:      "Records seen by the pipeline by outcome.",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LineageOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lineage_operations_total",
			Help:      "Create, fork and merge operations by result.",
		}, []string{"op", "result"}),
	}
}

// ObservePipeline implements usecase.Recorder.
func (m *Metrics) ObservePipeline(status string, summary domain.RunSummary) {
	m.PipelineRuns.WithLabelValues(status).Inc()
	m.PipelineDuration.Observe(summary.Duration.Seconds())

	for outcome, n := range map[string]int{
		"received":       summary.Received,
		"rejected":       summary.Rejected,
		"skipped_merged": summary.SkippedMerged,
		"inserted":       summary.Inserted,
		"updated":        summary.Updated,
		"reannotated":    summary.Reannotated,
	} {
		if n > 0 {
			m.PipelineRecords.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

// ObserveLineage implements lineage.Recorder.
func (m *Metrics) ObserveLineage(op string, err error) {
	m.LineageOps.WithLabelValues(op, resultOf(err)).Inc()
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return ResultInvalid
	default:
		return ResultError
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
