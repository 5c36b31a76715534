package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one report run. They live in a private
// registry so a run can be exported to a node_exporter textfile. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	RecordsLoaded      *prometheus.CounterVec
	ReportsWritten     *prometheus.CounterVec
	NormalizerRequests *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "The total number of records loaded from source files",
		}, []string{"kind", "dataset"}),
		ReportsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_written_total",
			Help:      "The total number of reports written",
		}, []string{"format"}),
		NormalizerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_requests_total",
			Help:      "The total number of name-cleaning requests by outcome",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time taken by each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CountRecords(kind, dataset string, n int) {
	if m == nil {
		return
	}
	m.RecordsLoaded.WithLabelValues(kind, dataset).Add(float64(n))
}

func (m *Metrics) CountReport(format string) {
	if m == nil {
		return
	}
	m.ReportsWritten.WithLabelValues(format).Inc()
}

func (m *Metrics) CountRequest(outcome string) {
	if m == nil {
		return
	}
	m.NormalizerRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, since time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(since).Seconds())
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
