// Package metrics exposes Prometheus instrumentation for saves, deletes and
// results-table changes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formforge"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	saves         *prometheus.CounterVec
	saveDuration  prometheus.Histogram
	schemaChanges *prometheus.CounterVec
	deletes       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_saves_total",
			Help:      "Form saves by outcome.",
		}, []string{"outcome"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "form_save_duration_seconds",
			Help:      "Time spent saving a form, schema sync included.",
			Buckets:   prometheus.DefBuckets,
		}),
		schemaChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_schema_changes_total",
			Help:      "Results-table mutations by kind.",
		}, []string{"kind"}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_deletes_total",
			Help:      "Forms deleted.",
		}),
	}
	reg.MustRegister(m.saves, m.saveDuration, m.schemaChanges, m.deletes)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSave records one save attempt.
func (m *Metrics) ObserveSave(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.saves.WithLabelValues(outcome).Inc()
	m.saveDuration.Observe(time.Since(start).Seconds())
}

// ObserveSchema records results-table mutations.
func (m *Metrics) ObserveSchema(created, dropped bool, added int) {
	if m == nil {
		return
	}
	if dropped {
		m.schemaChanges.WithLabelValues("drop_table").Inc()
	}
	if created {
		m.schemaChanges.WithLabelValues("create_table").Inc()
	}
	if added > 0 {
		m.schemaChanges.WithLabelValues("add_column").Add(float64(added))
	}
}

// ObserveDeletes records deleted forms and their dropped tables.
func (m *Metrics) ObserveDeletes(n int) {
	if m == nil || n == 0 {
		return
	}
	m.deletes.Add(float64(n))
	m.schemaChanges.WithLabelValues("drop_table").Add(float64(n))
}
