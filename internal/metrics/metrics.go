// Package metrics exposes run counters for fetch and merge. A batch CLI has no
// scrape endpoint, so the registry is written to a node_exporter textfile at
// the end of each command.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sydlexius/kgmerge/internal/event"
)

const namespace = "kgmerge"

// Fetch status label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	FetchTotal    *prometheus.CounterVec
	FetchRows     *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	MergeEntities *prometheus.GaugeVec
	MergeSkipped  *prometheus.CounterVec
	MergeDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Fetch attempts by outcome.",
		},
		[]string{"endpoint", "category", "status"},
	)

	fetchRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_rows_total",
			Help:      "Bindings received from SPARQL endpoints.",
		},
		[]string{"endpoint", "category"},
	)

	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single SPARQL fetch including pacing.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	mergeEntities := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merge_entities",
			Help:      "Entities in the last merged document.",
		},
		[]string{"endpoint", "category"},
	)

	mergeSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_skipped_sources_total",
			Help:      "Result files skipped while merging.",
		},
		[]string{"endpoint", "category"},
	)

	mergeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of a category merge.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	registry.MustRegister(
		fetchTotal,
		fetchRows,
		fetchDuration,
		mergeEntities,
		mergeSkipped,
		mergeDuration,
	)

	return &Metrics{
		registry:      registry,
		FetchTotal:    fetchTotal,
		FetchRows:     fetchRows,
		FetchDuration: fetchDuration,
		MergeEntities: mergeEntities,
		MergeSkipped:  mergeSkipped,
		MergeDuration: mergeDuration,
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the collectors from a run event.
func (m *Metrics) Observe(e event.Event) {
	switch e.Type {
	case event.FetchCompleted, event.FetchFailed, event.FetchSkipped:
		if e.Fetch == nil {
			return
		}
		f := e.Fetch
		m.FetchTotal.WithLabelValues(f.Endpoint, f.Category, fetchStatus(e.Type)).Inc()
		if e.Type == event.FetchCompleted {
			m.FetchRows.WithLabelValues(f.Endpoint, f.Category).Add(float64(f.Rows))
		}
		if e.Type != event.FetchSkipped {
			m.FetchDuration.WithLabelValues(f.Endpoint).Observe(f.Duration.Seconds())
		}
	case event.MergeCompleted, event.MergeFailed:
		if e.Merge == nil {
			return
		}
		mg := e.Merge
		if e.Type == event.MergeCompleted {
			m.MergeEntities.WithLabelValues(mg.Endpoint, mg.Category).Set(float64(mg.Entities))
		}
		m.MergeSkipped.WithLabelValues(mg.Endpoint, mg.Category).Add(float64(mg.Skipped))
		m.MergeDuration.WithLabelValues(mg.Endpoint).Observe(mg.Duration.Seconds())
	}
}

// Subscribe feeds every run event on bus into the collectors.
func (m *Metrics) Subscribe(bus *event.Bus) {
	bus.Subscribe(m.Observe,
		event.FetchCompleted, event.FetchFailed, event.FetchSkipped,
		event.MergeCompleted, event.MergeFailed)
}

// WriteTextfile writes the registry in the Prometheus text format. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func fetchStatus(t event.Type) string {
	switch t {
	case event.FetchCompleted:
		return StatusOK
	case event.FetchSkipped:
		return StatusSkipped
	default:
		return StatusError
	}
}
