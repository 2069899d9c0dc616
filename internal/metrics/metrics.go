// Package metrics exposes prometheus metrics for research builds.
//
// Builds are batch jobs, so metrics are registered on a private registry
// and written once to a node_exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the build stages.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Rows written to the data store by dataset
	RowsLoaded *prometheus.CounterVec

	// Rows excluded at ingestion by dataset
	RowsDropped *prometheus.CounterVec

	// Distinct pseudonymous ids after the last resolution
	IdentityGroups prometheus.Gauge

	// PII rows by the kind of identity key they received
	IdentityRows *prometheus.CounterVec

	// Rows in each research table after the last assembly
	ResearchRows *prometheus.GaugeVec

	// Wall time of each stage
	StageDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sirad_rows_loaded_total",
			Help: "Rows written to the data store by dataset",
		}, []string{"dataset"}),

		RowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sirad_rows_dropped_total",
			Help: "Rows excluded at ingestion by dataset",
		}, []string{"dataset"}),

		IdentityGroups: f.NewGauge(prometheus.GaugeOpts{
			Name: "sirad_identity_groups",
			Help: "Distinct pseudonymous ids assigned by the last resolution",
		}),

		IdentityRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sirad_identity_rows_total",
			Help: "PII rows resolved by identity key kind",
		}, []string{"key_kind"}), // key_kind: "ssn", "name_dob", "unresolved"

		ResearchRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sirad_research_rows",
			Help: "Rows in each research table after the last assembly",
		}, []string{"table"}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sirad_stage_duration_seconds",
			Help:    "Duration of build stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}), // stage: "ingest", "resolve", "research"
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddLoaded records rows loaded for a dataset.
func (m *Metrics) AddLoaded(dataset string, n int) {
	if m != nil {
		m.RowsLoaded.WithLabelValues(dataset).Add(float64(n))
	}
}

// AddDropped records rows excluded for a dataset.
func (m *Metrics) AddDropped(dataset string, n int) {
	if m != nil {
		m.RowsDropped.WithLabelValues(dataset).Add(float64(n))
	}
}

// SetIdentityGroups records the number of distinct ids.
func (m *Metrics) SetIdentityGroups(n int) {
	if m != nil {
		m.IdentityGroups.Set(float64(n))
	}
}

// AddIdentityRows records rows resolved with a key kind.
func (m *Metrics) AddIdentityRows(kind string, n int) {
	if m != nil {
		m.IdentityRows.WithLabelValues(kind).Add(float64(n))
	}
}

// SetResearchRows records the size of a research table.
func (m *Metrics) SetResearchRows(table string, n int) {
	if m != nil {
		m.ResearchRows.WithLabelValues(table).Set(float64(n))
	}
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// WriteTextfile writes every metric in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
