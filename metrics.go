package qnet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters a run updates.  A nil *Metrics is valid and records nothing.
type Metrics struct {
	ShotsTotal         *prometheus.CounterVec
	TransmissionsTotal *prometheus.CounterVec
	ShotFidelity       *prometheus.HistogramVec
	PointsTotal        prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the run metrics on a registry of their own
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ShotsTotal = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnet_shots_total",
			Help: "Total number of shots run",
		},
		[]string{"topology", "outcome"},
	)

	m.TransmissionsTotal = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "qnet_transmissions_total",
			Help: "Total number of qubits sent into channels",
		},
		[]string{"topology", "outcome"},
	)

	m.ShotFidelity = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qnet_shot_fidelity",
			Help:    "End-to-end fidelity of delivered shots",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		},
		[]string{"topology"},
	)

	m.PointsTotal = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "qnet_points_total",
			Help: "Total number of configuration points completed",
		},
	)
	return m
}

// Registry returns the prometheus registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordShot counts a shot result
func (m *Metrics) RecordShot(kind TopoKind, sr ShotResult) {
	if m == nil {
		return
	}
	m.ShotsTotal.WithLabelValues(string(kind), sr.Outcome.String()).Inc()
	if sr.Delivered() {
		m.ShotFidelity.WithLabelValues(string(kind)).Observe(sr.Fidelity)
	}
}

func (m *Metrics) countTransmission(kind TopoKind, oc Outcome) {
	if m == nil {
		return
	}
	m.TransmissionsTotal.WithLabelValues(string(kind), oc.String()).Inc()
}

func (m *Metrics) recordPoint() {
	if m == nil {
		return
	}
	m.PointsTotal.Inc()
}

// WriteToTextfile writes the metrics in the Prometheus text format, for a node exporter textfile collector
func (m *Metrics) WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.registry)
}
