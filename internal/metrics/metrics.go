// Package metrics holds the Prometheus collectors of an AR session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture results.
const (
	CaptureOK       = "ok"
	CaptureFailed   = "failed"
	CaptureRejected = "rejected"
)

// Metrics is a set of collectors bound to one registry.
type Metrics struct {
	registry *prometheus.Registry

	GestureMatches     *prometheus.CounterVec
	EstimationFailures prometheus.Counter
	EstimationLatency  prometheus.Histogram
	MarkerReveals      *prometheus.CounterVec
	Captures           *prometheus.CounterVec
	RenderPanics       prometheus.Counter
	RenderDuration     prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GestureMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arstage_gesture_matches_total",
				Help: "Gestures that won a classifier tick",
			},
			[]string{"gesture", "hand"},
		),
		EstimationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arstage_estimation_failures_total",
			Help: "Hand estimations that returned an error or panicked",
		}),
		EstimationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arstage_estimation_duration_seconds",
			Help:    "Duration of hand estimations",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		MarkerReveals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arstage_marker_reveals_total",
				Help: "Markers revealed for the first time in a session",
			},
			[]string{"marker_id"},
		),
		Captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arstage_captures_total",
				Help: "Snapshot captures by result",
			},
			[]string{"result"},
		),
		RenderPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arstage_render_panics_total",
			Help: "Render ticks that panicked",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arstage_render_duration_seconds",
			Help:    "Duration of render ticks",
			Buckets: []float64{.001, .002, .004, .008, .016, .033, .066},
		}),
	}

	m.registry.MustRegister(
		m.GestureMatches,
		m.EstimationFailures,
		m.EstimationLatency,
		m.MarkerReveals,
		m.Captures,
		m.RenderPanics,
		m.RenderDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
