// Package metrics provides a Prometheus-backed MetricsRecorder for the
// admission package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements admission.MetricsRecorder on top of Prometheus
// collectors. Counter names arrive as the event label so that the admission
// package stays decoupled from the metrics backend.
type Recorder struct {
	events  *prometheus.CounterVec
	timings *prometheus.HistogramVec
}

// NewRecorder registers the collectors with reg and returns the recorder.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_events_total",
				Help: "Admission control events by scope and result",
			},
			[]string{"event", "scope", "result", "backend"},
		),
		timings: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_durations_seconds",
				Help:    "Latency of admission control operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event", "backend"},
		),
	}
}

// Add implements admission.MetricsRecorder.
func (r *Recorder) Add(name string, value float64, tags map[string]string) {
	r.events.WithLabelValues(name, tags["scope"], tags["result"], tags["backend"]).Add(value)
}

// Observe implements admission.MetricsRecorder.
func (r *Recorder) Observe(name string, value float64, tags map[string]string) {
	r.timings.WithLabelValues(name, tags["backend"]).Observe(value)
}
