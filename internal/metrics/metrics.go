// Package metrics exposes daemon counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cliphist"

// Metrics holds the daemon's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg      *prometheus.Registry
	captures *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	saves    *prometheus.CounterVec
	pastes   *prometheus.CounterVec
	entries  prometheus.Gauge
}

// New registers the collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Clipboard changes recorded in history, by kind.",
		}, []string{"kind"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Clipboard changes not recorded, by reason.",
		}, []string{"reason"}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "History document writes, by result.",
		}, []string{"result"}),
		pastes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pastes_total",
			Help:      "Entries played back, by whether the paste keystroke was posted.",
		}, []string{"keystroke"}),
		entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Entries currently held in history.",
		}),
	}
}

func (m *Metrics) Captured(kind string) {
	if m != nil {
		m.captures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Skipped(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}

// Saved records one save attempt. Refused empty saves count as "refused".
func (m *Metrics) Saved(result string) {
	if m != nil {
		m.saves.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Pasted(keystroke bool) {
	if m != nil {
		m.pastes.WithLabelValues(strconv.FormatBool(keystroke)).Inc()
	}
}

func (m *Metrics) SetEntries(n int) {
	if m != nil {
		m.entries.Set(float64(n))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
