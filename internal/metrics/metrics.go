// Package metrics exports recognition counters in Prometheus format.
package metrics

import (
	"net/http"

	"facegate/internal/core/recognition"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facegate"

// LoopStatus reports the recognition loop counters
type LoopStatus interface {
	Status() recognition.Status
}

// EventCounts reports how many recognition events were recorded or dropped
type EventCounts interface {
	Recorded() uint64
	Dropped() uint64
}

// ClientCounter reports connected stream clients
type ClientCounter interface {
	ClientCount() int
}

// Sources are read on every scrape. Nil fields are skipped.
type Sources struct {
	Loop    LoopStatus
	Events  EventCounts
	Clients ClientCounter
}

// Exporter owns a dedicated registry and doubles as a cycle sink
type Exporter struct {
	registry *prometheus.Registry

	faces        *prometheus.CounterVec
	facesPerLoop prometheus.Histogram
}

// NewExporter registers all collectors on a fresh registry
func NewExporter(src Sources) *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.faces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recognition",
			Name:      "faces_total",
			Help:      "Faces processed by the recognition loop",
		},
		[]string{"result"},
	)
	e.facesPerLoop = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recognition",
			Name:      "faces_per_cycle",
			Help:      "Number of faces found per cycle",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
	)
	e.registry.MustRegister(e.faces, e.facesPerLoop)

	if src.Loop != nil {
		loop := src.Loop
		e.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "recognition", Name: "cycles_total",
				Help: "Completed recognition cycles",
			}, func() float64 { return float64(loop.Status().CyclesRun) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "recognition", Name: "cycles_failed_total",
				Help: "Recognition cycles that failed",
			}, func() float64 { return float64(loop.Status().CyclesFailed) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "recognition", Name: "ticks_skipped_total",
				Help: "Ticks skipped because a cycle was still running",
			}, func() float64 { return float64(loop.Status().TicksSkipped) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "recognition", Name: "running",
				Help: "1 if the recognition loop is running",
			}, func() float64 {
				if loop.Status().State == recognition.StateRunning {
					return 1
				}
				return 0
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "recognition", Name: "threshold",
				Help: "Current match threshold",
			}, func() float64 { return loop.Status().Threshold }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "gallery", Name: "identities",
				Help: "Registered identities",
			}, func() float64 { return float64(loop.Status().Gallery) }),
		)
	}

	if src.Events != nil {
		ev := src.Events
		e.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "events", Name: "recorded_total",
				Help: "Recognition events stored",
			}, func() float64 { return float64(ev.Recorded()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "events", Name: "dropped_total",
				Help: "Cycle results dropped because the event queue was full",
			}, func() float64 { return float64(ev.Dropped()) }),
		)
	}

	if src.Clients != nil {
		clients := src.Clients
		e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "clients",
			Help: "Connected event stream clients",
		}, func() float64 { return float64(clients.ClientCount()) }))
	}

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Publish implements recognition.Sink
func (e *Exporter) Publish(result recognition.CycleResult) {
	matched := 0
	for _, f := range result.Faces {
		if f.Matched {
			matched++
		}
	}
	e.faces.WithLabelValues("matched").Add(float64(matched))
	e.faces.WithLabelValues("unknown").Add(float64(len(result.Faces) - matched))
	e.facesPerLoop.Observe(float64(len(result.Faces)))
}

// Registry returns the dedicated registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns the scrape handler
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
