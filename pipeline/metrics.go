package pipeline

import (
	"net/http"

	"github.com/fleetwatch/core/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the dispatch loop maintains, one count per
// filter-stage outcome.
type Metrics struct {
	registry *prometheus.Registry

	received *prometheus.CounterVec
	filtered *prometheus.CounterVec
	alerted  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_events_received_total",
			Help: "Events received from the source adapters",
		}, []string{"kind"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwatch_events_filtered_total",
			Help: "Events dropped by the filter chain",
		}, []string{"reason"}),
		alerted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetwatch_alerts_total",
			Help: "Alerts handed to the sink",
		}),
	}

	m.registry.MustRegister(m.received, m.filtered, m.alerted)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// ObserveQueue exposes the overflow drop count of the event queue.
func (m *Metrics) ObserveQueue(queue *event.Queue) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "fleetwatch_queue_dropped_total",
		Help: "Events dropped because the queue was full",
	}, func() float64 {
		return float64(queue.Dropped())
	}))
}

func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
