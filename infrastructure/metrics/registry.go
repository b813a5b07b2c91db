// Package metrics exposes event bus activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
)

// Registry owns a private Prometheus registry and records bus activity.
// It implements eventbus.Observer.
type Registry struct {
	registry *prometheus.Registry

	eventsEmitted    *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	subscriberFaults *prometheus.CounterVec
	subscribers      *prometheus.GaugeVec
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradequest_events_emitted_total",
				Help: "Total number of emitted events",
			},
			[]string{"event"},
		),

		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradequest_event_deliveries_total",
				Help: "Total number of handler invocations that returned normally",
			},
			[]string{"event"},
		),

		subscriberFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradequest_subscriber_faults_total",
				Help: "Total number of recovered subscriber panics",
			},
			[]string{"event"},
		),

		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradequest_subscribers",
				Help: "Current number of subscriptions per event",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(
		r.eventsEmitted,
		r.deliveries,
		r.subscriberFaults,
		r.subscribers,
	)

	// Export every catalog event at zero so rates work before the first emission
	for _, name := range event.Catalog() {
		label := string(name)
		r.eventsEmitted.WithLabelValues(label)
		r.deliveries.WithLabelValues(label)
		r.subscriberFaults.WithLabelValues(label)
		r.subscribers.WithLabelValues(label)
	}

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// EventEmitted implements eventbus.Observer.
func (r *Registry) EventEmitted(name event.Name, delivered int) {
	r.eventsEmitted.WithLabelValues(string(name)).Inc()
	if delivered > 0 {
		r.deliveries.WithLabelValues(string(name)).Add(float64(delivered))
	}
}

// SubscriberFault implements eventbus.Observer.
func (r *Registry) SubscriberFault(name event.Name) {
	r.subscriberFaults.WithLabelValues(string(name)).Inc()
}

// SubscribersChanged implements eventbus.Observer.
func (r *Registry) SubscribersChanged(name event.Name, count int) {
	r.subscribers.WithLabelValues(string(name)).Set(float64(count))
}

var _ eventbus.Observer = (*Registry)(nil)
