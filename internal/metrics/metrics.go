package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhive_events_published_total",
			Help: "Events published to the broker by routing key and outcome",
		},
		[]string{"routing_key", "outcome"}, // published|dropped|failed
	)

	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhive_events_consumed_total",
			Help: "Deliveries handled per queue by outcome",
		},
		[]string{"queue", "outcome"}, // acked|dropped|unacked
	)

	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhive_cache_ops_total",
			Help: "Cache operations by op and result",
		},
		[]string{"op", "result"}, // get|set|invalidate , hit|miss|ok|error
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskhive_breaker_state",
			Help: "Circuit breaker state per dependency (0=closed 1=open 2=half-open)",
		},
		[]string{"name"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsPublished,
		EventsConsumed,
		CacheOps,
		BreakerState,
	)
}
