package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_realtime_events_published_total",
			Help: "Change events published, by table.",
		},
		[]string{"table"},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_realtime_events_delivered_total",
			Help: "Change events delivered to subscribers, by table.",
		},
		[]string{"table"},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_realtime_subscriptions",
			Help: "Live realtime subscriptions.",
		},
	)
)
