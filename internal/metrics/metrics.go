package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrapsettle_events_total",
		Help: "Reconciliation events by source and outcome.",
	}, []string{"source", "outcome"})

	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrapsettle_conflicts_total",
		Help: "Conflicting updates by kind.",
	}, []string{"kind"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrapsettle_refunds_total",
		Help: "Refund requests by result.",
	}, []string{"result"})

	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrapsettle_outbox_published_total",
		Help: "Outbox messages published to the broker.",
	})

	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scrapsettle_outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
