// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directchat",
		Name:      "messages_created_total",
		Help:      "Messages persisted, by type and initial status.",
	}, []string{"type", "status"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directchat",
		Name:      "events_emitted_total",
		Help:      "Real-time events by name and outcome (delivered, offline, dropped).",
	}, []string{"event", "outcome"})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "directchat",
		Name:      "online_users",
		Help:      "Users holding a live connection.",
	})

	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directchat",
		Name:      "admission_decisions_total",
		Help:      "Outcomes of message requests: requested, accepted, rejected.",
	}, []string{"decision"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "directchat",
		Name:      "send_rate_limited_total",
		Help:      "Send requests refused by the per-user limiter.",
	})

	RefsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "directchat",
		Name:      "conversation_refs_pruned_total",
		Help:      "Dangling conversation message refs removed by the janitor.",
	})
)

// Event outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeDropped   = "dropped"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
