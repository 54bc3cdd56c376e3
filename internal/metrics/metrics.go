// Package metrics holds the Prometheus collectors shared by the dispatcher,
// keyword engine, AI client and channel adapters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bot"

var (
	// DispatchTotal counts routed events by outcome: handled, unhandled or gated.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "dispatch_total",
		Help:      "Inbound events dispatched through the handler chain, by outcome.",
	}, []string{"channel", "outcome"})

	// HandlerFaults counts handler errors and recovered panics.
	HandlerFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "handler_faults_total",
		Help:      "Handler invocations that returned an error or panicked.",
	}, []string{"handler"})

	// HandlerDuration observes time spent in each handler.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "handler_duration_seconds",
		Help:      "Time spent inside a single handler invocation.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
	}, []string{"handler"})

	// KeywordMatches counts keyword replies by table.
	KeywordMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keyword",
		Name:      "matches_total",
		Help:      "Keyword matches that produced a reply, by table.",
	}, []string{"table"})

	// KeywordEntries reports the size of each keyword table.
	KeywordEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "keyword",
		Name:      "entries",
		Help:      "Number of keyword entries per table.",
	}, []string{"table"})

	// CooldownSuppressed counts structural matches suppressed by the cooldown window.
	CooldownSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cooldown",
		Name:      "suppressed_total",
		Help:      "Keyword matches suppressed because the key fired within the cooldown window.",
	})

	// CooldownBackendErrors counts failed calls to a shared cooldown backend.
	CooldownBackendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cooldown",
		Name:      "backend_errors_total",
		Help:      "Cooldown backend errors; the gate fails open on error.",
	})

	// AIRequests counts chat-completion calls by result class.
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "requests_total",
		Help:      "Chat-completion requests by result: ok, network, api or general.",
	}, []string{"result"})

	// AIDuration observes chat-completion latency.
	AIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Chat-completion request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
	})

	// SendTotal counts outbound sends by channel and result.
	SendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "send_total",
		Help:      "Outbound messages by channel and result: ok, error or throttled.",
	}, []string{"channel", "result"})

	// AdapterConnections reports live adapter connections.
	AdapterConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "connections",
		Help:      "Live adapter connections per channel.",
	}, []string{"channel"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
