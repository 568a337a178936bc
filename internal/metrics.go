package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "gitevents"

// Registry holds every gitevents metric; it is served on the metrics path.
var Registry = prometheus.NewRegistry()

var (
	requestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "webhook_requests_total",
		Help:      "Webhook deliveries received, by GitHub event name.",
	}, []string{"event"})
	storedTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_stored_total",
		Help:      "Normalized records written to the store, by action.",
	}, []string{"action"})
	ignoredTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_ignored_total",
		Help:      "Deliveries that did not produce a record, by GitHub event name.",
	}, []string{"event"})
	webhookErrors = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "webhook_errors_total",
		Help:      "Webhook failures, by stage (payload, normalize, store, panic).",
	}, []string{"stage"})
	publishedTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "notifications_published_total",
		Help:      "Notifications published, by topic.",
	}, []string{"topic"})
	publishErrors = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "notification_publish_errors_total",
		Help:      "Notification publish failures, by driver.",
	}, []string{"driver"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func IncRequest(event string) {
	requestsTotal.WithLabelValues(event).Inc()
}

func IncStored(action string) {
	storedTotal.WithLabelValues(action).Inc()
}

func IncIgnored(event string) {
	ignoredTotal.WithLabelValues(event).Inc()
}

func IncWebhookError(stage string) {
	webhookErrors.WithLabelValues(stage).Inc()
}

func IncPublished(topic string) {
	publishedTotal.WithLabelValues(topic).Inc()
}

func IncPublishError(driver string) {
	publishErrors.WithLabelValues(driver).Inc()
}

// MetricsHandler serves Registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
