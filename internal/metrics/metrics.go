package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion
	trackingEventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_tracking_events_ingested_total",
			Help: "Tracking events accepted by the ingestion endpoints",
		},
		[]string{"kind"},
	)

	trackingIngestFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_tracking_ingest_failed_total",
			Help: "Tracking batches that could not be stored (best-effort, still acknowledged)",
		},
		[]string{"kind"},
	)

	// Client-side transport
	transportFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_transport_flush_total",
			Help: "Transport flush outcomes per event type",
		},
		[]string{"event_type", "result"},
	)

	// Notifications
	notificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_notifications_created_total",
			Help: "Notifications persisted by the engine",
		},
		[]string{"type"},
	)

	notificationsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_notifications_delivered_total",
			Help: "Notification delivery path (live or queued)",
		},
		[]string{"path"},
	)

	notificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_notification_failures_total",
			Help: "Engine trigger outcomes other than ok",
		},
		[]string{"trigger", "kind"},
	)

	connectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsroom_connected_users",
			Help: "Users with a live delivery channel",
		},
	)

	// Consumer
	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsroom_messages_consumed_total",
			Help: "Business events consumed from RabbitMQ",
		},
		[]string{"routing_key", "result"},
	)

	workerPoolJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsroom_worker_pool_jobs_active",
			Help: "Trigger jobs currently running",
		},
	)

	workerPoolJobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsroom_worker_pool_jobs_queued",
			Help: "Trigger jobs waiting for a worker",
		},
	)
)

func RecordEventsIngested(kind string, n int) {
	trackingEventsIngestedTotal.WithLabelValues(kind).Add(float64(n))
}

func RecordIngestFailed(kind string) {
	trackingIngestFailedTotal.WithLabelValues(kind).Inc()
}

// RecordFlush records a transport flush; result is sent, persisted or dropped.
func RecordFlush(eventType, result string, n int) {
	transportFlushTotal.WithLabelValues(eventType, result).Add(float64(n))
}

func RecordNotificationCreated(notificationType string) {
	notificationsCreatedTotal.WithLabelValues(notificationType).Inc()
}

// RecordDelivery records whether a notification went out live or was queued.
func RecordDelivery(live bool) {
	path := "queued"
	if live {
		path = "live"
	}
	notificationsDeliveredTotal.WithLabelValues(path).Inc()
}

func RecordTriggerOutcome(trigger, kind string) {
	notificationFailuresTotal.WithLabelValues(trigger, kind).Inc()
}

func SetConnectedUsers(n int) {
	connectedUsers.Set(float64(n))
}

func RecordMessageConsumed(routingKey, result string) {
	messagesConsumedTotal.WithLabelValues(routingKey, result).Inc()
}

// ObserveWorkerPool matches the workerpool observe hook.
func ObserveWorkerPool(active, queued int) {
	workerPoolJobsActive.Set(float64(active))
	workerPoolJobsQueued.Set(float64(queued))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
