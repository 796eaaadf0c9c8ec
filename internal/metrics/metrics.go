package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socio_messages_sent_total",
		Help: "Direct messages stored, by message type",
	}, []string{"type"})

	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socio_notifications_created_total",
		Help: "Notifications written, by notification type",
	}, []string{"type"})

	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socio_ws_active_connections",
		Help: "Active websocket connections on this instance",
	})

	WSDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socio_ws_dropped_total",
		Help: "Websocket clients dropped because their send queue was full",
	})

	ShareRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socio_share_requests_total",
		Help: "Cross-posting attempts, by provider and outcome",
	}, []string{"provider", "outcome"})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(MessagesSent, NotificationsCreated, WSConnections, WSDropped, ShareRequests)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
