package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talkie_ws_connections",
		Help: "Current number of live realtime connections",
	})
	WsReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkie_ws_reconnects_total",
		Help: "Total number of transparent realtime reconnect attempts",
	})
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkie_messages_received_total",
		Help: "Total number of messages received on the live path",
	})
	TokenRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkie_token_refreshes_total",
		Help: "Total number of completed token refresh calls",
	})
	CacheMergeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talkie_cache_merge_failures_total",
		Help: "Total number of failed best-effort cache writes",
	})
)

var registerOnce sync.Once

// Register installs the collectors into the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WsConnections,
			WsReconnects,
			MessagesReceived,
			TokenRefreshes,
			CacheMergeFailures,
		)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
