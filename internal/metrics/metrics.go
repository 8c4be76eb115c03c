package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges exposed on /metrics. promauto registers them with the
// default registry at package init.
var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nevexa_messages_sent_total",
		Help: "Messages persisted, over both the realtime channel and the REST endpoint.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nevexa_ws_connections",
		Help: "Currently open websocket connections.",
	})

	WSSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nevexa_ws_send_failures_total",
		Help: "Realtime send intents dropped because persistence failed.",
	})

	MessagesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nevexa_messages_expired_total",
		Help: "Messages removed by the retention sweeper.",
	})
)
