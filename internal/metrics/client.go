package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Local counters mirrored next to the prometheus metrics so the watch
// command can render a status line without scraping itself.
var (
	eventsReceivedCount int64
	messagesSentCount   int64
	messagesAckedCount  int64
	rollbackCount       int64
	reconnectCount      int64
	connectedFlag       int64
)

// GetEventsReceivedCount returns the number of realtime events received since start
func GetEventsReceivedCount() int64 {
	return atomic.LoadInt64(&eventsReceivedCount)
}

// IncrementEventsReceived increments both the prometheus counter and the local mirror
func IncrementEventsReceived(event string) {
	RealtimeEventsReceived.WithLabelValues(event).Inc()
	atomic.AddInt64(&eventsReceivedCount, 1)
}

// GetMessagesSentCount returns the number of realtime messages emitted since start
func GetMessagesSentCount() int64 {
	return atomic.LoadInt64(&messagesSentCount)
}

// IncrementMessagesSent increments the sent messages counter
func IncrementMessagesSent() {
	RealtimeMessagesSent.Inc()
	atomic.AddInt64(&messagesSentCount, 1)
}

// IncrementMessagesAcked increments the acked messages counter
func IncrementMessagesAcked() {
	RealtimeMessagesAcked.Inc()
	atomic.AddInt64(&messagesAckedCount, 1)
}

// GetMessagesAckedCount returns the number of acked sends
func GetMessagesAckedCount() int64 {
	return atomic.LoadInt64(&messagesAckedCount)
}

// IncrementRollbacks increments the optimistic rollback counter
func IncrementRollbacks(entity string) {
	OptimisticRollbacks.WithLabelValues(entity).Inc()
	atomic.AddInt64(&rollbackCount, 1)
}

// GetRollbackCount returns the number of optimistic rollbacks
func GetRollbackCount() int64 {
	return atomic.LoadInt64(&rollbackCount)
}

// IncrementReconnects increments the reconnect attempt counter
func IncrementReconnects() {
	RealtimeReconnects.Inc()
	atomic.AddInt64(&reconnectCount, 1)
}

// GetReconnectCount returns the number of reconnect attempts
func GetReconnectCount() int64 {
	return atomic.LoadInt64(&reconnectCount)
}

// SetConnected records the realtime channel state
func SetConnected(up bool) {
	if up {
		RealtimeConnected.Set(1)
		atomic.StoreInt64(&connectedFlag, 1)
	} else {
		RealtimeConnected.Set(0)
		atomic.StoreInt64(&connectedFlag, 0)
	}
}

// IsConnected reports the last recorded realtime channel state
func IsConnected() bool {
	return atomic.LoadInt64(&connectedFlag) == 1
}

// Metrics for tracking client sync behaviour
var (
	// Realtime channel metrics
	RealtimeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xavlink_client_realtime_connected",
		Help: "Whether the realtime channel is currently connected (1) or not (0)",
	})

	RealtimeEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_realtime_events_received_total",
		Help: "The total number of realtime events received by event name",
	}, []string{"event"})

	RealtimeEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xavlink_client_realtime_events_dropped_total",
		Help: "The total number of re-emitted events suppressed after reconnect",
	})

	RealtimeMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xavlink_client_realtime_messages_sent_total",
		Help: "The total number of messages emitted over the realtime channel",
	})

	RealtimeMessagesAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xavlink_client_realtime_messages_acked_total",
		Help: "The total number of send_message acknowledgements received",
	})

	RealtimeReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xavlink_client_realtime_reconnects_total",
		Help: "The total number of reconnection attempts",
	})

	EventBagWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_event_bag_writes_total",
		Help: "Writes into the last-write-wins event bag by event name",
	}, []string{"event"})

	// REST metrics
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_rest_requests_total",
		Help: "The total number of REST requests by outcome",
	}, []string{"outcome"}) // "success", "timeout", "network", "unauthorized", "rejected", "server"

	RESTRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xavlink_client_rest_request_duration_seconds",
		Help:    "REST request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 10, 5), // 0.01, 0.1, 1, 10, 100
	})

	// Optimistic mutation metrics
	OptimisticMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_optimistic_mutations_total",
		Help: "The total number of optimistic mutations by entity",
	}, []string{"entity"})

	OptimisticRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_optimistic_rollbacks_total",
		Help: "The total number of optimistic mutations rolled back by entity",
	}, []string{"entity"})

	// Pagination metrics
	PagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xavlink_client_pages_loaded_total",
		Help: "The total number of cursor pages loaded by list",
	}, []string{"list"})
)

// RegisterMetrics pre-seeds common label values so dashboards show zeros
// instead of gaps before traffic arrives.
func RegisterMetrics() {
	events := []string{
		"receive_message", "new_notification", "user_typing", "user_stopped_typing",
		"new_post", "post_liked", "post_unliked", "new_comment", "post_deleted", "post_updated",
	}
	for _, ev := range events {
		RealtimeEventsReceived.WithLabelValues(ev)
		EventBagWrites.WithLabelValues(ev)
	}

	outcomes := []string{"success", "timeout", "network", "unauthorized", "rejected", "server"}
	for _, o := range outcomes {
		RESTRequests.WithLabelValues(o)
	}

	entities := []string{"like", "follow", "post", "message", "comment"}
	for _, e := range entities {
		OptimisticMutations.WithLabelValues(e)
		OptimisticRollbacks.WithLabelValues(e)
	}

	lists := []string{"followers", "following", "feed", "messages", "notifications"}
	for _, l := range lists {
		PagesLoaded.WithLabelValues(l)
	}
}
