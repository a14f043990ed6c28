package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==================== Router metrics (component E) ====================

	// RouterFramesTotal tracks frames the router dispatched, forwarded, or
	// dropped, by outcome.
	RouterFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_router_frames_total",
		Help: "Total frames processed by the router, by outcome",
	}, []string{"outcome"}) // dispatched, forwarded, dropped

	// RouterPendingGauge tracks the current size of the router's pending
	// correlation map.
	RouterPendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppcsms_router_pending_calls",
		Help: "Number of outstanding operator-issued calls awaiting a station reply",
	})

	// ==================== OCPP session metrics (components C, D) ====================

	// OCPPMessagesTotal tracks OCPP-J frames by action and direction.
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_ocpp_messages_total",
		Help: "Total OCPP-J frames",
	}, []string{"action", "direction"})

	// StationConnectionsActive tracks active station WebSocket sessions.
	StationConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppcsms_station_connections_active",
		Help: "Number of currently connected charge stations",
	})

	// OperatorConnectionsActive tracks active operator WebSocket sessions.
	OperatorConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocppcsms_operator_connections_active",
		Help: "Number of currently connected operator sessions",
	})

	// ==================== Log store metrics (component F) ====================

	// LogAppendsTotal tracks log-store append outcomes.
	LogAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_log_appends_total",
		Help: "Total log store append attempts, by outcome",
	}, []string{"outcome"}) // ok, circuit_open, error

	// LogExtractionDuration tracks the duration of extract() calls.
	LogExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocppcsms_log_extraction_duration_seconds",
		Help:    "Duration of log store time-range extraction",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})

	// ==================== Infrastructure metrics ====================

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocppcsms_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path", "status"})

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// CacheHitsTotal tracks revocation-cache hits and misses.
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_cache_hits_total",
		Help: "Total cache hits and misses",
	}, []string{"result"}) // hit, miss

	// MessageQueueMessagesTotal tracks optional event-bus publishes.
	MessageQueueMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocppcsms_mq_messages_total",
		Help: "Total message queue messages",
	}, []string{"topic", "status"}) // status: published, consumed, failed
)

// RecordOCPPMessage records an OCPP-J frame metric.
func RecordOCPPMessage(action string, inbound bool) {
	direction := "outbound"
	if inbound {
		direction = "inbound"
	}
	OCPPMessagesTotal.WithLabelValues(action, direction).Inc()
}

// RecordRouterOutcome records a dispatched/forwarded/dropped frame at the
// router.
func RecordRouterOutcome(outcome string) {
	RouterFramesTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	statusStr := fmt.Sprintf("%d", status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(durationSeconds)
}

// RecordCacheAccess records a revocation-cache access metric.
func RecordCacheAccess(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheHitsTotal.WithLabelValues(result).Inc()
}
