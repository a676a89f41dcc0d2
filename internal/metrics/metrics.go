// Package metrics declares Bonfire's Prometheus instrumentation.
//
// Naming convention: namespace_subsystem_name.
//   - namespace: bonfire (application-level grouping)
//   - subsystem: room, websocket, storage, ratelimit, circuitbreaker
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks current WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bonfire",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks current live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bonfire",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the player count per room.
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bonfire",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room_id"})

	// MessagesTotal tracks processed protocol messages by type and outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Total protocol messages processed",
	}, []string{"message_type", "status"})

	// MessageProcessingDuration tracks per-message handling latency.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bonfire",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing a protocol message",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"message_type"})

	// RoomsCreatedTotal / RoomsDeletedTotal track lifecycle churn.
	RoomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "room",
		Name:      "created_total",
		Help:      "Total rooms created",
	})
	RoomsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "room",
		Name:      "deleted_total",
		Help:      "Total rooms deleted, labeled by reason",
	}, []string{"reason"})

	// StorageOperationsTotal counts Storage operations of both adapters;
	// StorageOperationDuration is recorded by the Redis adapter only.
	StorageOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Total storage operations",
	}, []string{"operation", "status"})
	StorageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bonfire",
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Duration of storage operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// CircuitBreakerState / CircuitBreakerFailures instrument the breaker
	// wrapping the remote storage adapter. 0=Closed 1=Open 2=HalfOpen.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bonfire",
		Subsystem: "circuitbreaker",
		Name:      "state",
		Help:      "Current state of a circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "circuitbreaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by a circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded / RateLimitRequests instrument the admin/WS rate
	// limiters.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded a rate limit",
	}, []string{"endpoint"})
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bonfire",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Total requests checked against a rate limiter",
	}, []string{"endpoint"})
)

func IncConnection() { ActiveConnections.Inc() }
func DecConnection() { ActiveConnections.Dec() }
