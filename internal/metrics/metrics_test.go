package metrics

import "testing"

func TestConnectionGaugeHelpers(t *testing.T) {
	IncConnection()
	DecConnection()
}

func TestVecMetricsAcceptLabels(t *testing.T) {
	RoomPlayers.WithLabelValues("ROOM01").Set(3)
	MessagesTotal.WithLabelValues("room:create", "ok").Inc()
	StorageOperationsTotal.WithLabelValues("SaveGameState", "ok").Inc()
	CircuitBreakerState.WithLabelValues("redis").Set(0)
	RateLimitExceeded.WithLabelValues("/ws").Inc()
}
