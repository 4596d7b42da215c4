package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the arena server.
//
// Naming convention: namespace_subsystem_name
// - namespace: ox_arena
// - subsystem: websocket, room, motion, quiz
//
// Metric Types:
// - Gauge: Current state (connections, rooms, players)
// - Counter: Cumulative events (messages processed, corrections)
// - Histogram: Latency distributions (processing time, tick duration)

var (
	// ActiveConnections tracks the current number of websocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ox_arena",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ox_arena",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of players in each room.
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ox_arena",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room_code"})

	// WebsocketEvents counts processed ingress events by outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ox_arena",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration is the time spent inside the room router.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ox_arena",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// TickDuration measures one full delta fan-out pass over all rooms.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ox_arena",
		Subsystem: "motion",
		Name:      "tick_seconds",
		Help:      "Duration of one AOI delta broadcast tick",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1},
	})

	// MovementCorrections counts clamp corrections pushed back to clients.
	MovementCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ox_arena",
		Subsystem: "motion",
		Name:      "corrections_total",
		Help:      "Total movement corrections emitted",
	})

	// QuizRounds counts completed quiz questions by result.
	QuizRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ox_arena",
		Subsystem: "quiz",
		Name:      "rounds_total",
		Help:      "Total quiz question rounds judged",
	}, []string{"outcome"})

	// RateLimitExceeded counts rejected requests by endpoint and limit type.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ox_arena",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"endpoint", "limit_type"})

	// CircuitBreakerState reports the redis breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ox_arena",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})

	// CircuitBreakerFailures counts operations dropped by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ox_arena",
		Subsystem: "bus",
		Name:      "circuit_breaker_failures_total",
		Help:      "Operations rejected while the circuit breaker was open",
	}, []string{"target"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
