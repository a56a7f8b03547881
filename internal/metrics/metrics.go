package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Raffle state
	// ============================================
	RaffleEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_raffle_entries_total",
			Help: "Total number of raffle entry attempts",
		},
		[]string{"result"},
	)

	RafflePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_raffle_players",
		Help: "Number of players in the current round",
	})

	RafflePoolBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_raffle_pool_balance_ether",
		Help: "Raffle pool balance in ether",
	})

	RafflePhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_raffle_phase",
		Help: "Raffle phase (0=open, 1=calculating)",
	})

	RaffleRound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_raffle_round",
		Help: "Current raffle round number",
	})

	UpkeepChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_raffle_upkeep_checks_total",
			Help: "Total number of upkeep evaluations by the scheduler",
		},
		[]string{"result"},
	)

	RandomnessRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_raffle_randomness_requests_total",
			Help: "Total number of randomness requests submitted",
		},
		[]string{"result"},
	)

	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_raffle_settlements_total",
		Help: "Total number of settled rounds",
	})

	PayoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_raffle_payout_failures_total",
		Help: "Total number of failed winner payouts",
	})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backend_raffle_settlement_latency_seconds",
		Help:    "Time from randomness request to settlement",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
	})

	VRFFulfillments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_vrf_fulfillments_total",
			Help: "Total number of randomness fulfillments delivered to the raffle",
		},
		[]string{"source", "result"},
	)

	EventBusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_event_bus_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"subscriber"},
	)

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_connections",
		Help: "Number of open websocket connections",
	})

	// ============================================
	// Database connection
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	// ============================================
	// NATS connection and messages
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"event_type"},
	)

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"event_type"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_failed_total",
			Help: "Total number of NATS messages failed to process",
		},
		[]string{"event_type", "error_type"},
	)

	NATSSubscriptionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_nats_subscription_status",
			Help: "NATS subscription status (1=active, 0=inactive)",
		},
		[]string{"subject"},
	)
)
