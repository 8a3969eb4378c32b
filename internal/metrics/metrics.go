package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Fabric Metrics
var (
	// Active sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_active_sessions",
		Help: "Number of currently active sessions",
	})

	// Active participants across all sessions
	ActiveParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_active_participants",
		Help: "Number of currently connected participants",
	})

	// Voting sessions opened/closed
	VotingSessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarmfabric_voting_sessions_opened_total",
		Help: "Total number of voting sessions created",
	})

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_votes_cast_total",
		Help: "Total number of votes cast by algorithm",
	}, []string{"algorithm"})

	ConsensusReached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_consensus_reached_total",
		Help: "Total number of consensus closures by algorithm and outcome",
	}, []string{"algorithm", "reached"})

	// Delegation outcomes
	Delegations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_delegations_total",
		Help: "Total number of swarm delegations by path and result",
	}, []string{"path", "result"})

	// Signaling connections
	SignalingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_signaling_connections",
		Help: "Number of currently open signaling sockets",
	})

	SignalingRoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_signaling_rooms_active",
		Help: "Number of currently active signaling rooms",
	})

	// RBAC checks
	RBACChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_rbac_checks_total",
		Help: "Total number of RBAC guard checks by action and allowed flag",
	}, []string{"action", "allowed"})

	// Handoffs
	Handoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_handoffs_total",
		Help: "Total number of context handoffs by outcome",
	}, []string{"outcome"})
)

// System Health Metrics
var (
	// Orchestrator latency
	OrchestratorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmfabric_orchestrator_latency_ms",
		Help:    "Orchestrator decision latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Redis cache hit rate
	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_redis_cache_hit_rate",
		Help: "Redis cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swarmfabric_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swarmfabric_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// NATS messages
	NATSMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarmfabric_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	})

	NATSMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarmfabric_nats_messages_received_total",
		Help: "Total number of NATS messages received",
	})
)

// Agent Activity Metrics
var (
	// Active agents
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarmfabric_active_agents",
		Help: "Number of currently active agents",
	})

	// Agent signals
	AgentSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_agent_signals_total",
		Help: "Total number of agent signals by type",
	}, []string{"agent_type", "signal_type"})

	// Agent signal confidence
	AgentSignalConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarmfabric_agent_signal_confidence",
		Help: "Agent signal confidence level (0.0 to 1.0)",
	}, []string{"agent_type"})

	// Agent status (1 = online, 0 = offline)
	AgentStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarmfabric_agent_status",
		Help: "Agent status (1 = online, 0 = offline)",
	}, []string{"agent_type"})

	// Agent processing duration
	AgentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swarmfabric_agent_processing_duration_ms",
		Help:    "Agent processing duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"agent_type"})

	// Voting results
	VotingResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_voting_results_total",
		Help: "Total voting results by decision",
	}, []string{"decision"})
)

// Audit Metrics
var (
	// Audit log operations
	AuditLogOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_audit_log_operations_total",
		Help: "Total number of audit log operations by event type and status",
	}, []string{"event_type", "status"})

	// Audit log failures
	AuditLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarmfabric_audit_log_failures_total",
		Help: "Total number of audit log failures by error type",
	}, []string{"error_type", "event_type"})

	// Audit log latency
	AuditLogLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarmfabric_audit_log_latency_ms",
		Help:    "Audit log operation latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})
)

// Helper functions to update metrics

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordAgentSignal records an agent signal
func RecordAgentSignal(agentType, signalType string, confidence float64) {
	AgentSignals.WithLabelValues(agentType, signalType).Inc()
	AgentSignalConfidence.WithLabelValues(agentType).Set(confidence)
}

// RecordAgentProcessing records agent processing duration
func RecordAgentProcessing(agentType string, durationMs float64) {
	AgentProcessingDuration.WithLabelValues(agentType).Observe(durationMs)
}

// SetAgentStatus sets agent online/offline status
func SetAgentStatus(agentType string, online bool) {
	status := 0.0
	if online {
		status = 1.0
	}
	AgentStatus.WithLabelValues(agentType).Set(status)
}

// RecordVotingResult records a voting result
func RecordVotingResult(decision string) {
	VotingResults.WithLabelValues(decision).Inc()
}

// RecordRBACCheck records an RBAC guard decision
func RecordRBACCheck(action string, allowed bool) {
	RBACChecks.WithLabelValues(action, strconv.FormatBool(allowed)).Inc()
}

// RecordDelegation records a swarm delegation outcome
func RecordDelegation(path, result string) {
	Delegations.WithLabelValues(path, result).Inc()
}

// RecordHandoff records a context handoff outcome
func RecordHandoff(outcome string) {
	Handoffs.WithLabelValues(outcome).Inc()
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordOrchestratorLatency records orchestrator decision latency
func RecordOrchestratorLatency(durationMs float64) {
	OrchestratorLatency.Observe(durationMs)
}

// RecordAuditLog records an audit log operation
func RecordAuditLog(eventType string, success bool, durationMs float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	AuditLogOperations.WithLabelValues(eventType, status).Inc()
	AuditLogLatency.Observe(durationMs)
}

// RecordAuditLogFailure records an audit log failure with error type
func RecordAuditLogFailure(errorType, eventType string) {
	AuditLogFailures.WithLabelValues(errorType, eventType).Inc()
}
