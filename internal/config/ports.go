// Package config provides configuration management for the session fabric.
// This file centralizes all port constants to avoid duplication and ensure consistency.
package config

// ============================================================================
// CENTRALIZED PORT CONFIGURATION
// ============================================================================
//
// This file defines all ports used by swarmfabric services.
// Update this file when adding new services or changing port assignments.
//
// Port Allocation Strategy:
//   8080-8099: API servers and web services
//   8200-8299: Infrastructure services (Vault, etc.)
//   8400-8499: WebRTC signaling
//   9100-9199: Prometheus metrics endpoints
//
// ============================================================================

// API and Web Service Ports
const (
	// APIServerPort is the port for the main REST/control API server.
	APIServerPort = 8081

	// SignalingPort is the port for the WebRTC signaling server.
	SignalingPort = 8443

	// WebSocketPort is the port for WebSocket connections (uses the signaling port).
	WebSocketPort = SignalingPort
)

// Infrastructure Service Ports
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Prometheus Metrics Ports for swarm-fabric services.
// Each service gets a unique port for metrics scraping.
const (
	// MetricsPortSessionManager is the metrics port for the session manager.
	MetricsPortSessionManager = 9101

	// MetricsPortSignaling is the metrics port for the signaling server.
	MetricsPortSignaling = 9102

	// MetricsPortConsensus is the metrics port for the consensus voting engine.
	MetricsPortConsensus = 9104

	// MetricsPortSwarm is the metrics port for the swarm delegate.
	MetricsPortSwarm = 9105

	// MetricsPortPersistence is the metrics port for the persistence store.
	MetricsPortPersistence = 9106

	// MetricsPortRBAC is the metrics port for the RBAC guard.
	MetricsPortRBAC = 9108

	// MetricsPortAPI is the metrics port for the control API.
	// Note: the API server serves metrics on its main HTTP port.
	MetricsPortAPI = APIServerPort
)

// Monitoring Service Ports
const (
	// PrometheusPort is the default port for Prometheus.
	PrometheusPort = 9090

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000

	// NATSExporterPort is the port for the NATS Prometheus exporter.
	NATSExporterPort = 7777
)

// ServiceMetricsPorts provides a mapping of service names to their metrics ports.
// This is useful for Prometheus configuration and health checks.
var ServiceMetricsPorts = map[string]int{
	"session":     MetricsPortSessionManager,
	"signaling":   MetricsPortSignaling,
	"consensus":   MetricsPortConsensus,
	"swarm":       MetricsPortSwarm,
	"persistence": MetricsPortPersistence,
	"rbac":        MetricsPortRBAC,
}

// GetServiceMetricsPort returns the metrics port for a given service name.
// Returns 0 if the service is not found.
func GetServiceMetricsPort(serviceName string) int {
	if port, ok := ServiceMetricsPorts[serviceName]; ok {
		return port
	}
	return 0
}
