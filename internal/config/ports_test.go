package config

import "testing"

func TestGetServiceMetricsPort(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		expected    int
	}{
		{"session", "session", MetricsPortSessionManager},
		{"signaling", "signaling", MetricsPortSignaling},
		{"consensus", "consensus", MetricsPortConsensus},
		{"swarm", "swarm", MetricsPortSwarm},
		{"persistence", "persistence", MetricsPortPersistence},
		{"rbac", "rbac", MetricsPortRBAC},
		{"unknown service returns 0", "unknown-service", 0},
		{"empty name returns 0", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceMetricsPort(tt.serviceName)
			if got != tt.expected {
				t.Errorf("GetServiceMetricsPort(%q) = %d, want %d", tt.serviceName, got, tt.expected)
			}
		})
	}
}

func TestServiceMetricsPorts(t *testing.T) {
	expectedServices := []string{
		"session", "signaling", "consensus", "swarm", "persistence", "rbac",
	}

	for _, service := range expectedServices {
		if _, ok := ServiceMetricsPorts[service]; !ok {
			t.Errorf("ServiceMetricsPorts missing expected service: %s", service)
		}
	}

	if len(ServiceMetricsPorts) != 6 {
		t.Errorf("ServiceMetricsPorts has %d services, expected 6", len(ServiceMetricsPorts))
	}
}

func TestServiceMetricsPortsValues(t *testing.T) {
	tests := []struct {
		serviceName  string
		expectedPort int
	}{
		{"session", 9101},
		{"signaling", 9102},
		{"consensus", 9104},
		{"swarm", 9105},
		{"persistence", 9106},
		{"rbac", 9108},
	}

	seenPorts := make(map[int]string)

	for _, tt := range tests {
		t.Run(tt.serviceName, func(t *testing.T) {
			port := ServiceMetricsPorts[tt.serviceName]

			if port != tt.expectedPort {
				t.Errorf("ServiceMetricsPorts[%q] = %d, want %d", tt.serviceName, port, tt.expectedPort)
			}

			if port < 9100 || port > 9199 {
				t.Errorf("ServiceMetricsPorts[%q] = %d, port should be in range 9100-9199", tt.serviceName, port)
			}

			if existingService, exists := seenPorts[port]; exists {
				t.Errorf("Port %d is used by both %q and %q", port, existingService, tt.serviceName)
			}
			seenPorts[port] = tt.serviceName
		})
	}
}

func TestServiceMetricsPortsConsistency(t *testing.T) {
	for serviceName, expectedPort := range ServiceMetricsPorts {
		t.Run(serviceName, func(t *testing.T) {
			got := GetServiceMetricsPort(serviceName)
			if got != expectedPort {
				t.Errorf("GetServiceMetricsPort(%q) = %d, but ServiceMetricsPorts[%q] = %d",
					serviceName, got, serviceName, expectedPort)
			}
		})
	}
}
