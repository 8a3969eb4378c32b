package persistence

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker settings for the persistence store: quick recovery,
// matching the teacher's database-service tier (lower timeout than
// its exchange/LLM tiers since a local Postgres is expected to heal
// fast).
const (
	minRequests     = 10
	failureRatio    = 0.6
	openTimeout     = 15 * time.Second
	halfOpenMaxReqs = 5
	countInterval   = 10 * time.Second
)

var (
	cbMetrics   *circuitBreakerMetrics
	cbMetricsOnce sync.Once
)

type circuitBreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}

func initCircuitBreakerMetrics() {
	cbMetricsOnce.Do(func() {
		cbMetrics = &circuitBreakerMetrics{
			state: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "persistence_circuit_breaker_state",
				Help: "Persistence circuit breaker state (0=closed, 1=open, 2=half_open)",
			}, []string{"service"}),
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "persistence_circuit_breaker_requests_total",
				Help: "Total requests through the persistence circuit breaker",
			}, []string{"service", "result"}),
		}
	})
}

// newCircuitBreaker builds a gobreaker.CircuitBreaker tuned for
// Postgres-backed snapshot writes, grounded on
// internal/risk/circuit_breaker.go's database tier.
func newCircuitBreaker() *gobreaker.CircuitBreaker {
	initCircuitBreakerMetrics()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "persistence",
		MaxRequests: halfOpenMaxReqs,
		Interval:    countInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cbMetrics.state.WithLabelValues("persistence").Set(float64(to))
		},
	})
}

// recordCircuitBreakerRequest tallies an Execute outcome, success or
// failure, against the persistence breaker's request counter.
func recordCircuitBreakerRequest(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	cbMetrics.requests.WithLabelValues("persistence", result).Inc()
}
