package main

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/swarmfabric/internal/audit"
)

const (
	httpMethodGET  = "GET"
	httpMethodPOST = "POST"
)

// RateLimiterConfig defines rate limiting configuration for different
// endpoint tiers, grounded on cmd/api/middleware.go's tiered design
// (control/order/read endpoints get distinct windows).
type RateLimiterConfig struct {
	GlobalMaxRequests int
	GlobalWindow      time.Duration

	// Control endpoints (session create/join/leave/close, handoffs)
	ControlMaxRequests int
	ControlWindow      time.Duration

	// Order endpoints (task submission, vote casting, delegation)
	OrderMaxRequests int
	OrderWindow      time.Duration

	// Read-only endpoints (list/get)
	ReadMaxRequests int
	ReadWindow      time.Duration

	Enabled bool
}

// DefaultRateLimiterConfig returns the default rate limiter configuration.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		GlobalMaxRequests: 100,
		GlobalWindow:      time.Minute,

		ControlMaxRequests: 20,
		ControlWindow:      time.Minute,

		OrderMaxRequests: 60,
		OrderWindow:      time.Minute,

		ReadMaxRequests: 120,
		ReadWindow:      time.Minute,

		Enabled: true,
	}
}

// rateLimiterEntry tracks request timestamps for an IP address.
type rateLimiterEntry struct {
	requests []time.Time
	mu       sync.Mutex
}

// RateLimiter implements a sliding-window rate limiter per IP address.
type RateLimiter struct {
	entries     sync.Map // map[string]*rateLimiterEntry
	maxRequests int
	window      time.Duration
	name        string
}

func NewRateLimiter(name string, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests, window: window, name: name}
}

type rateLimitInfo struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (rl *RateLimiter) check(ip string) rateLimitInfo {
	now := time.Now()

	val, _ := rl.entries.LoadOrStore(ip, &rateLimiterEntry{
		requests: make([]time.Time, 0, rl.maxRequests),
	})
	entry := val.(*rateLimiterEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := now.Add(-rl.window)
	validRequests := make([]time.Time, 0, len(entry.requests))
	var oldestRequest time.Time
	for _, req := range entry.requests {
		if req.After(cutoff) {
			validRequests = append(validRequests, req)
			if oldestRequest.IsZero() || req.Before(oldestRequest) {
				oldestRequest = req
			}
		}
	}
	entry.requests = validRequests

	resetAt := now.Add(rl.window)
	if !oldestRequest.IsZero() {
		resetAt = oldestRequest.Add(rl.window)
	}

	if len(entry.requests) >= rl.maxRequests {
		log.Warn().
			Str("ip", ip).
			Str("limiter", rl.name).
			Int("requests", len(entry.requests)).
			Int("max", rl.maxRequests).
			Dur("window", rl.window).
			Msg("rate limit exceeded")
		return rateLimitInfo{Allowed: false, Limit: rl.maxRequests, Remaining: 0, ResetAt: resetAt}
	}

	entry.requests = append(entry.requests, now)
	return rateLimitInfo{
		Allowed:   true,
		Limit:     rl.maxRequests,
		Remaining: rl.maxRequests - len(entry.requests),
		ResetAt:   resetAt,
	}
}

// Middleware returns a Gin middleware applying the rate limiter and
// standard X-RateLimit-* headers.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		info := rl.check(ip)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))

		if !info.Allowed {
			retryAfter := int(time.Until(info.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("maximum %d requests per %v allowed", rl.maxRequests, rl.window),
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimiterMiddleware manages the daemon's named rate limiter tiers.
type RateLimiterMiddleware struct {
	global  *RateLimiter
	control *RateLimiter
	order   *RateLimiter
	read    *RateLimiter
	enabled bool

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewRateLimiterMiddleware(config *RateLimiterConfig) *RateLimiterMiddleware {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	return &RateLimiterMiddleware{
		global:  NewRateLimiter("global", config.GlobalMaxRequests, config.GlobalWindow),
		control: NewRateLimiter("control", config.ControlMaxRequests, config.ControlWindow),
		order:   NewRateLimiter("order", config.OrderMaxRequests, config.OrderWindow),
		read:    NewRateLimiter("read", config.ReadMaxRequests, config.ReadWindow),
		enabled: config.Enabled,
	}
}

func (rlm *RateLimiterMiddleware) GlobalMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.global.Middleware()
}

func (rlm *RateLimiterMiddleware) ControlMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.control.Middleware()
}

func (rlm *RateLimiterMiddleware) OrderMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.order.Middleware()
}

func (rlm *RateLimiterMiddleware) ReadMiddleware() gin.HandlerFunc {
	if !rlm.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return rlm.read.Middleware()
}

// CleanupOldEntries removes stale IP entries from all rate limiters.
func (rlm *RateLimiterMiddleware) CleanupOldEntries() {
	now := time.Now()

	cleanupLimiter := func(limiter *RateLimiter) {
		limiter.entries.Range(func(key, value interface{}) bool {
			entry := value.(*rateLimiterEntry)
			entry.mu.Lock()
			cutoff := now.Add(-limiter.window * 2)
			hasValidRequests := false
			for _, req := range entry.requests {
				if req.After(cutoff) {
					hasValidRequests = true
					break
				}
			}
			entry.mu.Unlock()

			if !hasValidRequests {
				limiter.entries.Delete(key)
			}
			return true
		})
	}

	cleanupLimiter(rlm.global)
	cleanupLimiter(rlm.control)
	cleanupLimiter(rlm.order)
	cleanupLimiter(rlm.read)
}

// StartCleanupWorker starts a background goroutine that periodically
// evicts stale entries. Call Stop() during shutdown.
func (rlm *RateLimiterMiddleware) StartCleanupWorker(interval time.Duration) {
	rlm.stopChan = make(chan struct{})
	rlm.doneChan = make(chan struct{})

	ticker := time.NewTicker(interval)
	go func() {
		defer close(rlm.doneChan)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rlm.CleanupOldEntries()
			case <-rlm.stopChan:
				return
			}
		}
	}()
}

// Stop gracefully shuts down the cleanup worker.
func (rlm *RateLimiterMiddleware) Stop() {
	if rlm.stopChan == nil {
		return
	}
	close(rlm.stopChan)
	select {
	case <-rlm.doneChan:
		log.Info().Msg("rate limiter cleanup worker stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("rate limiter cleanup worker did not stop in time")
	}
}

// AuditLoggingMiddleware logs every security-relevant request to the
// audit log, grounded on cmd/api/middleware.go's request-ID + async
// log pattern.
func AuditLoggingMiddleware(auditLogger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)

		start := time.Now()
		ipAddress := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start).Milliseconds()
		statusCode := c.Writer.Status()
		success := statusCode >= 200 && statusCode < 400

		eventType := determineEventType(method, path)
		if eventType == "" {
			return
		}

		severity := audit.SeverityInfo
		if !success {
			if statusCode >= 500 {
				severity = audit.SeverityError
			} else if statusCode >= 400 {
				severity = audit.SeverityWarning
			}
		}

		var errorMsg string
		if !success {
			if err, exists := c.Get("error"); exists {
				errorMsg = fmt.Sprintf("%v", err)
			}
		}

		userID, _ := c.Get("user_id")
		userIDStr := ""
		if userID != nil {
			userIDStr = fmt.Sprintf("%v", userID)
		}

		resource, _ := c.Get("resource_id")
		resourceStr := ""
		if resource != nil {
			resourceStr = fmt.Sprintf("%v", resource)
		}

		event := &audit.Event{
			EventType: eventType,
			Severity:  severity,
			UserID:    userIDStr,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			Resource:  resourceStr,
			Action:    fmt.Sprintf("%s %s", method, path),
			Success:   success,
			ErrorMsg:  errorMsg,
			RequestID: requestID,
			Duration:  duration,
		}

		ctx := c.Request.Context()
		go func() {
			if err := auditLogger.Log(ctx, event); err != nil {
				log.Error().Err(err).Msg("failed to log audit event")
			}
		}()
	}
}

// determineEventType maps session-fabric HTTP routes to audit event
// types, re-themed from the teacher's trading-route mapping.
func determineEventType(method, path string) audit.EventType {
	switch {
	case path == "/api/v1/sessions" && method == httpMethodPOST:
		return audit.EventTypeSessionCreated
	case strings.HasSuffix(path, "/join") && method == httpMethodPOST:
		return audit.EventTypeSessionJoined
	case strings.HasSuffix(path, "/leave") && method == httpMethodPOST:
		return audit.EventTypeSessionLeft
	case strings.HasSuffix(path, "/close") && method == httpMethodPOST && strings.HasPrefix(path, "/api/v1/sessions"):
		return audit.EventTypeSessionClosed
	case strings.HasSuffix(path, "/veto") && method == httpMethodPOST:
		return audit.EventTypeVetoRequested
	case strings.HasPrefix(path, "/api/v1/handoffs") && method == httpMethodPOST && strings.HasSuffix(path, "/complete"):
		return audit.EventTypeHandoffCompleted
	case strings.HasPrefix(path, "/api/v1/handoffs") && method == httpMethodPOST && strings.HasSuffix(path, "/cancel"):
		return audit.EventTypeHandoffCanceled
	case path == "/api/v1/handoffs" && method == httpMethodPOST:
		return audit.EventTypeHandoffInitiated
	case path == "/api/v1/swarm/delegate" && method == httpMethodPOST:
		return audit.EventTypeDelegationDone
	case strings.HasPrefix(path, "/api/v1/restore") && method == httpMethodPOST:
		return audit.EventTypeSessionRestored
	}
	return ""
}

// requestLogger logs every request at info/warn/error depending on
// the response status, matching the teacher's request-logging shape.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logEvent := log.Info()
		if statusCode >= 400 {
			logEvent = log.Warn()
		}
		if statusCode >= 500 {
			logEvent = log.Error()
		}

		logEvent.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("http request")
	}
}
