package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Defaults(t *testing.T) {
	event := &Event{
		EventType: EventTypeSessionCreated,
		Severity:  SeverityInfo,
		IPAddress: "192.168.1.1",
		Action:    "Create session",
		Success:   true,
	}

	// ID and timestamp should be set by the logger
	assert.Equal(t, uuid.Nil, event.ID)
	assert.True(t, event.Timestamp.IsZero())
}

func TestLogger_LogWithoutDatabase(t *testing.T) {
	// Create logger without database connection
	logger := NewLogger(nil, true)

	event := &Event{
		EventType: EventTypeSessionCreated,
		Severity:  SeverityInfo,
		UserID:    "user123",
		IPAddress: "192.168.1.1",
		Action:    "Create session",
		Success:   true,
	}

	// Should not error even without database
	err := logger.Log(context.Background(), event)
	assert.NoError(t, err)

	// ID and timestamp should be set
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestLogger_Disabled(t *testing.T) {
	// Create disabled logger
	logger := NewLogger(nil, false)

	event := &Event{
		EventType: EventTypeSessionCreated,
		Severity:  SeverityInfo,
		IPAddress: "192.168.1.1",
		Action:    "Create session",
		Success:   true,
	}

	// Should be no-op when disabled
	err := logger.Log(context.Background(), event)
	assert.NoError(t, err)
}

func TestLogger_LogSessionAction(t *testing.T) {
	logger := NewLogger(nil, true)

	err := logger.LogSessionAction(
		context.Background(),
		EventTypeSessionCreated,
		"user123",
		"session-456",
		true,
		"",
	)

	assert.NoError(t, err)
}

func TestLogger_LogConsensusAction(t *testing.T) {
	logger := NewLogger(nil, true)

	metadata := map[string]interface{}{
		"votes_for":     3,
		"votes_against": 1,
	}

	err := logger.LogConsensusAction(
		context.Background(),
		EventTypeVetoAccepted,
		"user123",
		"voting-789",
		metadata,
		true,
		"",
	)

	assert.NoError(t, err)
}

func TestLogger_LogPermissionCheck(t *testing.T) {
	logger := NewLogger(nil, true)

	err := logger.LogPermissionCheck(
		context.Background(),
		"user123",
		"session-456",
		"session",
		"join",
		"",
		true,
	)

	assert.NoError(t, err)
}

func TestLogger_LogSecurityEvent(t *testing.T) {
	logger := NewLogger(nil, true)

	metadata := map[string]interface{}{
		"attempts": 5,
		"endpoint": "/api/v1/sessions",
	}

	err := logger.LogSecurityEvent(
		context.Background(),
		EventTypeRateLimitExceeded,
		"",
		"192.168.1.1",
		"/api/v1/sessions",
		"Rate limit exceeded",
		metadata,
	)

	assert.NoError(t, err)
}

func TestLogger_LogConfigChange(t *testing.T) {
	logger := NewLogger(nil, true)

	err := logger.LogConfigChange(
		context.Background(),
		"admin",
		"192.168.1.1",
		"max_participants",
		10.0,
		20.0,
		true,
		"",
	)

	assert.NoError(t, err)
}

func TestQueryFilters(t *testing.T) {
	filters := &QueryFilters{
		EventType: EventTypeSessionCreated,
		UserID:    "user123",
		IPAddress: "192.168.1.1",
		StartTime: time.Now().Add(-24 * time.Hour),
		EndTime:   time.Now(),
		Success:   boolPtr(true),
		Limit:     100,
	}

	assert.Equal(t, EventTypeSessionCreated, filters.EventType)
	assert.Equal(t, "user123", filters.UserID)
	assert.Equal(t, "192.168.1.1", filters.IPAddress)
	assert.NotNil(t, filters.Success)
	assert.True(t, *filters.Success)
	assert.Equal(t, 100, filters.Limit)
}

func TestEventTypes(t *testing.T) {
	// Test that event types are unique strings
	types := []EventType{
		EventTypeLogin,
		EventTypeLogout,
		EventTypeLoginFailed,
		EventTypeSessionCreated,
		EventTypeSessionClosed,
		EventTypeVetoRequested,
		EventTypeHandoffInitiated,
		EventTypeConfigUpdated,
		EventTypeRateLimitExceeded,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		assert.False(t, seen[et], "Duplicate event type: %s", et)
		assert.NotEmpty(t, string(et), "Event type should not be empty")
		seen[et] = true
	}
}

func TestSeverityLevels(t *testing.T) {
	// Test severity levels
	severities := []Severity{
		SeverityInfo,
		SeverityWarning,
		SeverityError,
		SeverityCritical,
	}

	for _, s := range severities {
		assert.NotEmpty(t, string(s), "Severity should not be empty")
	}
}

// newMockLogger wires a Logger around a pgxmock pool so persistence
// and query paths can be exercised without a real database.
func newMockLogger(t *testing.T, enabled bool) (*Logger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newWithDBPool(mock, enabled), mock
}

func TestLogger_Log_Persists(t *testing.T) {
	logger, mock := newMockLogger(t, true)

	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	event := &Event{
		EventType: EventTypeSessionCreated,
		Severity:  SeverityInfo,
		UserID:    "user123",
		Resource:  "session-456",
		Action:    "Create session",
		Success:   true,
	}

	err := logger.Log(context.Background(), event)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.NotEqual(t, uuid.Nil, event.ID)
}

func TestLogger_Query(t *testing.T) {
	logger, mock := newMockLogger(t, true)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "timestamp", "event_type", "severity", "user_id", "ip_address",
		"user_agent", "resource", "action", "success", "error_message",
		"metadata", "request_id", "duration_ms",
	}).AddRow(
		uuid.New(), now, EventTypeSessionCreated, SeverityInfo, "user123", "192.168.1.1",
		"", "session-456", "Create session", true, "",
		[]byte("{}"), "", int64(0),
	)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	events, err := logger.Query(context.Background(), &QueryFilters{UserID: "user123"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeSessionCreated, events[0].EventType)
}

// Helper function
func boolPtr(b bool) *bool {
	return &b
}
