// Package session is the core coordinator of the fabric: it owns
// Session/Participant/Task state, mediates join/leave/veto/handoff
// flows, and dispatches inbound SessionMessages. Grounded on
// internal/orchestrator/orchestrator.go's Orchestrator (the top-level
// coordinator pattern: a locked registry of domain objects, RBAC and
// consensus as injected collaborators) and on the RoseWrightdev video
// conferencing example's room/host-promotion logic.
package session

import (
	"time"

	"github.com/ajitpratap0/swarmfabric/internal/errs"
)

// defaultConnectTimeout bounds how long JoinSession waits for the
// signaling-mediated offer exchange when a session does not override
// it, per the grounding ledger's §4.E Open Question decision.
const defaultConnectTimeout = 5 * time.Second

// ConnectionState is a Participant's transport state.
type ConnectionState string

const (
	ConnConnecting   ConnectionState = "Connecting"
	ConnConnected    ConnectionState = "Connected"
	ConnDisconnected ConnectionState = "Disconnected"
	ConnFailed       ConnectionState = "Failed"
)

// Status is a Session's lifecycle state.
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusActive       Status = "Active"
	StatusPaused       Status = "Paused"
	StatusClosed       Status = "Closed"
)

// Priority is a Task's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Participant is one member of a Session.
type Participant struct {
	UserID        string          `json:"userId"`
	AgentID       string          `json:"agentId,omitempty"`
	DisplayName   string          `json:"displayName"`
	JoinedAt      time.Time       `json:"joinedAt"`
	IsHost        bool            `json:"isHost"`
	Authenticated bool            `json:"authenticated"`
	Capabilities  []string        `json:"capabilities"`
	ConnState     ConnectionState `json:"connState"`
}

// Task is a unit of work tracked by a Session.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Priority    Priority    `json:"priority"`
	Payload     interface{} `json:"payload,omitempty"`
	Completed   bool        `json:"completed"`
}

// Config is the schema-validated input to CreateSession.
type Config struct {
	SessionID       string
	HostUserID      string
	MaxParticipants int
	VetoEnabled     bool
	A2AEnabled      bool

	// EnableSignaling routes JoinSession's offer exchange through the
	// signaling server. False means this session never attempts
	// signaling at all and always admits participants over the direct
	// event-bus path, per §4.E.
	EnableSignaling bool
	// FallbackToDirect governs what happens when EnableSignaling is
	// true but the signaling-mediated exchange is unreachable or times
	// out: true falls back to direct event-bus emission, false fails
	// the join with Unavailable.
	FallbackToDirect bool
	// ConnectTimeout bounds how long JoinSession waits for the
	// signaling exchange before treating it as unreachable. Zero uses
	// the signaling server's own configured default.
	ConnectTimeout time.Duration
}

// Validate enforces §4.E's "Create" schema-level checks: ids
// non-empty, participant cap in 2..50.
func (c Config) Validate() error {
	if c.SessionID == "" {
		return errs.New(errs.InvalidArgument, "sessionId must not be empty")
	}
	if c.HostUserID == "" {
		return errs.New(errs.InvalidArgument, "hostUserId must not be empty")
	}
	if c.MaxParticipants < 2 || c.MaxParticipants > 50 {
		return errs.New(errs.InvalidArgument, "maxParticipants must be in 2..50")
	}
	return nil
}

// openVeto tracks an in-flight veto request for a single task.
type openVeto struct {
	votingSessionID string
	requesterID     string
}

// Session is the aggregate root the Manager serializes access to
// behind a per-session mutex (§5 "a logical lock").
type Session struct {
	ID           string
	Config       Config
	HostUserID   string
	Participants map[string]*Participant // userID -> participant
	Tasks        map[string]*Task        // taskID -> task
	OpenVetoes   map[string]openVeto      // taskID -> open veto
	Handshakes   map[string]string        // ordered "a|b" pair -> handshakeID
	Status       Status
	CreatedAt    time.Time
	LastActivity time.Time

	// lastStateWriteAt/lastStateWriter track the most recent State
	// message applied, for last-writer-wins conflict resolution.
	lastStateWriteAt time.Time
	lastStateWriter  string
}

func newSession(cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:           cfg.SessionID,
		Config:       cfg,
		HostUserID:   cfg.HostUserID,
		Participants: make(map[string]*Participant),
		Tasks:        make(map[string]*Task),
		OpenVetoes:   make(map[string]openVeto),
		Handshakes:   make(map[string]string),
		Status:       StatusInitializing,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Snapshot is the persistable view of a Session: participants minus
// live transport handles, active tasks, open vetoes/handshakes by id
// only, status, timestamps, config (§4.G).
type Snapshot struct {
	ID           string                 `json:"id"`
	Config       Config                 `json:"config"`
	Participants map[string]*Participant `json:"participants"`
	Tasks        map[string]*Task       `json:"tasks"`
	OpenVetoIDs  map[string]string      `json:"openVetoIds"`  // taskID -> votingSessionID
	HandshakeIDs map[string]string      `json:"handshakeIds"` // pair -> handshakeID
	Status       Status                 `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActivity time.Time              `json:"lastActivity"`
}

func (s *Session) snapshot() Snapshot {
	vetoIDs := make(map[string]string, len(s.OpenVetoes))
	for taskID, v := range s.OpenVetoes {
		vetoIDs[taskID] = v.votingSessionID
	}
	return Snapshot{
		ID:           s.ID,
		Config:       s.Config,
		Participants: s.Participants,
		Tasks:        s.Tasks,
		OpenVetoIDs:  vetoIDs,
		HandshakeIDs: s.Handshakes,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}
