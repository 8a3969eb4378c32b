package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
	"github.com/ajitpratap0/swarmfabric/internal/rbac"
)

// Event topics published by the Manager.
const (
	TopicSessionCreated = "swarm.session.created"
	TopicSessionClosed  = "swarm.session.closed"
	TopicTaskVetoed     = "swarm.task.vetoed"
	TopicTaskCompleted  = "swarm.task.completed"
)

const (
	vetoAcceptOption = "accept-veto"
	vetoRejectOption = "reject-veto"
)

// VetoPolicy decides how a non-requesting participant votes on a veto
// request. The reference implementation always accepts — a documented
// stub, not a random split, per the grounding ledger's Open Question
// decision. Tests inject deterministic stubs.
type VetoPolicy func(ctx context.Context, task Task, requesterUserID string, voterUserID string) (accept bool)

// DefaultVetoPolicy always accepts.
func DefaultVetoPolicy(ctx context.Context, task Task, requesterUserID, voterUserID string) bool {
	return true
}

// Snapshotter persists a Session's Snapshot on every mutation (§4.G).
// internal/persistence.Store implements this; it is optional — a nil
// Snapshotter simply skips persistence (useful for tests).
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// SignalingProbe is the signaling server's contract for JoinSession's
// §4.E offer exchange. internal/signaling.Server implements it; a nil
// Manager.signaling is treated the same as "unreachable" for any
// session that sets EnableSignaling.
type SignalingProbe interface {
	// Reachable reports whether the signaling server is up at all.
	Reachable() bool
	// DefaultTimeout is the connect timeout to use absent a
	// per-session override.
	DefaultTimeout() time.Duration
	// AwaitJoin blocks until participantID's signaling socket has
	// joined sessionID's room, ctx is done, or timeout elapses.
	AwaitJoin(ctx context.Context, sessionID, participantID string, timeout time.Duration) error
}

// Manager is the core coordinator. Grounded on
// internal/orchestrator/orchestrator.go's Orchestrator: a
// mutex-guarded registry of domain objects with RBAC and consensus as
// injected collaborators, generalized from agent orchestration to
// session lifecycle.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	locks        map[string]*sync.Mutex // per-session critical section, per §5
	guard        rbac.Guard
	consensusMgr *consensus.Manager
	handoffMgr   *handoff.Manager
	bus          eventbus.Bus
	store        Snapshotter
	signaling    SignalingProbe
	vetoPolicy   VetoPolicy
	log          zerolog.Logger
}

func NewManager(guard rbac.Guard, consensusMgr *consensus.Manager, handoffMgr *handoff.Manager, bus eventbus.Bus, store Snapshotter, signalingProbe SignalingProbe, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		locks:        make(map[string]*sync.Mutex),
		guard:        guard,
		consensusMgr: consensusMgr,
		handoffMgr:   handoffMgr,
		bus:          bus,
		store:        store,
		signaling:    signalingProbe,
		vetoPolicy:   DefaultVetoPolicy,
		log:          log.With().Str("component", "session").Logger(),
	}
}

// SetVetoPolicy overrides the default always-accept stub.
func (m *Manager) SetVetoPolicy(p VetoPolicy) {
	m.mu.Lock()
	m.vetoPolicy = p
	m.mu.Unlock()
}

func (m *Manager) lockFor(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// CreateSession validates cfg, checks RBAC, and instantiates the
// Session with host as its first Connected Participant.
func (m *Manager) CreateSession(ctx context.Context, cfg Config, hostDisplayName string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	decision, err := m.guard.Check(ctx, cfg.HostUserID, cfg.SessionID, "session", rbac.ActionSessionCreate)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errs.New(errs.PermissionDenied, decision.Reason)
	}

	m.mu.Lock()
	if _, exists := m.sessions[cfg.SessionID]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Conflict, fmt.Sprintf("session %q already exists", cfg.SessionID))
	}

	session := newSession(cfg)
	session.Participants[cfg.HostUserID] = &Participant{
		UserID:        cfg.HostUserID,
		DisplayName:   hostDisplayName,
		JoinedAt:      time.Now(),
		IsHost:        true,
		Authenticated: true,
		ConnState:     ConnConnected,
	}
	session.Status = StatusActive
	m.sessions[cfg.SessionID] = session
	m.mu.Unlock()

	m.touchAndSnapshot(ctx, session)
	metrics.ActiveSessions.Inc()
	metrics.ActiveParticipants.Inc()

	if m.bus != nil {
		_ = m.bus.Publish(ctx, TopicSessionCreated, session.snapshot())
	}
	m.log.Info().Str("session_id", session.ID).Str("host", cfg.HostUserID).Msg("session created")

	return session, nil
}

// JoinSession admits userID to sessionID. Idempotent if the user is
// already present.
func (m *Manager) JoinSession(ctx context.Context, sessionID, userID, displayName string, capabilities []string) (*Session, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	decision, err := m.guard.Check(ctx, userID, sessionID, "session", rbac.ActionSessionJoin)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errs.New(errs.PermissionDenied, decision.Reason)
	}

	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if session.Status != StatusActive {
		return nil, errs.New(errs.InvalidState, fmt.Sprintf("session %q is not Active", sessionID))
	}
	if p, exists := session.Participants[userID]; exists {
		p.ConnState = ConnConnected
		return session, nil
	}
	if len(session.Participants) >= session.Config.MaxParticipants {
		return nil, errs.New(errs.ResourceExhausted, fmt.Sprintf("session %q is full", sessionID))
	}

	session.Participants[userID] = &Participant{
		UserID:        userID,
		DisplayName:   displayName,
		JoinedAt:      time.Now(),
		Authenticated: true,
		Capabilities:  capabilities,
		ConnState:     ConnConnecting,
	}

	if err := m.negotiateConnection(ctx, session, userID); err != nil {
		delete(session.Participants, userID)
		metrics.ActiveParticipants.Dec()
		m.touchLocked(ctx, session)
		return nil, err
	}

	metrics.ActiveParticipants.Inc()
	m.touchLocked(ctx, session)
	m.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("participant joined")

	return session, nil
}

// negotiateConnection performs §4.E's per-peer offer exchange for
// userID once it has been admitted to session.Participants. Sessions
// with signaling disabled always succeed over the direct event-bus
// path. Sessions with signaling enabled await the signaling server's
// confirmation up to connectTimeout; on a timeout or an unreachable
// server this falls back to direct emission iff FallbackToDirect is
// set, otherwise the join fails Unavailable (caller must roll back the
// participant entry it just added).
func (m *Manager) negotiateConnection(ctx context.Context, session *Session, userID string) error {
	participant := session.Participants[userID]

	if !session.Config.EnableSignaling {
		m.emitDirectOffer(ctx, session, userID)
		participant.ConnState = ConnConnected
		return nil
	}

	reachable := m.signaling != nil && m.signaling.Reachable()
	if reachable {
		timeout := session.Config.ConnectTimeout
		if timeout <= 0 {
			timeout = m.signaling.DefaultTimeout()
		}
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}

		awaitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := m.signaling.AwaitJoin(awaitCtx, session.ID, userID, timeout)
		cancel()

		if err == nil {
			participant.ConnState = ConnConnected
			return nil
		}
		// A timed-out exchange is treated the same as "unreachable"
		// for the purpose of the FallbackToDirect check.
	}

	if !session.Config.FallbackToDirect {
		return errs.New(errs.Unavailable, "signaling is unreachable and fallbackToDirect is disabled")
	}

	m.emitDirectOffer(ctx, session, userID)
	participant.ConnState = ConnConnected
	return nil
}

// emitDirectOffer publishes the peer-connection offer on the shared
// bus instead of through the signaling server, for sessions that skip
// or fall back off signaling.
func (m *Manager) emitDirectOffer(ctx context.Context, session *Session, userID string) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, fmt.Sprintf("session.%s.offer", session.ID), map[string]string{
		"sessionId": session.ID,
		"userId":    userID,
	})
}

// MarkConnected transitions a participant to Connected once its data
// channel reports open, per §4.E.
func (m *Manager) MarkConnected(sessionID, userID string) error {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	p, ok := session.Participants[userID]
	if !ok {
		return errs.New(errs.NotFound, fmt.Sprintf("participant %q not in session %q", userID, sessionID))
	}
	p.ConnState = ConnConnected
	return nil
}

// LeaveSession removes userID from sessionID, promoting a new host if
// needed and closing the session if it becomes empty.
func (m *Manager) LeaveSession(ctx context.Context, sessionID, userID string) error {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}

	decision, err := m.guard.Check(ctx, userID, sessionID, "session", rbac.ActionSessionLeave)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return errs.New(errs.PermissionDenied, decision.Reason)
	}

	lock := m.lockFor(sessionID)
	lock.Lock()

	if _, ok := session.Participants[userID]; !ok {
		lock.Unlock()
		return nil
	}
	wasHost := session.HostUserID == userID
	delete(session.Participants, userID)
	metrics.ActiveParticipants.Dec()

	if len(session.Participants) == 0 {
		lock.Unlock()
		return m.CloseSession(ctx, sessionID)
	}

	if wasHost {
		newHost := earliestJoined(session.Participants)
		session.HostUserID = newHost
		if p, ok := session.Participants[newHost]; ok {
			p.IsHost = true
		}
		m.log.Info().Str("session_id", sessionID).Str("new_host", newHost).Msg("host promoted after leave")
	}

	m.touchLocked(ctx, session)
	lock.Unlock()

	m.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("participant left")
	return nil
}

// earliestJoined returns the userID with the earliest JoinedAt,
// breaking ties lexicographically (§3 invariant).
func earliestJoined(participants map[string]*Participant) string {
	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := participants[ids[i]], participants[ids[j]]
		if pi.JoinedAt.Equal(pj.JoinedAt) {
			return ids[i] < ids[j]
		}
		return pi.JoinedAt.Before(pj.JoinedAt)
	})
	return ids[0]
}

// CloseSession tears down sessionID. Idempotent.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if session.Status == StatusClosed {
		m.mu.Unlock()
		return nil
	}
	session.Status = StatusClosed
	session.LastActivity = time.Now()
	delete(m.sessions, sessionID)
	delete(m.locks, sessionID)
	m.mu.Unlock()

	metrics.ActiveSessions.Dec()
	if m.store != nil {
		_ = m.store.SaveSnapshot(ctx, session.snapshot())
	}
	if m.bus != nil {
		_ = m.bus.Publish(ctx, TopicSessionClosed, session.snapshot())
	}
	m.log.Info().Str("session_id", sessionID).Msg("session closed")
	return nil
}

// GetSession returns the live Session by id.
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("session %q not found", sessionID))
	}
	return session, nil
}

// RebuildFromSnapshot installs a previously persisted Snapshot as a
// live Session (§4.G restore). Participants come back Disconnected
// regardless of their persisted connection state; they reach
// Connected again only by rejoining through JoinSession. Idempotent:
// restoring a session id that is already live is a no-op — the live
// session is returned unchanged rather than overwritten, since the
// snapshot could be stale relative to activity the live session has
// already seen.
func (m *Manager) RebuildFromSnapshot(snap Snapshot) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[snap.ID]; ok {
		m.log.Info().Str("session_id", snap.ID).Msg("restore skipped: session already live")
		return existing
	}

	restored := &Session{
		ID:           snap.ID,
		Config:       snap.Config,
		HostUserID:   snap.Config.HostUserID,
		Participants: make(map[string]*Participant, len(snap.Participants)),
		Tasks:        snap.Tasks,
		OpenVetoes:   make(map[string]openVeto, len(snap.OpenVetoIDs)),
		Handshakes:   snap.HandshakeIDs,
		Status:       snap.Status,
		CreatedAt:    snap.CreatedAt,
		LastActivity: snap.LastActivity,
	}
	if restored.Tasks == nil {
		restored.Tasks = make(map[string]*Task)
	}
	if restored.Handshakes == nil {
		restored.Handshakes = make(map[string]string)
	}
	for userID, p := range snap.Participants {
		reconnect := *p
		reconnect.ConnState = ConnDisconnected
		restored.Participants[userID] = &reconnect
	}
	for taskID, votingSessionID := range snap.OpenVetoIDs {
		restored.OpenVetoes[taskID] = openVeto{votingSessionID: votingSessionID}
	}

	m.sessions[snap.ID] = restored
	m.log.Info().Str("session_id", snap.ID).Msg("session rebuilt from snapshot")
	return restored
}

// AddTask inserts task and broadcasts Task(action=added).
func (m *Manager) AddTask(ctx context.Context, sessionID string, task Task) error {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	lock := m.lockFor(sessionID)
	lock.Lock()
	session.Tasks[task.ID] = &task
	m.touchLocked(ctx, session)
	lock.Unlock()

	m.broadcast(ctx, sessionID, Message{Type: MsgTask, SessionID: sessionID, Payload: TaskPayload{Action: TaskAdded, Task: task}, Timestamp: time.Now()})
	return nil
}

// touchLocked bumps lastActivity and triggers a snapshot. Caller must
// hold the session's lock.
func (m *Manager) touchLocked(ctx context.Context, session *Session) {
	session.LastActivity = time.Now()
	if m.store != nil {
		_ = m.store.SaveSnapshot(ctx, session.snapshot())
	}
}

func (m *Manager) touchAndSnapshot(ctx context.Context, session *Session) {
	lock := m.lockFor(session.ID)
	lock.Lock()
	defer lock.Unlock()
	m.touchLocked(ctx, session)
}

// broadcast is a placeholder fan-out point: in a full deployment this
// forwards to every Open data channel via the signaling server. Here
// it only publishes on the shared bus, which is sufficient for
// in-process subscribers (tests, the persistence restore manager).
func (m *Manager) broadcast(ctx context.Context, sessionID string, msg Message) {
	if m.bus != nil {
		_ = m.bus.Publish(ctx, fmt.Sprintf("session.%s.message", sessionID), msg)
	}
}
