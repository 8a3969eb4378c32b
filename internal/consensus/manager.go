package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
)

// TopicConsensusClosed is published whenever CloseSession computes a
// result, successful or not.
const TopicConsensusClosed = "consensus.session.closed"

// Manager coordinates VotingSessions. Its session registry and mutex
// discipline are carried over from internal/orchestrator/consensus.go's
// ConsensusManager, generalized from Delphi rounds to the spec's
// single-round tally.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*VotingSession
	voters   map[string]*Voter
	bus      eventbus.Bus
	log      zerolog.Logger
}

// NewManager builds a Manager publishing session-close events on bus.
func NewManager(bus eventbus.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*VotingSession),
		voters:   make(map[string]*Voter),
		bus:      bus,
		log:      log.With().Str("component", "consensus").Logger(),
	}
}

// CreateSession creates an Open VotingSession. Options must be
// non-empty with unique ids.
func (m *Manager) CreateSession(ctx context.Context, topic string, options []Option, quorum int) (string, error) {
	if len(options) == 0 {
		return "", errs.New(errs.InvalidArgument, "createSession: options must be non-empty")
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if _, dup := seen[o.ID]; dup {
			return "", errs.New(errs.InvalidArgument, fmt.Sprintf("createSession: duplicate option id %q", o.ID))
		}
		seen[o.ID] = struct{}{}
	}

	session := &VotingSession{
		ID:        uuid.NewString(),
		Topic:     topic,
		Options:   options,
		Status:    StatusOpen,
		Quorum:    quorum,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	metrics.VotingSessionsOpened.Inc()
	m.log.Debug().Str("session_id", session.ID).Str("topic", topic).Int("options", len(options)).Msg("voting session created")

	return session.ID, nil
}

// RegisterVoter registers a voter and derives its weight from
// attributes. Re-registration overwrites the prior entry.
func (m *Manager) RegisterVoter(voterID string, attrs VoterAttributes) *Voter {
	v := &Voter{ID: voterID, Attributes: attrs, Weight: DeriveWeight(attrs)}
	m.mu.Lock()
	m.voters[voterID] = v
	m.mu.Unlock()
	return v
}

// weightFor returns the registered weight for voterID, or 1 if the
// voter was never registered (unweighted default).
func (m *Manager) weightFor(voterID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.voters[voterID]; ok {
		return v.Weight
	}
	return 1
}

func (m *Manager) registeredTotals() (totalWeight float64, count int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.voters {
		totalWeight += v.Weight
		count++
	}
	return
}

// CastVote records voterID's vote for optionID in sessionID.
func (m *Manager) CastVote(ctx context.Context, sessionID, voterID, optionID, rationale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return errs.New(errs.NotFound, fmt.Sprintf("castVote: session %q not found", sessionID))
	}
	if session.Status != StatusOpen {
		return errs.New(errs.InvalidState, fmt.Sprintf("castVote: session %q is not Open", sessionID))
	}

	optionKnown := false
	for _, o := range session.Options {
		if o.ID == optionID {
			optionKnown = true
			break
		}
	}
	if !optionKnown {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("castVote: unknown option %q", optionID))
	}

	for _, v := range session.Votes {
		if v.VoterID == voterID {
			return errs.New(errs.Conflict, fmt.Sprintf("castVote: voter %q already voted in session %q", voterID, sessionID))
		}
	}

	weight := m.weightForLocked(voterID)
	session.Votes = append(session.Votes, Vote{
		VoterID:   voterID,
		OptionID:  optionID,
		Weight:    weight,
		Rationale: rationale,
		Timestamp: time.Now(),
	})

	return nil
}

func (m *Manager) weightForLocked(voterID string) float64 {
	if v, ok := m.voters[voterID]; ok {
		return v.Weight
	}
	return 1
}

// CloseSession computes and stores a ConsensusResult. Calling it again
// on an already-closed session returns the stored result unchanged
// (idempotent per spec).
func (m *Manager) CloseSession(ctx context.Context, sessionID string, algorithm Algorithm, threshold float64) (*ConsensusResult, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.NotFound, fmt.Sprintf("closeSession: session %q not found", sessionID))
	}

	if session.Status == StatusClosed {
		result := session.Result
		m.mu.Unlock()
		return result, nil
	}

	totalWeight, count := 0.0, 0
	for _, v := range m.voters {
		totalWeight += v.Weight
		count++
	}

	result := resolve(session, algorithm, threshold, totalWeight, count)
	now := time.Now()
	session.Status = StatusClosed
	session.ClosedAt = &now
	session.Result = result
	m.mu.Unlock()

	metrics.VotesCast.WithLabelValues(string(algorithm)).Add(float64(len(session.Votes)))
	metrics.ConsensusReached.WithLabelValues(string(algorithm), boolLabel(result.ConsensusReached)).Inc()
	metrics.RecordVotingResult(votingDecisionLabel(result))
	m.log.Info().
		Str("session_id", sessionID).
		Str("algorithm", string(algorithm)).
		Bool("consensus_reached", result.ConsensusReached).
		Msg("voting session closed")

	if m.bus != nil {
		_ = m.bus.Publish(ctx, TopicConsensusClosed, result)
	}

	return result, nil
}

// GetSession returns the current state of a session (for inspection
// by callers such as the swarm delegate and session manager).
func (m *Manager) GetSession(sessionID string) (*VotingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("getSession: session %q not found", sessionID))
	}
	return session, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// votingDecisionLabel reduces a ConsensusResult to the label
// RecordVotingResult tracks: the winning option when consensus was
// reached, or "no_consensus" otherwise.
func votingDecisionLabel(result *ConsensusResult) string {
	if !result.ConsensusReached || result.WinningOption == nil {
		return "no_consensus"
	}
	return *result.WinningOption
}
