package consensus

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
)

// Supplemental algorithm retained from the teacher's iterative expert
// consensus protocol (internal/orchestrator/consensus.go's
// StartDelphiConsensus/SubmitDelphiResponse/completeDelphiRound). Not
// invoked by Manager.CloseSession; the swarm delegate's richer bidding
// path may reach for it when a single-round tally is too coarse for a
// numeric estimation task (e.g. estimating task cost or risk).

// DelphiRound is one iteration of a DelphiSession.
type DelphiRound struct {
	Number      int                    `json:"number"`
	Responses   map[string]DelphiReply `json:"responses"`
	Statistics  *DelphiStatistics      `json:"statistics,omitempty"`
	Feedback    string                 `json:"feedback,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
}

// DelphiReply is one agent's numeric estimate for a round.
type DelphiReply struct {
	AgentID    string    `json:"agentId"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DelphiStatistics summarizes agreement within a round.
type DelphiStatistics struct {
	Mean        float64 `json:"mean"`
	Median      float64 `json:"median"`
	StdDev      float64 `json:"stdDev"`
	Consensus   float64 `json:"consensus"`
	Convergence bool    `json:"convergence"`
}

// DelphiSession tracks an iterative estimation across rounds.
type DelphiSession struct {
	ID           string         `json:"id"`
	Question     string         `json:"question"`
	Participants []string       `json:"participants"`
	Rounds       []*DelphiRound `json:"rounds"`
	MaxRounds    int            `json:"maxRounds"`
	Threshold    float64        `json:"threshold"`
	Done         bool           `json:"done"`
	Result       *DelphiResult  `json:"result,omitempty"`
	mu           sync.Mutex
}

// DelphiResult is the final numeric estimate once a DelphiSession
// converges or exhausts its round budget.
type DelphiResult struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	Agreement  float64 `json:"agreement"`
	Rounds     int     `json:"rounds"`
}

// DelphiCoordinator runs DelphiSessions, publishing round requests on
// the shared bus rather than the teacher's MessageBus.Send, so any
// subscriber (a local agent, a remote one over NATS) can answer.
type DelphiCoordinator struct {
	bus      eventbus.Bus
	mu       sync.Mutex
	sessions map[string]*DelphiSession
}

func NewDelphiCoordinator(bus eventbus.Bus) *DelphiCoordinator {
	return &DelphiCoordinator{bus: bus, sessions: make(map[string]*DelphiSession)}
}

// Start creates a DelphiSession and publishes the first round request.
func (c *DelphiCoordinator) Start(ctx context.Context, question string, participants []string, maxRounds int, threshold float64) (*DelphiSession, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("delphi: no participants")
	}
	if maxRounds <= 0 {
		maxRounds = 5
	}
	if threshold <= 0 {
		threshold = 0.8
	}

	session := &DelphiSession{
		ID:           uuid.NewString(),
		Question:     question,
		Participants: participants,
		MaxRounds:    maxRounds,
		Threshold:    threshold,
	}

	c.mu.Lock()
	c.sessions[session.ID] = session
	c.mu.Unlock()

	c.publishRound(ctx, session, &DelphiRound{Number: 1, Responses: map[string]DelphiReply{}, StartedAt: time.Now()})
	return session, nil
}

func (c *DelphiCoordinator) publishRound(ctx context.Context, session *DelphiSession, round *DelphiRound) {
	session.mu.Lock()
	session.Rounds = append(session.Rounds, round)
	session.mu.Unlock()

	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, fmt.Sprintf("consensus.delphi.%s.round", session.ID), map[string]interface{}{
		"sessionId": session.ID,
		"round":     round.Number,
		"question":  session.Question,
		"feedback":  round.Feedback,
	})
}

// SubmitReply records an agent's answer for the current round and
// completes the round once every participant has replied.
func (c *DelphiCoordinator) SubmitReply(ctx context.Context, sessionID, agentID string, value, confidence float64, reasoning string) error {
	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("delphi: session %q not found", sessionID)
	}

	session.mu.Lock()
	if session.Done || len(session.Rounds) == 0 {
		session.mu.Unlock()
		return fmt.Errorf("delphi: session %q not accepting replies", sessionID)
	}
	current := session.Rounds[len(session.Rounds)-1]
	current.Responses[agentID] = DelphiReply{AgentID: agentID, Value: value, Confidence: confidence, Reasoning: reasoning, Timestamp: time.Now()}
	complete := len(current.Responses) >= len(session.Participants)
	session.mu.Unlock()

	if complete {
		c.completeRound(ctx, session, current)
	}
	return nil
}

func (c *DelphiCoordinator) completeRound(ctx context.Context, session *DelphiSession, round *DelphiRound) {
	now := time.Now()
	stats := computeDelphiStatistics(round)

	session.mu.Lock()
	round.CompletedAt = &now
	round.Statistics = stats
	roundNum := round.Number
	maxRounds := session.MaxRounds
	threshold := session.Threshold
	session.mu.Unlock()

	if stats.Consensus >= threshold || roundNum >= maxRounds {
		session.mu.Lock()
		session.Done = true
		session.Result = &DelphiResult{
			Value:      stats.Mean,
			Confidence: averageConfidence(round),
			Agreement:  stats.Consensus,
			Rounds:     roundNum,
		}
		session.mu.Unlock()
		return
	}

	feedback := fmt.Sprintf("previous round: mean=%.2f median=%.2f stddev=%.2f consensus=%.0f%%", stats.Mean, stats.Median, stats.StdDev, stats.Consensus*100)
	c.publishRound(ctx, session, &DelphiRound{Number: roundNum + 1, Responses: map[string]DelphiReply{}, StartedAt: time.Now(), Feedback: feedback})
}

func computeDelphiStatistics(round *DelphiRound) *DelphiStatistics {
	values := make([]float64, 0, len(round.Responses))
	for _, r := range round.Responses {
		values = append(values, r.Value)
	}
	if len(values) == 0 {
		return &DelphiStatistics{}
	}
	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var median float64
	if len(values)%2 == 0 {
		median = (values[len(values)/2-1] + values[len(values)/2]) / 2
	} else {
		median = values[len(values)/2]
	}

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	stdDev := math.Sqrt(variance / float64(len(values)))

	consensus := 1.0
	if mean != 0 {
		consensus = math.Max(0, 1.0-stdDev/math.Abs(mean))
	} else if stdDev != 0 {
		consensus = 0
	}

	return &DelphiStatistics{Mean: mean, Median: median, StdDev: stdDev, Consensus: consensus, Convergence: consensus >= 0.8}
}

func averageConfidence(round *DelphiRound) float64 {
	if len(round.Responses) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range round.Responses {
		total += r.Confidence
	}
	return total / float64(len(round.Responses))
}
