// Package consensus implements the session fabric's voting engine: a
// single-round, multi-algorithm tally mechanism used for veto
// requests, delegation auctions, and general group decisions. It is
// grounded on internal/orchestrator/consensus.go's ConsensusManager —
// the session registry, mutex discipline, and UUID-keyed map are
// carried over, but the Delphi round machinery is replaced with the
// spec's single-round tally (see tally.go). Delphi and Contract Net
// survive as supplemental algorithms in delphi.go and contractnet.go.
package consensus

import (
	"time"
)

// Algorithm selects how CloseSession resolves a VotingSession.
type Algorithm string

const (
	SimpleMajority      Algorithm = "simple_majority"
	WeightedMajority    Algorithm = "weighted_majority"
	Supermajority       Algorithm = "supermajority"
	ConsensusThreshold  Algorithm = "consensus_threshold"
	// Supplemental algorithms retained from the teacher's Delphi and
	// Contract Net protocols (see delphi.go, contractnet.go). They are
	// not invoked by CloseSession; DelphiCoordinator and
	// ContractNetCoordinator run them as separate protocols.
	ConsensusDelphi      Algorithm = "delphi"
	ConsensusContractNet Algorithm = "contract_net"
)

// DefaultThreshold is used by Supermajority and ConsensusThreshold
// when the caller does not supply one.
const DefaultThreshold = 0.67

// SessionStatus is the lifecycle state of a VotingSession.
type SessionStatus string

const (
	StatusOpen     SessionStatus = "Open"
	StatusClosed   SessionStatus = "Closed"
	StatusResolved SessionStatus = "Resolved"
)

// Option is one candidate outcome of a VotingSession.
type Option struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// Vote records one voter's choice. At most one Vote per voter per
// session; enforced by Manager.CastVote.
type Vote struct {
	VoterID   string    `json:"voterId"`
	OptionID  string    `json:"optionId"`
	Weight    float64   `json:"weight"`
	Rationale string    `json:"rationale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VotingSession is a single open-then-closed round of voting over a
// fixed option list.
type VotingSession struct {
	ID         string        `json:"id"`
	Topic      string        `json:"topic"`
	Options    []Option      `json:"options"`
	Votes      []Vote        `json:"votes"`
	Status     SessionStatus `json:"status"`
	Quorum     int           `json:"quorum,omitempty"`
	Result     *ConsensusResult `json:"result,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ClosedAt   *time.Time    `json:"closedAt,omitempty"`
}

// ConsensusResult is the outcome computed when a VotingSession closes.
type ConsensusResult struct {
	SessionID        string             `json:"sessionId"`
	WinningOption     *string            `json:"winningOption"`
	Confidence        float64            `json:"confidence"`
	Tally             map[string]float64 `json:"tally"`
	ConsensusReached  bool               `json:"consensusReached"`
	Method            Algorithm          `json:"method"`
	Detail            string             `json:"detail"`
}

// VoterAttributes is the pure input to DeriveWeight. Expertise is a
// set of domain tags the voter claims; Reliability is a historical
// track-record score in [0,1], optional (zero means "unknown").
type VoterAttributes struct {
	Expertise   []string
	Reliability float64
}

// Voter is a registered participant in consensus; its Weight is
// derived once at registration time via DeriveWeight and reused for
// every vote it casts across sessions.
type Voter struct {
	ID         string
	Attributes VoterAttributes
	Weight     float64
}

// DeriveWeight is a deterministic, pure function of voter attributes:
// identical inputs yield identical weights across processes. Base
// weight is max(1, len(expertise)/2); a nonzero reliability score
// scales it further, capped so a single voter cannot dominate a tally
// by reliability alone.
func DeriveWeight(attrs VoterAttributes) float64 {
	base := float64(len(attrs.Expertise)) / 2.0
	if base < 1 {
		base = 1
	}
	if attrs.Reliability <= 0 {
		return base
	}
	scale := attrs.Reliability
	if scale > 1 {
		scale = 1
	}
	// Reliability only ever scales weight up to 1.5x base, never down
	// below base, so an untrusted voter is never worth less than an
	// unrated one.
	return base * (1 + 0.5*scale)
}
