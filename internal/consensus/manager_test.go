package consensus

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
)

func newTestManager() *Manager {
	return NewManager(eventbus.NewMemBus(nil), zerolog.Nop())
}

func vetoOptions() []Option {
	return []Option{
		{ID: "accept-veto", Label: "accept", Value: true},
		{ID: "reject-veto", Label: "reject", Value: false},
	}
}

func TestCreateSession_RejectsEmptyOrDuplicateOptions(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "veto", nil, 0)
	require.Error(t, err)

	_, err = m.CreateSession(ctx, "veto", []Option{}, 0)
	require.Error(t, err)

	_, err = m.CreateSession(ctx, "veto", []Option{{ID: "a"}, {ID: "a"}}, 0)
	require.Error(t, err)
}

func TestCastVote_Errors(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	sessionID, err := m.CreateSession(ctx, "veto", vetoOptions(), 0)
	require.NoError(t, err)

	err = m.CastVote(ctx, "missing-session", "u1", "accept-veto", "")
	require.Error(t, err)

	err = m.CastVote(ctx, sessionID, "u1", "not-an-option", "")
	require.Error(t, err)

	require.NoError(t, m.CastVote(ctx, sessionID, "u1", "accept-veto", ""))
	err = m.CastVote(ctx, sessionID, "u1", "reject-veto", "")
	require.Error(t, err)

	_, closeErr := m.CloseSession(ctx, sessionID, SimpleMajority, 0)
	require.NoError(t, closeErr)

	err = m.CastVote(ctx, sessionID, "u2", "accept-veto", "")
	require.Error(t, err)
}

// TestVetoScenario mirrors the spec's veto seed scenario: three
// participants, quorum = ceil(3/2) = 2, two accept votes out of three
// registered.
func TestVetoScenario_QuorumMetAcceptWins(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	sessionID, err := m.CreateSession(ctx, "veto:t1", vetoOptions(), 2)
	require.NoError(t, err)

	require.NoError(t, m.CastVote(ctx, sessionID, "u1", "accept-veto", ""))
	require.NoError(t, m.CastVote(ctx, sessionID, "u3", "accept-veto", ""))

	result, err := m.CloseSession(ctx, sessionID, SimpleMajority, 0)
	require.NoError(t, err)
	require.NotNil(t, result.WinningOption)
	assert.Equal(t, "accept-veto", *result.WinningOption)
	assert.True(t, result.ConsensusReached)
}

// TestVetoScenario_TieFailsConsensus: quorum met, but a 1-1 tie by
// count means SimpleMajority does not strictly exceed half of total
// votes counted so far (2 votes, needs >1).
func TestVetoScenario_TieFailsConsensus(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	sessionID, err := m.CreateSession(ctx, "veto:t1", vetoOptions(), 2)
	require.NoError(t, err)

	require.NoError(t, m.CastVote(ctx, sessionID, "u1", "accept-veto", ""))
	require.NoError(t, m.CastVote(ctx, sessionID, "u3", "reject-veto", ""))

	result, err := m.CloseSession(ctx, sessionID, SimpleMajority, 0)
	require.NoError(t, err)
	assert.False(t, result.ConsensusReached)
	require.NotNil(t, result.WinningOption)
	assert.Equal(t, "accept-veto", *result.WinningOption)
}

// TestDelegationWeightedTie mirrors the spec's swarm delegate
// scenario: A (weight 2) and C (weight 2) tie; lexicographically
// smallest id wins the option but consensus is not reached since the
// winning weight (2 of a total 5) is not strictly greater than half.
func TestDelegationWeightedTie(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	options := []Option{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	sessionID, err := m.CreateSession(ctx, "delegate:write code", options, 0)
	require.NoError(t, err)

	m.RegisterVoter("A", VoterAttributes{Expertise: []string{"code", "review", "test", "infra"}})
	m.RegisterVoter("B", VoterAttributes{})
	m.RegisterVoter("C", VoterAttributes{Expertise: []string{"code", "review", "test", "infra"}})

	require.NoError(t, m.CastVote(ctx, sessionID, "A", "A", ""))
	require.NoError(t, m.CastVote(ctx, sessionID, "B", "B", ""))
	require.NoError(t, m.CastVote(ctx, sessionID, "C", "C", ""))

	result, err := m.CloseSession(ctx, sessionID, WeightedMajority, 0)
	require.NoError(t, err)
	require.NotNil(t, result.WinningOption)
	assert.Equal(t, "A", *result.WinningOption)
	assert.False(t, result.ConsensusReached)
}

func TestCloseSession_Idempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	sessionID, err := m.CreateSession(ctx, "veto", vetoOptions(), 0)
	require.NoError(t, err)
	require.NoError(t, m.CastVote(ctx, sessionID, "u1", "accept-veto", ""))

	first, err := m.CloseSession(ctx, sessionID, SimpleMajority, 0)
	require.NoError(t, err)

	second, err := m.CloseSession(ctx, sessionID, WeightedMajority, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeriveWeight_Deterministic(t *testing.T) {
	attrs := VoterAttributes{Expertise: []string{"code", "test", "infra"}, Reliability: 0.8}
	w1 := DeriveWeight(attrs)
	w2 := DeriveWeight(attrs)
	assert.Equal(t, w1, w2)
	assert.Greater(t, w1, 1.0)
}

func TestDeriveWeight_MinimumOne(t *testing.T) {
	assert.Equal(t, 1.0, DeriveWeight(VoterAttributes{}))
}
