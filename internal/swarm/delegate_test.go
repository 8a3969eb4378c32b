package swarm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
)

type stubRuntime struct {
	err error
}

func (s stubRuntime) Execute(ctx context.Context, agentID string, task Task) error {
	return s.err
}

func newTestDelegate(cfg Config, runtime LocalRuntime) *Delegate {
	bus := eventbus.NewMemBus(nil)
	consensusMgr := consensus.NewManager(bus, zerolog.Nop())
	handoffMgr := handoff.NewManager(bus, zerolog.Nop())
	return NewDelegate(cfg, runtime, consensusMgr, handoffMgr, zerolog.Nop())
}

func TestDelegateTask_LocalPathSucceedsWithinLatencyTarget(t *testing.T) {
	d := newTestDelegate(Config{LocalInferenceEnabled: true, LatencyTargetMS: 1000}, stubRuntime{})
	d.RegisterAgent(Agent{ID: "local-1", IsLocal: true})

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "write code"})

	assert.True(t, result.Success)
	assert.Equal(t, "local", result.Path)
	assert.Equal(t, "local-1", result.WinnerAgentID)
	assert.True(t, result.LatencyWithinTarget)
}

func TestDelegateTask_FallsBackToConsensusOnLocalFailure(t *testing.T) {
	d := newTestDelegate(Config{LocalInferenceEnabled: true, ConsensusVotingEnabled: true}, stubRuntime{err: errors.New("local runtime unavailable")})
	d.RegisterAgent(Agent{ID: "local-1", IsLocal: true})
	d.RegisterAgent(Agent{ID: "reviewer-1", Capabilities: []string{"review"}})

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "review the PR"})

	require.True(t, result.Success)
	assert.Equal(t, "consensus", result.Path)
	assert.Equal(t, "reviewer-1", result.WinnerAgentID)
	assert.NotEmpty(t, result.HandoffID)
}

// TestDelegateTask_WeightedTieLexicographicTieBreak mirrors the spec's
// S4 scenario: agents A and C both match the task description
// (weight 2), agent B does not (weight 1). WeightedMajority picks the
// lexicographically smallest of the tied leaders.
func TestDelegateTask_WeightedTieLexicographicTieBreak(t *testing.T) {
	d := newTestDelegate(Config{ConsensusVotingEnabled: true}, nil)
	d.RegisterAgent(Agent{ID: "A", Capabilities: []string{"code"}})
	d.RegisterAgent(Agent{ID: "B", Capabilities: []string{"design"}})
	d.RegisterAgent(Agent{ID: "C", Capabilities: []string{"code"}})

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "write code for the new feature"})

	require.True(t, result.Success)
	assert.Equal(t, "A", result.WinnerAgentID)
}

func TestDelegateTask_LocalDisabledGoesStraightToConsensus(t *testing.T) {
	d := newTestDelegate(Config{ConsensusVotingEnabled: true}, stubRuntime{})
	d.RegisterAgent(Agent{ID: "only-agent"})

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "anything"})

	require.True(t, result.Success)
	assert.Equal(t, "consensus", result.Path)
	assert.Equal(t, "only-agent", result.WinnerAgentID)
}

func TestDelegateTask_NoFallbackFailsCleanly(t *testing.T) {
	d := newTestDelegate(Config{LocalInferenceEnabled: true}, stubRuntime{err: errors.New("fail")})
	d.RegisterAgent(Agent{ID: "local-1", IsLocal: true})

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "anything"})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestDelegateTask_ResourceExhaustedWhenSemaphoreFull(t *testing.T) {
	d := newTestDelegate(Config{ConsensusVotingEnabled: true, MaxConcurrentDelegations: 1}, nil)
	d.RegisterAgent(Agent{ID: "agent-1"})

	d.sem <- struct{}{} // occupy the only slot directly, simulating an in-flight delegation

	result := d.DelegateTask(context.Background(), Task{ID: "t1", Description: "anything"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ResourceExhausted")
}
