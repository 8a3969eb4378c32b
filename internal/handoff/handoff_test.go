package handoff

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

func TestInitiate_RequiresFields(t *testing.T) {
	m := newTestManager()
	result := m.Initiate(context.Background(), Request{Source: "a1"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestCompleteByTarget_Succeeds(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	initResult := m.Initiate(ctx, Request{Source: "a1", Target: "a2", TaskID: "t1"})
	require.True(t, initResult.Success)

	result, err := m.Complete(ctx, initResult.HandoffID, "a2")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, StateCompleted, result.Record.State)
}

func TestComplete_WrongAgentRejected(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	initResult := m.Initiate(ctx, Request{Source: "a1", Target: "a2", TaskID: "t1"})

	_, err := m.Complete(ctx, initResult.HandoffID, "a3")
	require.Error(t, err)
}

func TestComplete_Idempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	initResult := m.Initiate(ctx, Request{Source: "a1", Target: "a2", TaskID: "t1"})

	first, err := m.Complete(ctx, initResult.HandoffID, "a2")
	require.NoError(t, err)

	second, err := m.Complete(ctx, initResult.HandoffID, "a2")
	require.NoError(t, err)

	assert.Equal(t, first.Record.ResolvedAt, second.Record.ResolvedAt)
}

func TestCancel_OnlyFromProposed(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	initResult := m.Initiate(ctx, Request{Source: "a1", Target: "a2", TaskID: "t1"})
	_, err := m.Complete(ctx, initResult.HandoffID, "a2")
	require.NoError(t, err)

	_, err = m.Cancel(ctx, initResult.HandoffID)
	require.Error(t, err)
}

func TestCancel_FromProposed_Succeeds(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	initResult := m.Initiate(ctx, Request{Source: "a1", Target: "a2", TaskID: "t1"})

	result, err := m.Cancel(ctx, initResult.HandoffID)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, result.Record.State)
}
