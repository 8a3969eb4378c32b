package rbac

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard() *StaticGuard {
	return NewStaticGuard(DefaultRoles(), map[string]string{
		"alice": "host",
		"bob":   "member",
	}, nil, zerolog.Nop())
}

func TestStaticGuard_Check(t *testing.T) {
	g := newTestGuard()
	ctx := context.Background()

	tests := []struct {
		name     string
		userID   string
		action   string
		expected bool
	}{
		{name: "host can create session", userID: "alice", action: ActionSessionCreate, expected: true},
		{name: "member cannot create session", userID: "bob", action: ActionSessionCreate, expected: false},
		{name: "member can join", userID: "bob", action: ActionSessionJoin, expected: true},
		{name: "member can veto", userID: "bob", action: ActionConsensusVeto, expected: true},
		{name: "unknown user gets default role", userID: "carol", action: ActionSessionJoin, expected: true},
		{name: "unknown user denied privileged action", userID: "carol", action: ActionSessionCreate, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := g.Check(ctx, tt.userID, "session-1", "session", tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, decision.Allowed)
		})
	}
}

func TestStaticGuard_SetRole(t *testing.T) {
	g := newTestGuard()
	ctx := context.Background()

	decision, err := g.Check(ctx, "dave", "session-1", "session", ActionSessionCreate)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	g.SetRole("dave", "admin")

	decision, err = g.Check(ctx, "dave", "session-1", "session", ActionSessionCreate)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
