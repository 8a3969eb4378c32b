package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/config"
	"github.com/ajitpratap0/swarmfabric/internal/swarm"
)

// rosterRuntime is the swarm.LocalRuntime the daemon wires into
// swarm.Delegate: it executes a task against one of the statically
// configured local roster agents (configs/agents.yaml), grounded on
// the teacher's pattern of treating the actual inference/execution
// engine as an injected collaborator rather than something the
// delegate constructs itself.
type rosterRuntime struct {
	agents *config.AgentConfig
	log    zerolog.Logger
}

func newRosterRuntime(agents *config.AgentConfig, log zerolog.Logger) *rosterRuntime {
	return &rosterRuntime{agents: agents, log: log.With().Str("component", "roster_runtime").Logger()}
}

// Execute implements swarm.LocalRuntime. There is no real inference
// backend wired in this daemon (that is a stated non-goal); it
// simulates the agent doing its work and records that it ran.
func (r *rosterRuntime) Execute(ctx context.Context, agentID string, task swarm.Task) error {
	agent, ok := r.agents.Agents[agentID]
	if !ok || !agent.Enabled {
		return fmt.Errorf("local agent %q is not enabled in the roster", agentID)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	r.log.Debug().
		Str("agent_id", agentID).
		Str("task_id", task.ID).
		Msg("local runtime executed task")
	return nil
}

// registeredAgents turns the static roster into swarm.Agent values for
// Delegate.RegisterAgent, preserving the config's capability labels.
func registeredAgents(agents *config.AgentConfig) []swarm.Agent {
	out := make([]swarm.Agent, 0, len(agents.Agents))
	for id, a := range agents.Agents {
		if !a.Enabled {
			continue
		}
		out = append(out, swarm.Agent{
			ID:           id,
			Capabilities: a.Capabilities,
			IsLocal:      a.IsLocal,
		})
	}
	return out
}
