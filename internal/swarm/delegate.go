// Package swarm implements the swarm delegate (§4.F): local-first task
// delegation with a consensus fallback and a context handoff to the
// winner. Grounded on internal/orchestrator/hierarchy.go's
// DelegationPolicy enum (DelegationBestFit maps to this package's
// local path, DelegationAuction to its consensus/weighted-vote
// fallback) and on consensus.go's timeoutSem semaphore pattern for
// bounding in-flight work.
package swarm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
)

// Agent is a registered delegation target.
type Agent struct {
	ID           string
	Capabilities []string
	IsLocal      bool
}

// Task is the unit of work to delegate.
type Task struct {
	ID          string
	Description string
}

// LocalRuntime is the collaborator that executes a task on the local
// agent runtime. Grounded on the teacher's pattern of treating the
// actual execution engine as an injected, swappable collaborator
// (internal/orchestrator/orchestrator.go's agent registry).
type LocalRuntime interface {
	Execute(ctx context.Context, agentID string, task Task) error
}

// DelegationResult is the non-throwing outcome of DelegateTask: every
// failure mode becomes a structured result rather than a Go error,
// per §4.F.
type DelegationResult struct {
	Success             bool   `json:"success"`
	Path                string `json:"path"` // "local" or "consensus"
	WinnerAgentID       string `json:"winnerAgentId,omitempty"`
	LatencyMS           int64  `json:"latencyMs,omitempty"`
	LatencyWithinTarget bool   `json:"latencyWithinTarget,omitempty"`
	HandoffID           string `json:"handoffId,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Config tunes the delegate's behavior.
type Config struct {
	LocalInferenceEnabled    bool
	ConsensusVotingEnabled   bool
	LatencyTargetMS          int64
	MaxConcurrentDelegations int
}

// Delegate implements delegateTask. Its semaphore caps in-flight
// delegations at MaxConcurrentDelegations, mirroring
// ConsensusManager.timeoutSem in internal/orchestrator/consensus.go.
type Delegate struct {
	mu           sync.RWMutex
	agents       map[string]Agent
	cfg          Config
	runtime      LocalRuntime
	consensusMgr *consensus.Manager
	handoffMgr   *handoff.Manager
	sem          chan struct{}
	log          zerolog.Logger
}

func NewDelegate(cfg Config, runtime LocalRuntime, consensusMgr *consensus.Manager, handoffMgr *handoff.Manager, log zerolog.Logger) *Delegate {
	if cfg.MaxConcurrentDelegations <= 0 {
		cfg.MaxConcurrentDelegations = 10
	}
	return &Delegate{
		agents:       make(map[string]Agent),
		cfg:          cfg,
		runtime:      runtime,
		consensusMgr: consensusMgr,
		handoffMgr:   handoffMgr,
		sem:          make(chan struct{}, cfg.MaxConcurrentDelegations),
		log:          log.With().Str("component", "swarm").Logger(),
	}
}

// RegisterAgent adds or replaces an agent in the delegation pool.
func (d *Delegate) RegisterAgent(agent Agent) {
	d.mu.Lock()
	d.agents[agent.ID] = agent
	d.mu.Unlock()
	metrics.SetAgentStatus(agent.ID, true)
}

func (d *Delegate) snapshotAgents() []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, 0, len(d.agents))
	for _, a := range d.agents {
		out = append(out, a)
	}
	return out
}

// DelegateTask attempts local delegation first, then falls back to a
// WeightedMajority consensus vote, then performs a context handoff to
// the winner. Never exceeds MaxConcurrentDelegations in flight.
func (d *Delegate) DelegateTask(ctx context.Context, task Task) DelegationResult {
	start := time.Now()
	defer func() {
		metrics.RecordOrchestratorLatency(float64(time.Since(start).Milliseconds()))
	}()

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	default:
		return d.fail("", errs.New(errs.ResourceExhausted, "max concurrent delegations reached").Error())
	}

	agents := d.snapshotAgents()

	if d.cfg.LocalInferenceEnabled {
		if result, ok := d.tryLocal(ctx, agents, task); ok {
			return result
		}
	}

	if !d.cfg.ConsensusVotingEnabled {
		return d.fail("local", "local delegation failed and consensus voting is disabled")
	}

	return d.tryConsensus(ctx, agents, task)
}

func (d *Delegate) tryLocal(ctx context.Context, agents []Agent, task Task) (DelegationResult, bool) {
	var localAgent *Agent
	for i := range agents {
		if agents[i].IsLocal {
			localAgent = &agents[i]
			break
		}
	}
	if localAgent == nil || d.runtime == nil {
		return DelegationResult{}, false
	}

	start := time.Now()
	err := d.runtime.Execute(ctx, localAgent.ID, task)
	elapsed := time.Since(start)
	latencyMS := elapsed.Milliseconds()
	metrics.RecordAgentProcessing(localAgent.ID, float64(latencyMS))

	if err != nil {
		metrics.RecordDelegation("local", "failure")
		return DelegationResult{}, false
	}

	result := DelegationResult{
		Success:             true,
		Path:                "local",
		WinnerAgentID:       localAgent.ID,
		LatencyMS:           latencyMS,
		LatencyWithinTarget: d.cfg.LatencyTargetMS <= 0 || latencyMS <= d.cfg.LatencyTargetMS,
	}
	metrics.RecordDelegation("local", "success")
	d.log.Debug().Str("agent_id", localAgent.ID).Int64("latency_ms", latencyMS).Msg("local delegation succeeded")
	return result, true
}

// tryConsensus creates options = currently registered agents, each
// voting for itself with a capability-match heuristic weight (match =
// 2, else 1), closes with WeightedMajority, and hands off to the
// winner.
func (d *Delegate) tryConsensus(ctx context.Context, agents []Agent, task Task) DelegationResult {
	if len(agents) == 0 {
		return d.fail("consensus", "no registered agents for consensus fallback")
	}

	options := make([]consensus.Option, 0, len(agents))
	for _, a := range agents {
		options = append(options, consensus.Option{ID: a.ID, Label: a.ID, Value: a.ID})
	}

	sessionID, err := d.consensusMgr.CreateSession(ctx, "delegate:"+task.Description, options, 0)
	if err != nil {
		return d.fail("consensus", err.Error())
	}

	for _, a := range agents {
		weight := capabilityWeight(a.Capabilities, task.Description)
		d.consensusMgr.RegisterVoter(a.ID, consensus.VoterAttributes{Expertise: repeatToWeight(weight)})
		if err := d.consensusMgr.CastVote(ctx, sessionID, a.ID, a.ID, ""); err != nil {
			return d.fail("consensus", err.Error())
		}
		metrics.RecordAgentSignal(a.ID, "bid", float64(weight)/2.0)
	}

	result, err := d.consensusMgr.CloseSession(ctx, sessionID, consensus.WeightedMajority, 0)
	if err != nil {
		return d.fail("consensus", err.Error())
	}

	if result.WinningOption == nil {
		metrics.RecordDelegation("consensus", "no_winner")
		return d.fail("consensus", "no agent won the delegation vote")
	}

	winnerID := *result.WinningOption
	handoffResult := d.handoffMgr.Initiate(ctx, handoff.Request{
		Source: "swarm-delegate",
		Target: winnerID,
		TaskID: task.ID,
		Context: map[string]interface{}{"description": task.Description},
	})
	if !handoffResult.Success {
		metrics.RecordDelegation("consensus", "handoff_failed")
		return d.fail("consensus", handoffResult.Error)
	}

	metrics.RecordDelegation("consensus", "success")
	return DelegationResult{
		Success:       true,
		Path:          "consensus",
		WinnerAgentID: winnerID,
		HandoffID:     handoffResult.HandoffID,
	}
}

// capabilityWeight implements §4.F's heuristic: case-insensitive
// substring match on each capability against the task description;
// match = weight 2, else 1.
func capabilityWeight(capabilities []string, description string) int {
	lowerDesc := strings.ToLower(description)
	for _, capability := range capabilities {
		if capability == "" {
			continue
		}
		if strings.Contains(lowerDesc, strings.ToLower(capability)) {
			return 2
		}
	}
	return 1
}

// repeatToWeight converts an integer weight into an Expertise slice of
// that length so DeriveWeight(base=max(1,len/2)) reproduces the exact
// integer weight the heuristic calls for (weight 2 -> len 4 -> base
// 2; weight 1 -> len 2 -> base 1).
func repeatToWeight(weight int) []string {
	n := weight * 2
	out := make([]string, n)
	for i := range out {
		out[i] = "capability-match"
	}
	return out
}

func (d *Delegate) fail(path, reason string) DelegationResult {
	metrics.RecordDelegation(path, "failure")
	return DelegationResult{Success: false, Path: path, Error: reason}
}
