// Package handoff implements the context-handoff state machine
// (§4.C): a source agent proposes handing off a task, the target
// accepts or the proposer cancels. Grounded on the map[uuid]*session
// plus sync.RWMutex registry shape of
// internal/orchestrator/hotswap.go's HotSwapCoordinator, generalized
// from agent hot-swap sessions to a lighter Proposed/Completed/
// Rejected/Canceled record, and on messagebus.go's request/reply
// pattern for the broadcast-on-initiate behavior.
package handoff

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

// TopicHandoffProposed is published when Initiate places a handoff in
// state Proposed.
const TopicHandoffProposed = "handoff.proposed"

// State is a HandshakeRecord's lifecycle state. Transitions are
// monotonic: Proposed -> {Accepted, Rejected, Completed, Canceled} -> terminal;
// Completed -> Completed is the only permitted repeat (idempotent).
type State string

const (
	StateProposed  State = "Proposed"
	StateAccepted  State = "Accepted"
	StateRejected  State = "Rejected"
	StateCompleted State = "Completed"
	StateCanceled  State = "Canceled"
)

// Record is a HandshakeRecord: one negotiated handoff of a task from
// source to target. ProtocolVersion and CapabilitiesOffered are the
// A2A-facing fields §3 requires on every HandshakeRecord; plain
// swarm-delegate handoffs (internal/swarm) leave them empty.
type Record struct {
	ID                  string                 `json:"id"`
	Source              string                 `json:"source"`
	Target              string                 `json:"target"`
	TaskID              string                 `json:"taskId"`
	Context             map[string]interface{} `json:"context"`
	Priority            int                    `json:"priority"`
	ProtocolVersion     string                 `json:"protocolVersion,omitempty"`
	CapabilitiesOffered []string               `json:"capabilitiesOffered,omitempty"`
	State               State                  `json:"state"`
	Error               string                 `json:"error,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	ResolvedAt          *time.Time             `json:"resolvedAt,omitempty"`
}

// Result is returned by Initiate/Complete/Cancel.
type Result struct {
	HandoffID string `json:"handoffId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Record    *Record `json:"record,omitempty"`
}

// Request is the input to Initiate.
type Request struct {
	Source              string
	Target              string
	TaskID              string
	Context             map[string]interface{}
	Priority            int
	ProtocolVersion     string
	CapabilitiesOffered []string
}

// Manager tracks in-flight handoffs. Grounded on HotSwapCoordinator's
// map[uuid.UUID]*SwapSession plus sync.RWMutex.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Record
	bus     eventbus.Bus
	log     zerolog.Logger
}

func NewManager(bus eventbus.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		records: make(map[string]*Record),
		bus:     bus,
		log:     log.With().Str("component", "handoff").Logger(),
	}
}

// Initiate places a new handoff in state Proposed and broadcasts an
// event on the shared bus. It is non-throwing: errors become
// {success:false, error} results rather than Go errors, per the
// spec's "function is non-throwing" convention used elsewhere (swarm
// delegate §4.F).
func (m *Manager) Initiate(ctx context.Context, req Request) Result {
	if req.Source == "" || req.Target == "" || req.TaskID == "" {
		return Result{Success: false, Error: "source, target, and taskId are required"}
	}

	record := &Record{
		ID:                  uuid.NewString(),
		Source:              req.Source,
		Target:              req.Target,
		TaskID:              req.TaskID,
		Context:             req.Context,
		Priority:            req.Priority,
		ProtocolVersion:     req.ProtocolVersion,
		CapabilitiesOffered: req.CapabilitiesOffered,
		State:               StateProposed,
		CreatedAt:           time.Now(),
	}

	m.mu.Lock()
	m.records[record.ID] = record
	m.mu.Unlock()

	m.log.Debug().Str("handoff_id", record.ID).Str("source", req.Source).Str("target", req.Target).Msg("handoff initiated")

	if m.bus != nil {
		_ = m.bus.Publish(ctx, TopicHandoffProposed, record)
	}

	return Result{HandoffID: record.ID, Success: true, Record: record}
}

// Complete transitions Proposed -> Completed iff acceptingAgentID ==
// target. A second Complete call on an already-completed handoff
// returns the cached result unchanged (idempotent).
func (m *Manager) Complete(ctx context.Context, handoffID, acceptingAgentID string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[handoffID]
	if !ok {
		return Result{}, errs.New(errs.NotFound, fmt.Sprintf("handoff %q not found", handoffID))
	}

	if record.State == StateCompleted {
		return Result{HandoffID: record.ID, Success: true, Record: record}, nil
	}

	if record.State != StateProposed {
		return Result{}, errs.New(errs.InvalidState, fmt.Sprintf("handoff %q is not Proposed (state=%s)", handoffID, record.State))
	}

	if acceptingAgentID != record.Target {
		return Result{}, errs.New(errs.InvalidArgument, fmt.Sprintf("accepting agent %q is not the handoff target %q", acceptingAgentID, record.Target))
	}

	now := time.Now()
	record.State = StateCompleted
	record.ResolvedAt = &now

	metrics.RecordHandoff("completed")
	m.log.Info().Str("handoff_id", handoffID).Msg("handoff completed")

	return Result{HandoffID: record.ID, Success: true, Record: record}, nil
}

// Cancel may only be called from Proposed.
func (m *Manager) Cancel(ctx context.Context, handoffID string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[handoffID]
	if !ok {
		return Result{}, errs.New(errs.NotFound, fmt.Sprintf("handoff %q not found", handoffID))
	}
	if record.State != StateProposed {
		return Result{}, errs.New(errs.InvalidState, fmt.Sprintf("handoff %q cannot be canceled from state %s", handoffID, record.State))
	}

	now := time.Now()
	record.State = StateCanceled
	record.ResolvedAt = &now

	metrics.RecordHandoff("canceled")
	m.log.Info().Str("handoff_id", handoffID).Msg("handoff canceled")

	return Result{HandoffID: record.ID, Success: true, Record: record}, nil
}

// Get returns the current record for inspection.
func (m *Manager) Get(handoffID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[handoffID]
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("handoff %q not found", handoffID))
	}
	return record, nil
}
