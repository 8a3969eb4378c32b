package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
)

// HandleMessage dispatches an inbound SessionMessage by type, per
// §4.E's table. It is the single entry point for anything arriving
// over an established peer data channel (in this module, anything
// published to a session's message topic by the signaling layer or a
// remote peer over NATS).
func (m *Manager) HandleMessage(ctx context.Context, sessionID string, msg Message) error {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}

	lock := m.lockFor(sessionID)

	switch msg.Type {
	case MsgTask:
		return m.handleTaskMessage(ctx, session, lock, msg)
	case MsgVeto:
		return m.handleVetoMessage(session, lock, msg)
	case MsgA2A:
		return m.handleA2AMessage(ctx, session, lock, msg)
	case MsgState:
		return m.handleStateMessage(session, lock, msg)
	case MsgHandoff:
		return m.handleHandoffMessage(ctx, msg)
	case MsgHeartbeat:
		lock.Lock()
		m.touchLocked(ctx, session)
		lock.Unlock()
		return nil
	default:
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown session message type %q", msg.Type))
	}
}

func (m *Manager) handleTaskMessage(ctx context.Context, session *Session, lock sync.Locker, msg Message) error {
	payload, ok := msg.Payload.(TaskPayload)
	if !ok {
		return errs.New(errs.InvalidArgument, "Task message payload malformed")
	}

	lock.Lock()
	defer lock.Unlock()

	switch payload.Action {
	case TaskAdded, TaskUpdated:
		t := payload.Task
		session.Tasks[t.ID] = &t
	case TaskRemoved:
		delete(session.Tasks, payload.Task.ID)
	case TaskCompleted:
		if t, ok := session.Tasks[payload.Task.ID]; ok {
			t.Completed = true
		}
		if m.bus != nil {
			_ = m.bus.Publish(ctx, TopicTaskCompleted, payload.Task)
		}
	default:
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown task action %q", payload.Action))
	}
	m.touchLocked(ctx, session)
	return nil
}

// handleVetoMessage accepts an inbound Veto message and returns nil
// without acting on it: a task that already has an open veto is
// skipped, and for any other task no veto is opened either. A veto
// starts only through RequestVeto.
func (m *Manager) handleVetoMessage(session *Session, lock sync.Locker, msg Message) error {
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	taskID, _ := payload["taskId"].(string)
	if taskID == "" {
		return nil
	}

	lock.Lock()
	defer lock.Unlock()
	if _, open := session.OpenVetoes[taskID]; open {
		return nil // already-handled idempotence
	}
	return nil
}

func (m *Manager) handleA2AMessage(ctx context.Context, session *Session, lock sync.Locker, msg Message) error {
	lock.Lock()
	m.touchLocked(ctx, session)
	lock.Unlock()
	// An inbound A2A message only refreshes lastActivity; it is not
	// matched against handshake state, which InitiateA2AHandshake and
	// handoff.Manager own.
	return nil
}

// handleStateMessage: full sync replaces status and lastActivity;
// incremental merges lastActivity and task-map deltas. Conflicts on
// task id resolve last-writer-wins by message timestamp, ties broken
// by lexicographic sender id.
func (m *Manager) handleStateMessage(session *Session, lock sync.Locker, msg Message) error {
	payload, ok := msg.Payload.(StatePayload)
	if !ok {
		return errs.New(errs.InvalidArgument, "State message payload malformed")
	}

	lock.Lock()
	defer lock.Unlock()

	if payload.Full {
		if payload.Status != "" {
			session.Status = payload.Status
		}
		session.LastActivity = payload.LastActivity
		return nil
	}

	if payload.LastActivity.After(session.LastActivity) {
		session.LastActivity = payload.LastActivity
	}
	// Every delta in one State message shares msg.Timestamp, so
	// last-writer-wins collapses to: apply the batch only if it is not
	// older than the last batch already applied to this session, ties
	// broken by lexicographically smaller sender id winning.
	incomingWins := msg.Timestamp.After(session.lastStateWriteAt) ||
		(msg.Timestamp.Equal(session.lastStateWriteAt) && msg.From <= session.lastStateWriter)
	if incomingWins {
		for id, incoming := range payload.TaskDeltas {
			session.Tasks[id] = incoming
		}
		session.lastStateWriteAt = msg.Timestamp
		session.lastStateWriter = msg.From
	}
	return nil
}

func (m *Manager) handleHandoffMessage(ctx context.Context, msg Message) error {
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		return errs.New(errs.InvalidArgument, "Handoff message payload malformed")
	}
	action, _ := payload["action"].(string)
	handoffID, _ := payload["handoffId"].(string)

	switch action {
	case "initiate":
		source, _ := payload["source"].(string)
		target, _ := payload["target"].(string)
		taskID, _ := payload["taskId"].(string)
		protocolVersion, _ := payload["protocolVersion"].(string)
		handoffCtx, _ := payload["context"].(map[string]interface{})
		result := m.handoffMgr.Initiate(ctx, handoff.Request{
			Source:              source,
			Target:              target,
			TaskID:              taskID,
			Context:             handoffCtx,
			ProtocolVersion:     protocolVersion,
			CapabilitiesOffered: stringSlice(payload["capabilitiesOffered"]),
		})
		if !result.Success {
			return errs.New(errs.Internal, result.Error)
		}
		return nil
	case "complete":
		acceptingAgentID, _ := payload["acceptingAgentId"].(string)
		_, err := m.handoffMgr.Complete(ctx, handoffID, acceptingAgentID)
		return err
	case "cancel":
		_, err := m.handoffMgr.Cancel(ctx, handoffID)
		return err
	default:
		metrics.RecordHandoff("message_ignored")
		return nil
	}
}

// stringSlice best-effort converts a decoded JSON value (typically
// []interface{} after map[string]interface{} unmarshaling) into a
// []string, skipping non-string elements.
func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
