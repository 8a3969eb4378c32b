package session

import (
	"context"
	"sort"
	"time"

	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
)

// pairKey orders two agent ids so the same pair always maps to the
// same handshake slot regardless of call order.
func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

// InitiateA2AHandshake builds a HandshakeRecord between two agents
// already present in sessionID and forwards it through the handoff
// manager (§4.C), broadcasting the request on the session's data
// channels. protocolVersion and capabilitiesOffered populate the
// HandshakeRecord fields §3 requires beyond a plain task handoff.
func (m *Manager) InitiateA2AHandshake(ctx context.Context, sessionID, sourceAgentID, targetAgentID, taskID, protocolVersion string, capabilitiesOffered []string, handshakeCtx map[string]interface{}) (handoff.Result, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return handoff.Result{}, err
	}

	if !session.Config.A2AEnabled {
		return handoff.Result{}, errs.New(errs.InvalidState, "A2A handshakes are not enabled for this session")
	}

	lock := m.lockFor(sessionID)
	lock.Lock()
	if !hasAgent(session, sourceAgentID) || !hasAgent(session, targetAgentID) {
		lock.Unlock()
		return handoff.Result{}, errs.New(errs.InvalidArgument, "both agents must be members of the session")
	}
	lock.Unlock()

	result := m.handoffMgr.Initiate(ctx, handoff.Request{
		Source:              sourceAgentID,
		Target:              targetAgentID,
		TaskID:              taskID,
		Context:             handshakeCtx,
		ProtocolVersion:     protocolVersion,
		CapabilitiesOffered: capabilitiesOffered,
	})
	if !result.Success {
		return result, errs.New(errs.Internal, result.Error)
	}

	lock.Lock()
	session.Handshakes[pairKey(sourceAgentID, targetAgentID)] = result.HandoffID
	m.touchLocked(ctx, session)
	lock.Unlock()

	m.broadcast(ctx, sessionID, Message{
		Type:      MsgA2A,
		From:      sourceAgentID,
		To:        targetAgentID,
		SessionID: sessionID,
		Payload:   map[string]string{"handshakeId": result.HandoffID, "phase": "request"},
		Timestamp: time.Now(),
	})

	return result, nil
}

func hasAgent(session *Session, agentID string) bool {
	for _, p := range session.Participants {
		if p.AgentID == agentID {
			return true
		}
	}
	return false
}

func (m *Manager) handshakeFor(sessionID, agentA, agentB string) (string, bool) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return "", false
	}
	lock := m.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	id, ok := session.Handshakes[pairKey(agentA, agentB)]
	return id, ok
}
