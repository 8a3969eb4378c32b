package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/rbac"
)

// VetoResponse is the outcome of RequestVeto.
type VetoResponse struct {
	Accepted bool               `json:"accepted"`
	Tally    map[string]float64 `json:"tally"`
	Detail   string             `json:"detail"`
}

// RequestVeto implements §4.E's veto algorithm: a short-lived
// SimpleMajority VotingSession over {accept-veto, reject-veto},
// quorum = ceil(participantCount/2), every non-requester participant
// voting per m.vetoPolicy.
func (m *Manager) RequestVeto(ctx context.Context, sessionID, taskID, requesterUserID, reason string) (VetoResponse, error) {
	session, err := m.GetSession(sessionID)
	if err != nil {
		return VetoResponse{}, err
	}

	if !session.Config.VetoEnabled {
		return VetoResponse{}, errs.New(errs.InvalidState, "vetoes are not enabled for this session")
	}

	decision, err := m.guard.Check(ctx, requesterUserID, sessionID, "session", rbac.ActionConsensusVeto)
	if err != nil {
		return VetoResponse{}, err
	}
	if !decision.Allowed {
		return VetoResponse{}, errs.New(errs.PermissionDenied, decision.Reason)
	}

	lock := m.lockFor(sessionID)
	lock.Lock()

	task, ok := session.Tasks[taskID]
	if !ok {
		lock.Unlock()
		return VetoResponse{}, errs.New(errs.NotFound, fmt.Sprintf("task %q not found in session %q", taskID, sessionID))
	}
	if _, open := session.OpenVetoes[taskID]; open {
		lock.Unlock()
		return VetoResponse{}, errs.New(errs.Conflict, fmt.Sprintf("task %q already has an open veto", taskID))
	}

	quorum := (len(session.Participants) + 1) / 2 // ceil(N/2)
	options := []consensus.Option{
		{ID: vetoAcceptOption, Label: "accept", Value: true},
		{ID: vetoRejectOption, Label: "reject", Value: false},
	}
	votingSessionID, err := m.consensusMgr.CreateSession(ctx, fmt.Sprintf("veto:%s", taskID), options, quorum)
	if err != nil {
		lock.Unlock()
		return VetoResponse{}, err
	}
	session.OpenVetoes[taskID] = openVeto{votingSessionID: votingSessionID, requesterID: requesterUserID}

	voters := make([]string, 0, len(session.Participants))
	for userID := range session.Participants {
		if userID == requesterUserID {
			continue
		}
		voters = append(voters, userID)
	}
	policy := m.vetoPolicy
	taskCopy := *task
	lock.Unlock()

	m.broadcast(ctx, sessionID, Message{
		Type:      MsgVeto,
		From:      requesterUserID,
		SessionID: sessionID,
		Payload:   map[string]interface{}{"taskId": taskID, "reason": reason, "requestedBy": requesterUserID},
		Timestamp: time.Now(),
	})

	// Clearing the open-veto mapping always happens, regardless of
	// outcome, per §5's "scoped release" cancellation rule.
	defer func() {
		lock.Lock()
		delete(session.OpenVetoes, taskID)
		lock.Unlock()
	}()

	for _, voterID := range voters {
		accept := policy(ctx, taskCopy, requesterUserID, voterID)
		optionID := vetoRejectOption
		if accept {
			optionID = vetoAcceptOption
		}
		if err := m.consensusMgr.CastVote(ctx, votingSessionID, voterID, optionID, ""); err != nil {
			return VetoResponse{}, err
		}
	}

	result, err := m.consensusMgr.CloseSession(ctx, votingSessionID, consensus.SimpleMajority, 0)
	if err != nil {
		return VetoResponse{}, err
	}

	accepted := result.ConsensusReached && result.WinningOption != nil && *result.WinningOption == vetoAcceptOption
	response := VetoResponse{Accepted: accepted, Tally: result.Tally, Detail: result.Detail}

	if accepted {
		lock.Lock()
		delete(session.Tasks, taskID)
		m.touchLocked(ctx, session)
		lock.Unlock()

		m.broadcast(ctx, sessionID, Message{
			Type:      MsgTask,
			SessionID: sessionID,
			Payload:   TaskPayload{Action: TaskRemoved, Task: taskCopy},
			Timestamp: time.Now(),
		})
		if m.bus != nil {
			_ = m.bus.Publish(ctx, TopicTaskVetoed, map[string]string{"taskId": taskID, "requestedBy": requesterUserID})
		}
	} else {
		response.Detail = "Veto rejected by consensus"
	}

	return response, nil
}
