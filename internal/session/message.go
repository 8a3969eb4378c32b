package session

import "time"

// MessageType enumerates the SessionMessage variants carried over the
// established peer data channel (§3).
type MessageType string

const (
	MsgTask     MessageType = "Task"
	MsgVeto     MessageType = "Veto"
	MsgA2A      MessageType = "A2A"
	MsgState    MessageType = "State"
	MsgHandoff  MessageType = "Handoff"
	MsgHeartbeat MessageType = "Heartbeat"
)

// TaskAction is the sub-type carried by a Task SessionMessage.
type TaskAction string

const (
	TaskAdded     TaskAction = "added"
	TaskUpdated   TaskAction = "updated"
	TaskRemoved   TaskAction = "removed"
	TaskCompleted TaskAction = "completed"
)

// Message is an inbound or outbound SessionMessage.
type Message struct {
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	To        string      `json:"to,omitempty"`
	SessionID string      `json:"sessionId"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskPayload is the Payload shape for MsgTask.
type TaskPayload struct {
	Action TaskAction `json:"action"`
	Task   Task       `json:"task"`
}

// StatePayload is the Payload shape for MsgState.
type StatePayload struct {
	Full         bool             `json:"full"`
	Status       Status           `json:"status,omitempty"`
	LastActivity time.Time        `json:"lastActivity,omitempty"`
	TaskDeltas   map[string]*Task `json:"taskDeltas,omitempty"`
}
