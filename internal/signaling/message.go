package signaling

import "time"

// MessageType enumerates the SignalingMessage variants of §3's data
// model.
type MessageType string

const (
	MessageJoin         MessageType = "Join"
	MessageLeave        MessageType = "Leave"
	MessageSdpOffer     MessageType = "SdpOffer"
	MessageSdpAnswer    MessageType = "SdpAnswer"
	MessageIceCandidate MessageType = "IceCandidate"
	MessageHeartbeat    MessageType = "Heartbeat"
	MessageError        MessageType = "Error"
)

// Message is the wire envelope for every signaling exchange.
// Grounded on cmd/api/websocket.go's Message{Type, Timestamp, Data},
// generalized with From/To/SessionID routing fields and an
// AuthToken carried only on the opening Join frame.
type Message struct {
	Type          MessageType `json:"type"`
	From          string      `json:"from,omitempty"`
	To            string      `json:"to,omitempty"`
	SessionID     string      `json:"sessionId"`
	ParticipantID string      `json:"participantId,omitempty"`
	AuthToken     string      `json:"authToken,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	TimestampMS   int64       `json:"timestampMs"`
	Error         string      `json:"error,omitempty"`
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
