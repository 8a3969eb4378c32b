package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/swarmfabric/internal/rbac"
)

var errClosedConn = errors.New("fakeConn: connection closed")

// fakeConn is an in-memory Conn for tests: inbound is a scripted queue,
// outbound is captured for assertions.
type fakeConn struct {
	mu       sync.Mutex
	inbound  []Message
	outbound []Message
	closed   bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.outbound = append(f.outbound, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) ReadJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Block until a frame is queued or the connection is closed, as a
	// real socket does while the peer is connected but silent.
	for len(f.inbound) == 0 {
		if f.closed {
			return errClosedConn
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		f.mu.Lock()
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	raw, _ := json.Marshal(msg)
	return json.Unmarshal(raw, v)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) push(msg Message) {
	f.mu.Lock()
	f.inbound = append(f.inbound, msg)
	f.mu.Unlock()
}

func (f *fakeConn) outboundSnapshot() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.outbound))
	copy(out, f.outbound)
	return out
}

type alwaysAllow struct{}

func (alwaysAllow) Check(ctx context.Context, userID, resourceID, resourceType, action string) (rbac.Decision, error) {
	return rbac.Decision{Allowed: true, Reason: "test"}, nil
}

func testValidator(ctx context.Context, token string) (string, error) {
	return "user:" + token, nil
}

func TestServer_EstablishSendsJoinSuccess(t *testing.T) {
	conn := &fakeConn{}
	conn.push(Message{Type: MessageJoin, SessionID: "s1", ParticipantID: "p1", AuthToken: "tok"})
	conn.push(Message{Type: MessageLeave})

	srv := NewServer(DefaultConfig(), alwaysAllow{}, testValidator, zerolog.Nop())
	srv.HandleConn(context.Background(), conn)

	out := conn.outboundSnapshot()
	require.NotEmpty(t, out)
	assert.Equal(t, MessageJoin, out[0].Type)
}

func TestServer_RejectsSecondJoinWithSameParticipantID(t *testing.T) {
	srv := NewServer(DefaultConfig(), alwaysAllow{}, testValidator, zerolog.Nop())

	conn1 := &fakeConn{}
	conn1.push(Message{Type: MessageJoin, SessionID: "s1", ParticipantID: "p1", AuthToken: "tok"})

	done := make(chan struct{})
	go func() {
		srv.HandleConn(context.Background(), conn1)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	conn2 := &fakeConn{}
	conn2.push(Message{Type: MessageJoin, SessionID: "s1", ParticipantID: "p1", AuthToken: "tok2"})
	srv.HandleConn(context.Background(), conn2)

	out2 := conn2.outboundSnapshot()
	require.NotEmpty(t, out2)
	assert.Equal(t, MessageError, out2[0].Type)

	conn1.push(Message{Type: MessageLeave})
	<-done
}
