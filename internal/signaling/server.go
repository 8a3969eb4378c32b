package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
	"github.com/ajitpratap0/swarmfabric/internal/rbac"
)

// ErrAwaitJoinTimeout is returned by AwaitJoin when the target
// participant's socket does not reach Joined/Active before the
// deadline passes.
var ErrAwaitJoinTimeout = errs.New(errs.Timeout, "signaling: await join timed out")

// pollInterval is how often AwaitJoin re-checks room membership while
// waiting for a participant's socket to establish.
const pollInterval = 20 * time.Millisecond

// TokenValidator resolves an opaque authToken to a userId. Returns an
// error if the token is invalid or expired.
type TokenValidator func(ctx context.Context, token string) (userID string, err error)

// Config tunes heartbeat cadence and room capacity. HeartbeatInterval
// defaults to 30s per §4.D; ConnectTimeout is an Open Question the
// grounding ledger resolves to 5s, configurable per deployment.
type Config struct {
	HeartbeatInterval        time.Duration
	ConnectTimeout           time.Duration
	MaxParticipantsPerSession int
}

// DefaultConfig matches §4.D's stated defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:         30 * time.Second,
		ConnectTimeout:            5 * time.Second,
		MaxParticipantsPerSession: 50,
	}
}

// Server is the session-scoped signaling relay. Grounded on
// cmd/api/websocket.go's Hub (register/unregister/broadcast loop),
// generalized to per-session Rooms and a full connection-establishment
// state machine.
type Server struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	cfg       Config
	guard     rbac.Guard
	validator TokenValidator
	log       zerolog.Logger

	stop chan struct{}
}

func NewServer(cfg Config, guard rbac.Guard, validator TokenValidator, log zerolog.Logger) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if cfg.MaxParticipantsPerSession <= 0 {
		cfg.MaxParticipantsPerSession = DefaultConfig().MaxParticipantsPerSession
	}
	return &Server{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		guard:     guard,
		validator: validator,
		log:       log.With().Str("component", "signaling").Logger(),
		stop:      make(chan struct{}),
	}
}

func (s *Server) roomFor(sessionID string, create bool) (*Room, bool) {
	s.mu.RLock()
	r, ok := s.rooms[sessionID]
	s.mu.RUnlock()
	if ok || !create {
		return r, ok
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[sessionID]; ok {
		return r, true
	}
	r = newRoom(sessionID)
	s.rooms[sessionID] = r
	metrics.SignalingRoomsActive.Set(float64(len(s.rooms)))
	return r, false
}

func (s *Server) destroyRoomIfEmpty(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[sessionID]
	if !ok || !r.isEmpty() {
		return
	}
	delete(s.rooms, sessionID)
	metrics.SignalingRoomsActive.Set(float64(len(s.rooms)))
}

// HandleConn drives one socket's lifetime: the connection-establishment
// handshake, the read/write pumps, and the heartbeat loop. It returns
// once the socket reaches Closed.
func (s *Server) HandleConn(ctx context.Context, conn Conn) {
	socket := newSocket(conn, "", "")
	metrics.SignalingConnections.Inc()
	defer metrics.SignalingConnections.Dec()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ConnectTimeout))

	var first Message
	if err := conn.ReadJSON(&first); err != nil || first.Type != MessageJoin {
		s.sendError(socket, "expected Join as first message")
		socket.setState(StateClosed)
		_ = conn.Close()
		return
	}

	if !s.establish(ctx, socket, first) {
		_ = conn.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.writePump(socket) }()
	go func() { defer wg.Done(); s.readPump(ctx, socket) }()
	wg.Wait()
}

// establish runs the connection-establishment steps of §4.D 1-4. On
// success the socket is left in state Joined and registered in its
// room.
func (s *Server) establish(ctx context.Context, socket *Socket, join Message) bool {
	userID, err := s.validateToken(ctx, join.AuthToken)
	if err != nil {
		s.sendError(socket, "invalid auth token")
		return false
	}
	socket.userID = userID
	socket.setState(StateAuthenticated)

	sessionID := join.SessionID
	participantID := join.ParticipantID
	if sessionID == "" || participantID == "" {
		s.sendError(socket, "sessionId and participantId are required")
		return false
	}

	room, existed := s.roomFor(sessionID, true)

	action := rbac.ActionSessionJoin
	if !existed {
		if decision, err := s.guard.Check(ctx, userID, sessionID, "session", rbac.ActionSessionCreate); err != nil || !decision.Allowed {
			s.sendError(socket, "permission denied: session.create")
			s.destroyRoomIfEmpty(sessionID)
			return false
		}
	}
	decision, err := s.guard.Check(ctx, userID, sessionID, "session", action)
	if err != nil || !decision.Allowed {
		s.sendError(socket, "permission denied: session.join")
		s.destroyRoomIfEmpty(sessionID)
		return false
	}

	if room.size() >= s.cfg.MaxParticipantsPerSession {
		s.sendError(socket, "session is full")
		return false
	}
	if room.has(participantID) {
		s.sendError(socket, fmt.Sprintf("participant id %q already in use", participantID))
		return false
	}

	socket.sessionID = sessionID
	socket.participantID = participantID
	socket.setState(StateJoined)
	room.add(socket)
	socket.touch()

	socket.Enqueue(Message{Type: MessageJoin, SessionID: sessionID, ParticipantID: participantID, Payload: map[string]bool{"success": true}, TimestampMS: nowMS()})
	room.broadcastExcept(Message{Type: MessageJoin, SessionID: sessionID, ParticipantID: participantID, TimestampMS: nowMS()}, participantID)

	s.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Msg("participant joined signaling room")
	return true
}

func (s *Server) validateToken(ctx context.Context, token string) (string, error) {
	if s.validator == nil {
		return "", errs.New(errs.PermissionDenied, "no token validator configured")
	}
	return s.validator(ctx, token)
}

func (s *Server) sendError(socket *Socket, reason string) {
	socket.Enqueue(Message{Type: MessageError, Error: reason, TimestampMS: nowMS()})
	// best-effort synchronous write since the pumps may not be running yet
	_ = socket.conn.WriteJSON(Message{Type: MessageError, Error: reason, TimestampMS: nowMS()})
}

// readPump consumes inbound frames and routes them per §4.D.
func (s *Server) readPump(ctx context.Context, socket *Socket) {
	defer s.teardown(ctx, socket)

	for {
		var msg Message
		if err := socket.conn.ReadJSON(&msg); err != nil {
			return
		}
		socket.touch()

		if socket.idleSince() > 2*s.cfg.HeartbeatInterval {
			return
		}

		switch msg.Type {
		case MessageHeartbeat:
			socket.Enqueue(Message{Type: MessageHeartbeat, SessionID: socket.sessionID, TimestampMS: nowMS()})
			socket.resetErrors()
		case MessageSdpOffer, MessageSdpAnswer, MessageIceCandidate:
			s.route(socket, msg)
		case MessageLeave:
			return
		default:
			if socket.recordError() {
				return
			}
			s.sendError(socket, fmt.Sprintf("unexpected message type %q", msg.Type))
		}
	}
}

// route forwards SDP/ICE frames verbatim within the sender's room,
// rewriting From to the sender's id. Never crosses sessions; never
// targets the sender.
func (s *Server) route(socket *Socket, msg Message) {
	st := socket.State()
	if st != StateJoined && st != StateActive {
		s.sendError(socket, "not a member of any session")
		return
	}
	if msg.To == "" || msg.To == socket.participantID {
		s.sendError(socket, "invalid routing target")
		return
	}

	s.mu.RLock()
	room, ok := s.rooms[socket.sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	target, ok := room.get(msg.To)
	if !ok || target.State() != StateJoined && target.State() != StateActive {
		s.sendError(socket, fmt.Sprintf("target %q is not an open member", msg.To))
		return
	}

	socket.setState(StateActive)
	msg.From = socket.participantID
	msg.SessionID = socket.sessionID
	msg.TimestampMS = nowMS()
	target.Enqueue(msg)
}

func (s *Server) teardown(ctx context.Context, socket *Socket) {
	socket.setState(StateLeaving)
	sessionID := socket.sessionID
	participantID := socket.participantID

	if sessionID != "" {
		s.mu.RLock()
		room, ok := s.rooms[sessionID]
		s.mu.RUnlock()
		if ok {
			room.remove(participantID)
			room.broadcastExcept(Message{Type: MessageLeave, SessionID: sessionID, ParticipantID: participantID, TimestampMS: nowMS()}, participantID)
			s.destroyRoomIfEmpty(sessionID)
		}
	}

	socket.setState(StateClosed)
	close(socket.send)
	_ = socket.conn.Close()
}

// writePump drains the socket's outbound queue and emits the periodic
// heartbeat, mirroring cmd/api/websocket.go's writePump/ticker pair.
func (s *Server) writePump(socket *Socket) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-socket.send:
			if !ok {
				return
			}
			_ = socket.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := socket.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if socket.State() == StateClosed {
				return
			}
			_ = socket.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := socket.conn.WriteJSON(Message{Type: MessageHeartbeat, SessionID: socket.sessionID, TimestampMS: nowMS()}); err != nil {
				return
			}
		}
	}
}

// Shutdown closes the server's stop channel. Nothing in this package
// reads that channel, so open sockets and their pumps keep running
// until their connections end.
func (s *Server) Shutdown() {
	close(s.stop)
}

// RoomSize reports the current membership of sessionID, 0 if no room
// exists. Exposed for tests and metrics scraping.
func (s *Server) RoomSize(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rooms[sessionID]; ok {
		return r.size()
	}
	return 0
}

// Reachable reports whether this signaling server is accepting
// connections at all. A *Server constructed via NewServer is always
// reachable; the indirection exists so internal/session can depend on
// the smaller SignalingProbe interface instead of *Server directly,
// and so a future health-checked deployment has a place to report
// false without changing callers.
func (s *Server) Reachable() bool {
	return s != nil
}

// DefaultTimeout is the connect timeout callers should pass to
// AwaitJoin absent a per-session override, per §4.D's ConnectTimeout.
func (s *Server) DefaultTimeout() time.Duration {
	return s.cfg.ConnectTimeout
}

// AwaitJoin blocks until participantID's socket in sessionID's room
// reaches Joined or Active (Joined is set as soon as its Join frame is
// accepted into the room; no SDP exchange or data-channel state is
// waited for), ctx is canceled,
// or timeout elapses, whichever comes first. A nil sessionID room (the
// participant hasn't dialed the signaling websocket yet) is treated
// the same as "not yet joined" rather than an immediate failure, since
// the REST join call and the websocket dial are expected to race.
func (s *Server) AwaitJoin(ctx context.Context, sessionID, participantID string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ConnectTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if s.participantEstablished(sessionID, participantID) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrAwaitJoinTimeout
		}
		select {
		case <-ctx.Done():
			return ErrAwaitJoinTimeout
		case <-ticker.C:
		}
	}
}

func (s *Server) participantEstablished(sessionID, participantID string) bool {
	s.mu.RLock()
	room, ok := s.rooms[sessionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	socket, ok := room.get(participantID)
	if !ok {
		return false
	}
	st := socket.State()
	return st == StateJoined || st == StateActive
}
