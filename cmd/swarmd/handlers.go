package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ajitpratap0/swarmfabric/internal/config"
	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
	"github.com/ajitpratap0/swarmfabric/internal/session"
	"github.com/ajitpratap0/swarmfabric/internal/swarm"
)

// statusFor maps an errs.Kind to the HTTP status the gin handlers
// respond with, grounded on the teacher's convention of translating
// a structured domain error into the REST response once at the
// boundary rather than scattering status codes through handlers.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidArgument:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.Conflict:
		return http.StatusConflict
	case errs.InvalidState:
		return http.StatusConflict
	case errs.ResourceExhausted:
		return http.StatusTooManyRequests
	case errs.Timeout:
		return http.StatusGatewayTimeout
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(c *gin.Context, err error) {
	c.Set("error", err.Error())
	metrics.RecordError(string(errs.KindOf(err)), c.FullPath())
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// requestingUser reads the caller's identity from the X-User-ID
// header. Real authentication is a stated non-goal; a production
// deployment replaces this with the bearer-token validator the
// signaling server already uses.
func requestingUser(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": config.Version})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "running",
		"environment": s.config.App.Environment,
	})
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSignalingWS upgrades the connection and hands it to the
// signaling server, which owns the rest of the socket's lifecycle.
func (s *Server) handleSignalingWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.signaling.HandleConn(c.Request.Context(), conn)
}

type createSessionRequest struct {
	SessionID        string `json:"sessionId" binding:"required"`
	HostUserID       string `json:"hostUserId" binding:"required"`
	HostDisplayName  string `json:"hostDisplayName"`
	MaxParticipants  int    `json:"maxParticipants"`
	VetoEnabled      bool   `json:"vetoEnabled"`
	A2AEnabled       bool   `json:"a2aEnabled"`
	EnableSignaling  bool   `json:"enableSignaling"`
	FallbackToDirect bool   `json:"fallbackToDirect"`
	ConnectTimeoutMS int64  `json:"connectTimeoutMs"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.session.CreateSession(c.Request.Context(), session.Config{
		SessionID:        req.SessionID,
		HostUserID:       req.HostUserID,
		MaxParticipants:  req.MaxParticipants,
		VetoEnabled:      req.VetoEnabled,
		A2AEnabled:       req.A2AEnabled,
		EnableSignaling:  req.EnableSignaling,
		FallbackToDirect: req.FallbackToDirect,
		ConnectTimeout:   time.Duration(req.ConnectTimeoutMS) * time.Millisecond,
	}, req.HostDisplayName)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c *gin.Context) {
	summaries, err := s.store.ListSavedSessions(c.Request.Context())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.session.GetSession(c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type joinSessionRequest struct {
	UserID       string   `json:"userId" binding:"required"`
	DisplayName  string   `json:"displayName"`
	Capabilities []string `json:"capabilities"`
}

func (s *Server) handleJoinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.session.JoinSession(c.Request.Context(), c.Param("id"), req.UserID, req.DisplayName, req.Capabilities)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleLeaveSession(c *gin.Context) {
	userID := requestingUser(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	if err := s.session.LeaveSession(c.Request.Context(), c.Param("id"), userID); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.session.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addTaskRequest struct {
	ID          string      `json:"id" binding:"required"`
	Description string      `json:"description" binding:"required"`
	Priority    string      `json:"priority"`
	Payload     interface{} `json:"payload"`
}

func (s *Server) handleAddTask(c *gin.Context) {
	var req addTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := session.Task{
		ID:          req.ID,
		Description: req.Description,
		Priority:    session.Priority(req.Priority),
		Payload:     req.Payload,
	}
	if task.Priority == "" {
		task.Priority = session.PriorityMedium
	}

	if err := s.session.AddTask(c.Request.Context(), c.Param("id"), task); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type requestVetoRequest struct {
	TaskID          string `json:"taskId" binding:"required"`
	RequesterUserID string `json:"requesterUserId" binding:"required"`
	Reason          string `json:"reason"`
}

func (s *Server) handleRequestVeto(c *gin.Context) {
	var req requestVetoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.session.RequestVeto(c.Request.Context(), c.Param("id"), req.TaskID, req.RequesterUserID, req.Reason)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type createVotingSessionRequest struct {
	Topic   string             `json:"topic" binding:"required"`
	Options []consensus.Option `json:"options" binding:"required"`
	Quorum  int                `json:"quorum"`
}

func (s *Server) handleCreateVotingSession(c *gin.Context) {
	var req createVotingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.consensus.CreateSession(c.Request.Context(), req.Topic, req.Options, req.Quorum)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"votingSessionId": id})
}

func (s *Server) handleGetVotingSession(c *gin.Context) {
	sess, err := s.consensus.GetSession(c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type castVoteRequest struct {
	VoterID   string `json:"voterId" binding:"required"`
	OptionID  string `json:"optionId" binding:"required"`
	Rationale string `json:"rationale"`
}

func (s *Server) handleCastVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.consensus.CastVote(c.Request.Context(), c.Param("id"), req.VoterID, req.OptionID, req.Rationale); err != nil {
		s.respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type closeVotingSessionRequest struct {
	Algorithm string  `json:"algorithm"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleCloseVotingSession(c *gin.Context) {
	var req closeVotingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	algorithm := consensus.Algorithm(req.Algorithm)
	if algorithm == "" {
		algorithm = consensus.WeightedMajority
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.config.Consensus.DefaultThreshold
	}

	result, err := s.consensus.CloseSession(c.Request.Context(), c.Param("id"), algorithm, threshold)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type initiateHandoffRequest struct {
	Source   string                 `json:"source" binding:"required"`
	Target   string                 `json:"target" binding:"required"`
	TaskID   string                 `json:"taskId" binding:"required"`
	Context  map[string]interface{} `json:"context"`
	Priority int                    `json:"priority"`
}

func (s *Server) handleInitiateHandoff(c *gin.Context) {
	var req initiateHandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.handoff.Initiate(c.Request.Context(), handoff.Request{
		Source:   req.Source,
		Target:   req.Target,
		TaskID:   req.TaskID,
		Context:  req.Context,
		Priority: req.Priority,
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetHandoff(c *gin.Context) {
	record, err := s.handoff.Get(c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type completeHandoffRequest struct {
	AcceptingAgentID string `json:"acceptingAgentId" binding:"required"`
}

func (s *Server) handleCompleteHandoff(c *gin.Context) {
	var req completeHandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.handoff.Complete(c.Request.Context(), c.Param("id"), req.AcceptingAgentID)
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCancelHandoff(c *gin.Context) {
	result, err := s.handoff.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type delegateTaskRequest struct {
	ID          string `json:"id" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (s *Server) handleDelegateTask(c *gin.Context) {
	var req delegateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.swarm.DelegateTask(c.Request.Context(), swarm.Task{ID: req.ID, Description: req.Description})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListSavedSessions(c *gin.Context) {
	summaries, err := s.store.ListSavedSessions(c.Request.Context())
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *Server) handleRestoreSession(c *gin.Context) {
	snap, err := s.store.RestoreSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	rebuilt := s.session.RebuildFromSnapshot(*snap)
	c.JSON(http.StatusOK, rebuilt)
}
