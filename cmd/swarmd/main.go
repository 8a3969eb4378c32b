// Command swarmd is the collaborative multi-agent session fabric's
// control-plane daemon: it wires the RBAC guard, consensus engine,
// context-handoff manager, swarm delegate, signaling server, session
// manager, and snapshot store into one HTTP/WebSocket process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/swarmfabric/internal/audit"
	"github.com/ajitpratap0/swarmfabric/internal/config"
	"github.com/ajitpratap0/swarmfabric/internal/consensus"
	"github.com/ajitpratap0/swarmfabric/internal/errs"
	"github.com/ajitpratap0/swarmfabric/internal/eventbus"
	"github.com/ajitpratap0/swarmfabric/internal/handoff"
	"github.com/ajitpratap0/swarmfabric/internal/metrics"
	"github.com/ajitpratap0/swarmfabric/internal/persistence"
	"github.com/ajitpratap0/swarmfabric/internal/rbac"
	"github.com/ajitpratap0/swarmfabric/internal/session"
	"github.com/ajitpratap0/swarmfabric/internal/signaling"
	"github.com/ajitpratap0/swarmfabric/internal/swarm"
)

// Server is the daemon's top-level wiring, mirroring the teacher's
// APIServer struct shape (router + store + config + long-lived
// collaborators + port), generalized from a single db handle to the
// fabric's full set of component managers.
type Server struct {
	router      *gin.Engine
	config      *config.Config
	agents      *config.AgentConfig
	store       *persistence.Store
	bus         eventbus.Bus
	guard       *rbac.StaticGuard
	auditLogger *audit.Logger
	consensus   *consensus.Manager
	handoff     *handoff.Manager
	session     *session.Manager
	swarm       *swarm.Delegate
	signaling   *signaling.Server
	rateLimiter *RateLimiterMiddleware
	port        string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load or validate configuration")
	}

	agentsPath := os.Getenv("AGENTS_CONFIG_PATH")
	agents, err := config.LoadAgentConfig(agentsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load agent roster")
	}

	ctx := context.Background()

	store, err := persistence.New(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize snapshot store")
	}
	defer store.Close()

	bus, err := newEventBus(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event bus")
	}
	defer bus.Close()

	auditLogger := audit.NewLogger(nil, true)

	guard := rbac.NewStaticGuard(rbac.DefaultRoles(), nil, auditLogger, log.Logger)

	consensusMgr := consensus.NewManager(bus, log.Logger)
	handoffMgr := handoff.NewManager(bus, log.Logger)

	signalingSrv := signaling.NewServer(signalingConfig(cfg), guard, bearerTokenValidator, log.Logger)

	sessionMgr := session.NewManager(guard, consensusMgr, handoffMgr, bus, store, signalingSrv, log.Logger)
	if _, err := persistence.SubscribeSessionRestore(bus, func(snap session.Snapshot) {
		sessionMgr.RebuildFromSnapshot(snap)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to session restore events")
	}

	restored, err := persistence.RestoreAll(ctx, store, bus, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("session restore encountered errors")
	}
	log.Info().Int("restored_sessions", restored).Msg("startup restore complete")

	runtime := newRosterRuntime(agents, log.Logger)
	delegate := swarm.NewDelegate(swarm.Config{
		LocalInferenceEnabled:    cfg.Swarm.LocalInferenceEnabled,
		ConsensusVotingEnabled:   cfg.Swarm.ConsensusVotingEnabled,
		LatencyTargetMS:          cfg.Swarm.LatencyTargetMS,
		MaxConcurrentDelegations: cfg.Swarm.MaxConcurrentDelegations,
	}, runtime, consensusMgr, handoffMgr, log.Logger)
	for _, a := range registeredAgents(agents) {
		delegate.RegisterAgent(a)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		router:      gin.Default(),
		config:      cfg,
		agents:      agents,
		store:       store,
		bus:         bus,
		guard:       guard,
		auditLogger: auditLogger,
		consensus:   consensusMgr,
		handoff:     handoffMgr,
		session:     sessionMgr,
		swarm:       delegate,
		signaling:   signalingSrv,
		port:        getPort(cfg),
	}

	server.setupMiddleware()
	server.setupRoutes()
	server.start()
}

// newEventBus picks NATS when a URL is configured and falls back to
// the in-process bus otherwise, so a single-node deployment needs no
// external broker.
func newEventBus(cfg *config.Config, log zerolog.Logger) (eventbus.Bus, error) {
	if cfg.NATS.URL == "" {
		return eventbus.NewMemBus(func(err error) {
			log.Error().Err(err).Msg("event bus handler error")
		}), nil
	}
	return eventbus.NewNATSBus(cfg.NATS.URL, "swarm", log)
}

func signalingConfig(cfg *config.Config) signaling.Config {
	out := signaling.DefaultConfig()
	if d, err := time.ParseDuration(cfg.Session.HeartbeatInterval); err == nil {
		out.HeartbeatInterval = d
	}
	if d, err := time.ParseDuration(cfg.Signaling.HandshakeTimeout); err == nil {
		out.ConnectTimeout = d
	}
	out.MaxParticipantsPerSession = cfg.Session.MaxParticipants
	return out
}

// bearerTokenValidator accepts the "user-<userId>" bearer form
// described in §4.D. Real identity issuance is a stated non-goal; a
// production deployment swaps this for a vault-backed JWT validator.
func bearerTokenValidator(ctx context.Context, token string) (string, error) {
	const prefix = "user-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", errs.New(errs.PermissionDenied, "invalid auth token")
	}
	return token[len(prefix):], nil
}

func getPort(cfg *config.Config) string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	if cfg.API.Port != 0 {
		return strconv.Itoa(cfg.API.Port)
	}
	return "8090"
}

func (s *Server) setupMiddleware() {
	allowedOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	corsCfg := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	s.router.Use(cors.New(corsCfg))

	s.router.Use(metrics.GinMiddleware())
	s.router.Use(AuditLoggingMiddleware(s.auditLogger))
	s.router.Use(requestLogger())
	s.router.Use(gin.Recovery())
}

func (s *Server) setupRoutes() {
	s.rateLimiter = NewRateLimiterMiddleware(DefaultRateLimiterConfig())
	s.rateLimiter.StartCleanupWorker(5 * time.Minute)
	s.router.Use(s.rateLimiter.GlobalMiddleware())

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/status", s.handleStatus)

		v1.GET("/ws", s.handleSignalingWS)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.rateLimiter.ControlMiddleware(), s.handleCreateSession)
			sessions.GET("", s.rateLimiter.ReadMiddleware(), s.handleListSessions)
			sessions.GET("/:id", s.rateLimiter.ReadMiddleware(), s.handleGetSession)
			sessions.POST("/:id/join", s.rateLimiter.ControlMiddleware(), s.handleJoinSession)
			sessions.POST("/:id/leave", s.rateLimiter.ControlMiddleware(), s.handleLeaveSession)
			sessions.POST("/:id/close", s.rateLimiter.ControlMiddleware(), s.handleCloseSession)
			sessions.POST("/:id/tasks", s.rateLimiter.OrderMiddleware(), s.handleAddTask)
			sessions.POST("/:id/veto", s.rateLimiter.ControlMiddleware(), s.handleRequestVeto)
		}

		consensusGroup := v1.Group("/consensus")
		{
			consensusGroup.POST("/sessions", s.rateLimiter.ControlMiddleware(), s.handleCreateVotingSession)
			consensusGroup.GET("/sessions/:id", s.rateLimiter.ReadMiddleware(), s.handleGetVotingSession)
			consensusGroup.POST("/sessions/:id/votes", s.rateLimiter.OrderMiddleware(), s.handleCastVote)
			consensusGroup.POST("/sessions/:id/close", s.rateLimiter.ControlMiddleware(), s.handleCloseVotingSession)
		}

		handoffGroup := v1.Group("/handoffs")
		{
			handoffGroup.POST("", s.rateLimiter.ControlMiddleware(), s.handleInitiateHandoff)
			handoffGroup.GET("/:id", s.rateLimiter.ReadMiddleware(), s.handleGetHandoff)
			handoffGroup.POST("/:id/complete", s.rateLimiter.ControlMiddleware(), s.handleCompleteHandoff)
			handoffGroup.POST("/:id/cancel", s.rateLimiter.ControlMiddleware(), s.handleCancelHandoff)
		}

		swarmGroup := v1.Group("/swarm")
		{
			swarmGroup.POST("/delegate", s.rateLimiter.OrderMiddleware(), s.handleDelegateTask)
		}

		restoreGroup := v1.Group("/restore")
		{
			restoreGroup.GET("", s.rateLimiter.ReadMiddleware(), s.handleListSavedSessions)
			restoreGroup.POST("/:id", s.rateLimiter.ControlMiddleware(), s.handleRestoreSession)
		}
	}

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "swarmfabric",
			"version": config.Version,
			"status":  "running",
		})
	})
}

func (s *Server) start() {
	srv := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", s.port).Str("version", config.Version).Msg("starting swarmd")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start swarmd")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down swarmd...")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.signaling.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("swarmd forced to shutdown")
	}
}
