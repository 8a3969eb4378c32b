package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AgentConfig holds the static swarm agent roster and its orchestration
// settings, loaded separately from the main Config so operators can
// reshape the roster without restarting the rest of the fabric.
type AgentConfig struct {
	Global        GlobalAgentConfig     `mapstructure:"global"`
	Agents        map[string]SwarmAgent `mapstructure:"agents"`
	Orchestration OrchestrationConfig   `mapstructure:"orchestration"`
	Communication CommunicationConfig   `mapstructure:"communication"`
	Logging       LoggingConfig         `mapstructure:"logging"`
}

// GlobalAgentConfig contains settings that apply to all roster agents
type GlobalAgentConfig struct {
	DefaultHeartbeatInterval string `mapstructure:"default_heartbeat_interval"`
	DefaultLatencyTargetMS   int64  `mapstructure:"default_latency_target_ms"`
	EnableMetrics            bool   `mapstructure:"enable_metrics"`
	MetricsPort              int    `mapstructure:"metrics_port"`
}

// SwarmAgent describes a single roster entry registered with the swarm
// delegate (§4.F): its identity, the capabilities it advertises for
// consensus weighting, and whether it runs in-process (eligible for the
// local-first delegation path).
type SwarmAgent struct {
	Enabled      bool     `mapstructure:"enabled"`
	Name         string   `mapstructure:"name"`
	Capabilities []string `mapstructure:"capabilities"`
	IsLocal      bool     `mapstructure:"is_local"`
	Version      string   `mapstructure:"version"`
}

// OrchestrationConfig defines how roster agents coordinate
type OrchestrationConfig struct {
	Voting       VotingConfig       `mapstructure:"voting"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Performance  PerformanceConfig  `mapstructure:"performance"`
}

// VotingConfig defines the default consensus voting mechanism (§4.B)
type VotingConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Method   string  `mapstructure:"method"` // "weighted_majority"
	MinVotes int     `mapstructure:"min_votes"`
	Quorum   float64 `mapstructure:"quorum"`
}

// CoordinationConfig defines swarm task coordination
type CoordinationConfig struct {
	BroadcastDelegations bool   `mapstructure:"broadcast_delegations"`
	DelegationExpiry     string `mapstructure:"delegation_expiry"`
	EnableLearning       bool   `mapstructure:"enable_learning"`
}

// PerformanceConfig defines delegation performance tracking
type PerformanceConfig struct {
	TrackAgentAccuracy bool `mapstructure:"track_agent_accuracy"`
	AdjustWeights      bool `mapstructure:"adjust_weights"`
	MinSampleSize      int  `mapstructure:"min_sample_size"`
}

// CommunicationConfig defines inter-agent/session-fabric communication
type CommunicationConfig struct {
	NATS NATSCommunicationConfig `mapstructure:"nats"`
}

// NATSCommunicationConfig defines NATS topics and retention
type NATSCommunicationConfig struct {
	Topics    NATSTopics    `mapstructure:"topics"`
	Retention NATSRetention `mapstructure:"retention"`
}

// NATSTopics defines topic names for different fabric event types
type NATSTopics struct {
	TaskDelegations string `mapstructure:"task_delegations"`
	ConsensusVotes  string `mapstructure:"consensus_votes"`
	SessionEvents   string `mapstructure:"session_events"`
	HandoffEvents   string `mapstructure:"handoff_events"`
	SwarmHeartbeat  string `mapstructure:"swarm_heartbeat"`
	SwarmErrors     string `mapstructure:"swarm_errors"`
}

// NATSRetention defines message retention policies
type NATSRetention struct {
	Delegations string `mapstructure:"delegations"`
	Sessions    string `mapstructure:"sessions"`
	Heartbeat   string `mapstructure:"heartbeat"`
}

// LoggingConfig defines agent logging settings
type LoggingConfig struct {
	Level       string            `mapstructure:"level"`
	Format      string            `mapstructure:"format"`
	Output      string            `mapstructure:"output"`
	AgentLevels map[string]string `mapstructure:"agent_levels"`
}

// LoadAgentConfig loads the swarm agent roster from file
func LoadAgentConfig(configPath string) (*AgentConfig, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agents")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// Set defaults
	setAgentDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("SWARMFABRIC_AGENT")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}

	// Unmarshal into struct
	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent config: %w", err)
	}

	return &cfg, nil
}

// setAgentDefaults sets default agent configuration values
func setAgentDefaults(v *viper.Viper) {
	// Global defaults
	v.SetDefault("global.default_heartbeat_interval", "15s")
	v.SetDefault("global.default_latency_target_ms", 2000)
	v.SetDefault("global.enable_metrics", true)
	v.SetDefault("global.metrics_port", 9101)

	// Roster - local reasoning agent
	v.SetDefault("agents.local_reasoner.enabled", true)
	v.SetDefault("agents.local_reasoner.name", "local-reasoner")
	v.SetDefault("agents.local_reasoner.is_local", true)
	v.SetDefault("agents.local_reasoner.version", "1.0.0")
	v.SetDefault("agents.local_reasoner.capabilities", []string{"code", "planning"})

	// Roster - remote code specialist
	v.SetDefault("agents.code_specialist.enabled", true)
	v.SetDefault("agents.code_specialist.name", "code-specialist")
	v.SetDefault("agents.code_specialist.is_local", false)
	v.SetDefault("agents.code_specialist.version", "1.0.0")
	v.SetDefault("agents.code_specialist.capabilities", []string{"code", "review"})

	// Roster - remote research specialist
	v.SetDefault("agents.research_specialist.enabled", true)
	v.SetDefault("agents.research_specialist.name", "research-specialist")
	v.SetDefault("agents.research_specialist.is_local", false)
	v.SetDefault("agents.research_specialist.version", "1.0.0")
	v.SetDefault("agents.research_specialist.capabilities", []string{"research", "summarization"})

	// Orchestration - Voting
	v.SetDefault("orchestration.voting.enabled", true)
	v.SetDefault("orchestration.voting.method", "weighted_majority")
	v.SetDefault("orchestration.voting.min_votes", 2)
	v.SetDefault("orchestration.voting.quorum", 0.5)

	// Orchestration - Coordination
	v.SetDefault("orchestration.coordination.broadcast_delegations", true)
	v.SetDefault("orchestration.coordination.delegation_expiry", "5m")
	v.SetDefault("orchestration.coordination.enable_learning", false)

	// Orchestration - Performance
	v.SetDefault("orchestration.performance.track_agent_accuracy", true)
	v.SetDefault("orchestration.performance.adjust_weights", false)
	v.SetDefault("orchestration.performance.min_sample_size", 50)

	// Communication - NATS Topics
	v.SetDefault("communication.nats.topics.task_delegations", "swarm.delegations")
	v.SetDefault("communication.nats.topics.consensus_votes", "swarm.consensus.votes")
	v.SetDefault("communication.nats.topics.session_events", "swarm.session.events")
	v.SetDefault("communication.nats.topics.handoff_events", "swarm.handoff.events")
	v.SetDefault("communication.nats.topics.swarm_heartbeat", "swarm.system.heartbeat")
	v.SetDefault("communication.nats.topics.swarm_errors", "swarm.system.errors")

	// Communication - NATS Retention
	v.SetDefault("communication.nats.retention.delegations", "1h")
	v.SetDefault("communication.nats.retention.sessions", "24h")
	v.SetDefault("communication.nats.retention.heartbeat", "5m")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
}

// GetHeartbeatIntervalDuration parses a heartbeat interval string to time.Duration
func (ac *AgentConfig) GetHeartbeatIntervalDuration(interval string) (time.Duration, error) {
	return time.ParseDuration(interval)
}

// GetEnabledAgents returns the names of every enabled roster agent
func (ac *AgentConfig) GetEnabledAgents() []string {
	var enabled []string
	for name, agent := range ac.Agents {
		if agent.Enabled {
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// GetLocalAgents returns the names of every enabled agent eligible for
// the swarm delegate's local-first path.
func (ac *AgentConfig) GetLocalAgents() []string {
	var local []string
	for name, agent := range ac.Agents {
		if agent.Enabled && agent.IsLocal {
			local = append(local, name)
		}
	}
	return local
}
