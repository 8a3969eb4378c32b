package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Session    SessionConfig    `mapstructure:"session"`
	Signaling  SignalingConfig  `mapstructure:"signaling"`
	Swarm      SwarmConfig      `mapstructure:"swarm"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings for the snapshot store
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// SessionConfig contains session lifecycle settings (§4.E). validate
// tags carry the schema-level checks §4.E's Create spells out;
// Validate() runs them through validator/v10 rather than by hand.
type SessionConfig struct {
	MaxParticipants     int    `mapstructure:"max_participants" validate:"gte=2,lte=50"`                // 50
	MinParticipants     int    `mapstructure:"min_participants" validate:"gte=2,ltefield=MaxParticipants"` // 2
	HeartbeatInterval   string `mapstructure:"heartbeat_interval" validate:"required,duration"`         // "15s"
	HeartbeatTimeout    string `mapstructure:"heartbeat_timeout" validate:"required,duration"`          // "45s"
	IdleSessionTimeout  string `mapstructure:"idle_session_timeout" validate:"required,duration"`       // "30m"
	VetoWindow          string `mapstructure:"veto_window" validate:"required,duration"`                // "2m"
	SnapshotOnEveryTask bool   `mapstructure:"snapshot_on_every_task"`                                  // true
}

// SignalingConfig contains WebRTC signaling server settings (§4.D)
type SignalingConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	HandshakeTimeout   string `mapstructure:"handshake_timeout"`    // "30s"
	MaxPendingOffers   int    `mapstructure:"max_pending_offers"`   // 100
	ICEGatherTimeout   string `mapstructure:"ice_gather_timeout"`   // "10s"
}

// SwarmConfig contains swarm delegation settings (§4.F)
type SwarmConfig struct {
	LocalInferenceEnabled    bool  `mapstructure:"local_inference_enabled"`
	ConsensusVotingEnabled   bool  `mapstructure:"consensus_voting_enabled"`
	LatencyTargetMS          int64 `mapstructure:"latency_target_ms"`           // 2000
	MaxConcurrentDelegations int   `mapstructure:"max_concurrent_delegations"` // 10
}

// ConsensusConfig contains weighted voting settings (§4.B). validate
// tags carry the schema-level checks; Validate() runs them through
// validator/v10.
type ConsensusConfig struct {
	DefaultThreshold float64 `mapstructure:"default_threshold" validate:"gt=0,lte=1"`  // 0.5
	VotingTimeout    string  `mapstructure:"voting_timeout" validate:"required,duration"` // "60s"
	MinVoters        int     `mapstructure:"min_voters" validate:"gte=1"`              // 1
}

// APIConfig contains REST/WebSocket API settings
type APIConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	SignalingURL string `mapstructure:"signaling_url"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("SWARMFABRIC")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "swarmfabric")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "swarmfabric")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enable_jetstream", true)

	// Session defaults
	v.SetDefault("session.max_participants", 50)
	v.SetDefault("session.min_participants", 2)
	v.SetDefault("session.heartbeat_interval", "15s")
	v.SetDefault("session.heartbeat_timeout", "45s")
	v.SetDefault("session.idle_session_timeout", "30m")
	v.SetDefault("session.veto_window", "2m")
	v.SetDefault("session.snapshot_on_every_task", true)

	// Signaling defaults
	v.SetDefault("signaling.host", "0.0.0.0")
	v.SetDefault("signaling.port", 8443)
	v.SetDefault("signaling.handshake_timeout", "30s")
	v.SetDefault("signaling.max_pending_offers", 100)
	v.SetDefault("signaling.ice_gather_timeout", "10s")

	// Swarm defaults
	v.SetDefault("swarm.local_inference_enabled", true)
	v.SetDefault("swarm.consensus_voting_enabled", true)
	v.SetDefault("swarm.latency_target_ms", 2000)
	v.SetDefault("swarm.max_concurrent_delegations", 10)

	// Consensus defaults
	v.SetDefault("consensus.default_threshold", 0.5)
	v.SetDefault("consensus.voting_timeout", "60s")
	v.SetDefault("consensus.min_voters", 1)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)
	v.SetDefault("api.signaling_url", "http://localhost:8443")

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Note: Comprehensive validation is in validation.go
// The Config.Validate() method is called during Load()

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetSignalingURL returns the signaling server URL
func (c *APIConfig) GetSignalingURL() string {
	return c.SignalingURL
}

// GetSignalingAddr returns the signaling server bind address
func (c *SignalingConfig) GetSignalingAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
