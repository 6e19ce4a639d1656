// Package config loads orchmesh configuration from environment variables,
// an optional config file, and defaults via github.com/spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section consumed by the core.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// DatabaseConfig holds the session repository's Postgres connection info.
// Left zero-valued, the server falls back to the in-memory repository.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
}

// DSN renders a libpq-style connection string for pgx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// NATSConfig holds the optional event bus backplane configuration. Empty
// URL means "use the in-process memory bus".
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// AgentConfig holds agent runtime limits.
type AgentConfig struct {
	// MaxConcurrentAgents is loaded from configuration but not read by the
	// agent registry, which places no limit on how many agents it holds.
	MaxConcurrentAgents int `mapstructure:"maxConcurrentAgents"`
	// StreamChunkMaxBytes is loaded from configuration but not read by the
	// agent runtime; streamed chunks are not size-limited.
	StreamChunkMaxBytes int `mapstructure:"streamChunkMaxBytes"`
	// StreamCancelGrace is the time a cancelled stream is given to close
	// before the agent runtime moves the agent to Error.
	StreamCancelGrace time.Duration `mapstructure:"streamCancelGrace"`
	// ApprovalMode selects the Approval Collaborator's default policy:
	// "always_allow", "always_deny", "ask_each", or "ask_once". Only
	// always_allow/always_deny are usable without a transport-attached
	// Asker, which this server does not yet wire (see DESIGN.md).
	ApprovalMode string `mapstructure:"approvalMode"`
}

// OrchestratorConfig holds orchestration execution limits.
type OrchestratorConfig struct {
	// DefaultStepTimeout is loaded from configuration but not read by the
	// plan executor; a step runs until its agent call returns or the plan's
	// context ends.
	DefaultStepTimeout time.Duration `mapstructure:"defaultStepTimeout"`
	// ParallelismCap bounds how many steps may run concurrently,
	// regardless of how many are eligible.
	ParallelismCap int `mapstructure:"parallelismCap"`
}

// Load reads configuration from environment variables (prefixed ORCH_),
// an optional orchmesh.yaml on the search path, and the defaults below.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("orchmesh")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchmesh")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 60)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("agent.maxConcurrentAgents", 32)
	v.SetDefault("agent.streamChunkMaxBytes", 64*1024)
	v.SetDefault("agent.streamCancelGrace", 250*time.Millisecond)
	v.SetDefault("agent.approvalMode", "always_allow")

	v.SetDefault("orchestrator.defaultStepTimeout", 5*time.Minute)
	v.SetDefault("orchestrator.parallelismCap", 8)
}
