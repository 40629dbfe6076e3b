// Package config loads Chorus daemon configuration from environment
// variables with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the chorusd coordinator.
type Config struct {
	Port      int
	Version   string
	Ledger    LedgerConfig
	Dispatch  DispatchConfig
	Telemetry TelemetryConfig
}

type LedgerConfig struct {
	// InitialBalance granted to auto-created accounts.
	InitialBalance float64
	// OrchestratorOwner is the owner id the coordinator pays jobs from.
	OrchestratorOwner string
}

type DispatchConfig struct {
	// Timeout bounds one remote job call, handler time included.
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// AgentConfig holds configuration for a standalone agentd daemon.
type AgentConfig struct {
	Port              int
	Name              string
	OwnerID           string
	Skill             string
	SkillDescription  string
	Cost              float64
	CoordinatorURL    string
	AdvertiseURL      string
	HeartbeatInterval time.Duration
}

// Load reads coordinator configuration from the environment.
func Load() *Config {
	return &Config{
		Port:    envInt("CHORUS_PORT", 8080),
		Version: envStr("CHORUS_VERSION", "0.1.0"),
		Ledger: LedgerConfig{
			InitialBalance:    envFloat("CHORUS_INITIAL_BALANCE", 100.0),
			OrchestratorOwner: envStr("CHORUS_ORCHESTRATOR_OWNER", "chorus_coordinator"),
		},
		Dispatch: DispatchConfig{
			Timeout: envDur("CHORUS_DISPATCH_TIMEOUT", 120*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "chorusd"),
		},
	}
}

// LoadAgent reads agentd configuration from the environment.
func LoadAgent() *AgentConfig {
	port := envInt("CHORUS_AGENT_PORT", 8010)
	return &AgentConfig{
		Port:              port,
		Name:              envStr("CHORUS_AGENT_NAME", "Demo-Agent"),
		OwnerID:           envStr("CHORUS_AGENT_OWNER", "demo_owner"),
		Skill:             envStr("CHORUS_AGENT_SKILL", "echo"),
		SkillDescription:  envStr("CHORUS_AGENT_SKILL_DESC", ""),
		Cost:              envFloat("CHORUS_AGENT_COST", 0.05),
		CoordinatorURL:    envStr("CHORUS_COORDINATOR_URL", "http://localhost:8080"),
		AdvertiseURL:      envStr("CHORUS_AGENT_ADVERTISE_URL", "http://localhost:"+strconv.Itoa(port)),
		HeartbeatInterval: envDur("CHORUS_AGENT_HEARTBEAT", 30*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
