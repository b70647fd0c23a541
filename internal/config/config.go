// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the tracker API service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	AdminPIN          string        // shared secret for POST /stolen
	StorePath         string        // SQLite file backing the job store
	PendingTTL        time.Duration // retention of a queued job record and its pointer
	ResultTTL         time.Duration // retention after a terminal result is written
	StaleUpdate       time.Duration // max age of the last contact to count as online
	StaleFix          time.Duration // max age of the last valid fix
	UpstreamURL       string        // telemetry read endpoint (empty disables /position)
	ShutdownDrainWait time.Duration // time to wait for load balancer to drain (0 to skip)
}

// LoadServiceConfig loads service configuration from environment variables.
// ADMIN_PIN_FILE takes precedence over ADMIN_PIN so the secret can be mounted.
func LoadServiceConfig() *ServiceConfig {
	pin := GetSecretFile(GetEnv("ADMIN_PIN_FILE", ""))
	if pin == "" {
		pin = GetEnv("ADMIN_PIN", "")
	}
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		AdminPIN:          pin,
		StorePath:         GetEnv("STORE_PATH", "tracker.sqlite"),
		PendingTTL:        GetDurationEnv("JOB_PENDING_TTL", time.Hour),
		ResultTTL:         GetDurationEnv("JOB_RESULT_TTL", 24*time.Hour),
		StaleUpdate:       GetDurationEnv("STALE_UPDATE", time.Minute),
		StaleFix:          GetDurationEnv("STALE_FIX", 2*time.Minute),
		UpstreamURL:       GetEnv("UPSTREAM_URL", ""),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
	}
}

// AgentConfig holds configuration for the device-side job poll agent.
type AgentConfig struct {
	APIURL       string
	Target       string        // stable identity used to claim jobs
	PollInterval time.Duration // fixed poll period against /job/poll
	JobTimeout   time.Duration // worker-side execution budget per job
	CommandsPath string        // YAML file mapping job types to commands
	StopFile     string        // touching this file stops the agent
	Runtime      string        // "exec" or "docker"
}

// LoadAgentConfig loads agent configuration from environment variables.
func LoadAgentConfig() *AgentConfig {
	return &AgentConfig{
		APIURL:       GetEnv("API_URL", "http://localhost:8080"),
		Target:       GetEnv("TARGET_ID", "gateway"),
		PollInterval: GetDurationEnv("POLL_INTERVAL", 5*time.Second),
		JobTimeout:   GetDurationEnv("JOB_TIMEOUT", 30*time.Second),
		CommandsPath: GetEnv("COMMANDS_PATH", "commands.yaml"),
		StopFile:     GetEnv("STOP_FILE", ""),
		Runtime:      GetEnv("AGENT_RUNTIME", "exec"),
	}
}
