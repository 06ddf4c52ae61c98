// Package config loads control-plane settings from the environment, the way
// cmd/warren itself never reached for a config-file library: every runtime
// setting is an env var with a documented default. cmd/controlplaned binds
// no command-line flags for these settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved, validated set of control-plane settings.
type Config struct {
	DataDir              string
	ListenAddr           string
	LogLevel             string
	LogJSON              bool
	VaultMasterKeyHex    string // 64 hex chars, decodes to 32 bytes
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	JWTSigningKey        string
	BCryptCost           int
	AuditQueueDepth      int
	StreamRingBufferSize int
	StreamSubscriberBuf  int
	SlowConsumerDropAt   int
	DockerAPITimeout     time.Duration
	BreakerFailThreshold int
	BreakerOpenDuration  time.Duration
	BreakerHalfOpenMax   int
	ProbeInterval        time.Duration
	ProbePingTimeout     time.Duration
	WSHeartbeatInterval  time.Duration
	WSHeartbeatTimeout   time.Duration
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return v, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return v, nil
}

func getenvBool(key string, def bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, raw, err)
	}
	return v, nil
}

// Load resolves Config from the environment and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           getenv("CONTROLPLANE_DATA_DIR", "./data"),
		ListenAddr:        getenv("CONTROLPLANE_LISTEN_ADDR", ":8443"),
		LogLevel:          getenv("CONTROLPLANE_LOG_LEVEL", "info"),
		VaultMasterKeyHex: getenv("CONTROLPLANE_VAULT_KEY", ""),
		JWTSigningKey:     getenv("CONTROLPLANE_JWT_KEY", ""),
	}

	var err error
	if cfg.LogJSON, err = getenvBool("CONTROLPLANE_LOG_JSON", true); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = getenvDuration("CONTROLPLANE_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = getenvDuration("CONTROLPLANE_REFRESH_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BCryptCost, err = getenvInt("CONTROLPLANE_BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.AuditQueueDepth, err = getenvInt("CONTROLPLANE_AUDIT_QUEUE_DEPTH", 1024); err != nil {
		return nil, err
	}
	if cfg.StreamRingBufferSize, err = getenvInt("CONTROLPLANE_STREAM_RING_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.StreamSubscriberBuf, err = getenvInt("CONTROLPLANE_STREAM_SUB_BUFFER", 256); err != nil {
		return nil, err
	}
	if cfg.SlowConsumerDropAt, err = getenvInt("CONTROLPLANE_SLOW_CONSUMER_DROP_AT", 256); err != nil {
		return nil, err
	}
	if cfg.DockerAPITimeout, err = getenvDuration("CONTROLPLANE_DOCKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerFailThreshold, err = getenvInt("CONTROLPLANE_BREAKER_FAIL_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.BreakerOpenDuration, err = getenvDuration("CONTROLPLANE_BREAKER_OPEN_DURATION", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerHalfOpenMax, err = getenvInt("CONTROLPLANE_BREAKER_HALF_OPEN_MAX", 1); err != nil {
		return nil, err
	}
	if cfg.ProbeInterval, err = getenvDuration("CONTROLPLANE_PROBE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbePingTimeout, err = getenvDuration("CONTROLPLANE_PROBE_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSHeartbeatInterval, err = getenvDuration("CONTROLPLANE_WS_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSHeartbeatTimeout, err = getenvDuration("CONTROLPLANE_WS_HEARTBEAT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.VaultMasterKeyHex == "" {
		return nil, fmt.Errorf("CONTROLPLANE_VAULT_KEY is required")
	}
	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("CONTROLPLANE_JWT_KEY is required")
	}
	return cfg, nil
}
