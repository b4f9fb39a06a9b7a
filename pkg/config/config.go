package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = 8080
	defaultReadTimeout   = 15 * time.Second
	defaultWriteTimeout  = 15 * time.Second
	defaultMaxBodySize   = 1 << 20
	defaultRateRPS       = 50
	defaultRateBurst     = 100
	defaultStoreMode     = StoreModePebble
	defaultLogLevel      = "info"
	defaultSlowThreshold = 200 * time.Millisecond

	// chat defaults
	defaultTextMaxLength       = 4000
	defaultTypingTTL           = 5 * time.Second
	defaultTypingSweepInterval = time.Second
	defaultActorIdleTimeout    = 2 * time.Minute
	defaultActorQueueSize      = 256
	defaultSequencerMaxRetries = 3
	defaultSessionBuffer       = 512
	defaultSessionResumeWindow = 2 * time.Minute
	defaultReplayPageSize      = 200
	defaultReactionIntentTTL   = 30 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour

	// maintenance defaults
	defaultMaintenanceCron       = "*/15 * * * *"
	defaultNotificationRetention = 30 * 24 * time.Hour

	// sensor defaults
	defaultSensorPollInterval = 5 * time.Second
	defaultSensorDiskHighPct  = 90
	defaultSensorDiskLowPct   = 80
)

const (
	StoreModePebble = "pebble"
	StoreModeMemory = "memory"
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error if
// any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	s := &c.Server
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(defaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if s.MaxBodySize == 0 {
		s.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if s.RateLimit.RPS <= 0 {
		s.RateLimit.RPS = defaultRateRPS
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = defaultRateBurst
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Telemetry.SlowThreshold == 0 {
		c.Telemetry.SlowThreshold = Duration(defaultSlowThreshold)
	}

	c.Store.Mode = strings.ToLower(strings.TrimSpace(c.Store.Mode))
	if c.Store.Mode == "" {
		c.Store.Mode = defaultStoreMode
	}
	if c.Store.Mode != StoreModePebble && c.Store.Mode != StoreModeMemory {
		return fmt.Errorf("invalid store.mode %q: must be pebble or memory", c.Store.Mode)
	}

	ch := &c.Chat
	setInt(&ch.TextMaxLength, defaultTextMaxLength)
	setDuration(&ch.TypingTTL, defaultTypingTTL)
	setDuration(&ch.TypingSweepInterval, defaultTypingSweepInterval)
	setDuration(&ch.ActorIdleTimeout, defaultActorIdleTimeout)
	setInt(&ch.ActorQueueSize, defaultActorQueueSize)
	setInt(&ch.SequencerMaxRetries, defaultSequencerMaxRetries)
	setInt(&ch.SessionBuffer, defaultSessionBuffer)
	setDuration(&ch.SessionResumeWindow, defaultSessionResumeWindow)
	setInt(&ch.ReplayPageSize, defaultReplayPageSize)
	setDuration(&ch.ReactionIntentTTL, defaultReactionIntentTTL)
	setDuration(&ch.IdempotencyTTL, defaultIdempotencyTTL)
	if ch.TypingSweepInterval > ch.TypingTTL {
		return fmt.Errorf("chat.typing_sweep_interval (%s) must not exceed chat.typing_ttl (%s)", ch.TypingSweepInterval, ch.TypingTTL)
	}

	m := &c.Maintenance
	if m.Cron == "" {
		m.Cron = defaultMaintenanceCron
	}
	setDuration(&m.NotificationRetention, defaultNotificationRetention)
	if !gronx.IsValid(m.Cron) {
		return fmt.Errorf("invalid maintenance cron expression: %s", m.Cron)
	}

	setDuration(&c.Sensor.PollInterval, defaultSensorPollInterval)
	setInt(&c.Sensor.DiskHighPct, defaultSensorDiskHighPct)
	setInt(&c.Sensor.DiskLowPct, defaultSensorDiskLowPct)
	if c.Sensor.DiskHighPct > 100 || c.Sensor.DiskLowPct >= c.Sensor.DiskHighPct {
		return fmt.Errorf("invalid sensor thresholds: low %d%% must be below high %d%% (max 100)", c.Sensor.DiskLowPct, c.Sensor.DiskHighPct)
	}
	return nil
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *Duration, def time.Duration) {
	if *v <= 0 {
		*v = Duration(def)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("AROOSI_CHAT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
