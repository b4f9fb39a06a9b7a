package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Store       StoreConfig       `yaml:"store"`
	Chat        ChatConfig        `yaml:"chat"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Sensor      SensorConfig      `yaml:"sensor"`
}

// ServerConfig holds http listener and access settings.
type ServerConfig struct {
	Address      string    `yaml:"address"`
	Port         int       `yaml:"port"`
	DBPath       string    `yaml:"db_path"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	MaxBodySize  SizeBytes `yaml:"max_body_size"`
	CORS         struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	APIKeys struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
	// SigningKeys verify X-User-Signature on frontend requests. The first
	// key signs, all keys verify.
	SigningKeys []string `yaml:"signing_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Mode       string `yaml:"mode"` // "pebble" or "memory"
	SyncWrites bool   `yaml:"sync_writes"`
}

// ChatConfig tunes the messaging core.
type ChatConfig struct {
	TextMaxLength       int      `yaml:"text_max_length"`
	TypingTTL           Duration `yaml:"typing_ttl"`
	TypingSweepInterval Duration `yaml:"typing_sweep_interval"`
	ActorIdleTimeout    Duration `yaml:"actor_idle_timeout"`
	ActorQueueSize      int      `yaml:"actor_queue_size"`
	SequencerMaxRetries int      `yaml:"sequencer_max_retries"`
	SessionBuffer       int      `yaml:"session_buffer"`
	SessionResumeWindow Duration `yaml:"session_resume_window"`
	ReplayPageSize      int      `yaml:"replay_page_size"`
	ReactionIntentTTL   Duration `yaml:"reaction_intent_ttl"`
	IdempotencyTTL      Duration `yaml:"idempotency_ttl"`
}

// MaintenanceConfig holds configuration for the scheduled purge runner.
type MaintenanceConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Cron                  string   `yaml:"cron"`
	NotificationRetention Duration `yaml:"notification_retention"`
	DryRun                bool     `yaml:"dry_run"`
}

// TelemetryConfig controls slow-operation logging.
type TelemetryConfig struct {
	SlowThreshold Duration `yaml:"slow_threshold"`
}

// SensorConfig holds disk monitor tuning knobs.
type SensorConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	DiskHighPct  int      `yaml:"disk_high_pct"`
	DiskLowPct   int      `yaml:"disk_low_pct"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
