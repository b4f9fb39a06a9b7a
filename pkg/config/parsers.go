package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "AROOSI_CHAT_"

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
}

// holds the result of loadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// parses command-line flags and returns them as a Flags struct
// you can only pass 3 config values
func ParseConfigFlags() Flags {
	f, _ := ParseConfigFlagsFrom(flag.CommandLine, os.Args[1:])
	return f
}

// ParseConfigFlagsFrom parses args into fs.
func ParseConfigFlagsFrom(fs *flag.FlagSet, args []string) (Flags, error) {
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", "./.chatdb", "Pebble DB path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads environment variables into a new Config and returns it with EnvResult; caller config is unchanged
func ParseConfigEnvs() (*Config, EnvResult, error) {
	return parseEnvs(os.Getenv)
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseEnvs(getenv func(string) string) (*Config, EnvResult, error) {
	envCfg := &Config{}
	used := false
	var errs []error

	get := func(name string) string {
		v := strings.TrimSpace(getenv(envPrefix + name))
		if v != "" {
			used = true
		}
		return v
	}
	intVar := func(name string, dst *int) {
		if v := get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	durVar := func(name string, dst *Duration) {
		if v := get(name); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	sizeVar := func(name string, dst *SizeBytes) {
		if v := get(name); v != "" {
			s, err := parseSize(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = s
		}
	}

	// address: ADDR wins over ADDRESS + PORT
	if v := get("ADDR"); v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		envCfg.Server.Address = get("ADDRESS")
		intVar("PORT", &envCfg.Server.Port)
	}
	envCfg.Server.DBPath = get("DB_PATH")
	durVar("READ_TIMEOUT", &envCfg.Server.ReadTimeout)
	durVar("WRITE_TIMEOUT", &envCfg.Server.WriteTimeout)
	sizeVar("MAX_BODY_SIZE", &envCfg.Server.MaxBodySize)
	envCfg.Server.CORS.AllowedOrigins = parseList(get("CORS_ORIGINS"))
	if v := get("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_RPS: %w", envPrefix, err))
		} else {
			envCfg.Server.RateLimit.RPS = f
		}
	}
	intVar("RATE_BURST", &envCfg.Server.RateLimit.Burst)
	envCfg.Server.APIKeys.Backend = parseList(get("API_BACKEND_KEYS"))
	envCfg.Server.APIKeys.Frontend = parseList(get("API_FRONTEND_KEYS"))
	envCfg.Server.APIKeys.Admin = parseList(get("API_ADMIN_KEYS"))
	envCfg.Server.SigningKeys = parseList(get("SIGNING_KEYS"))

	envCfg.Logging.Level = get("LOG_LEVEL")
	envCfg.Store.Mode = strings.ToLower(get("STORE_MODE"))
	if v := get("STORE_SYNC_WRITES"); v != "" {
		envCfg.Store.SyncWrites = parseBool(v)
	}
	durVar("TELEMETRY_SLOW_THRESHOLD", &envCfg.Telemetry.SlowThreshold)

	ch := &envCfg.Chat
	intVar("TEXT_MAX_LENGTH", &ch.TextMaxLength)
	durVar("TYPING_TTL", &ch.TypingTTL)
	durVar("TYPING_SWEEP_INTERVAL", &ch.TypingSweepInterval)
	durVar("ACTOR_IDLE_TIMEOUT", &ch.ActorIdleTimeout)
	intVar("ACTOR_QUEUE_SIZE", &ch.ActorQueueSize)
	intVar("SEQUENCER_MAX_RETRIES", &ch.SequencerMaxRetries)
	intVar("SESSION_BUFFER", &ch.SessionBuffer)
	durVar("SESSION_RESUME_WINDOW", &ch.SessionResumeWindow)
	intVar("REPLAY_PAGE_SIZE", &ch.ReplayPageSize)
	durVar("REACTION_INTENT_TTL", &ch.ReactionIntentTTL)
	durVar("IDEMPOTENCY_TTL", &ch.IdempotencyTTL)

	if v := get("MAINTENANCE_ENABLED"); v != "" {
		envCfg.Maintenance.Enabled = parseBool(v)
	}
	envCfg.Maintenance.Cron = get("MAINTENANCE_CRON")
	durVar("MAINTENANCE_NOTIFICATION_RETENTION", &envCfg.Maintenance.NotificationRetention)
	if v := get("MAINTENANCE_DRY_RUN"); v != "" {
		envCfg.Maintenance.DryRun = parseBool(v)
	}

	durVar("SENSOR_POLL_INTERVAL", &envCfg.Sensor.PollInterval)
	intVar("SENSOR_DISK_HIGH_PCT", &envCfg.Sensor.DiskHighPct)
	intVar("SENSOR_DISK_LOW_PCT", &envCfg.Sensor.DiskLowPct)

	return envCfg, EnvResult{EnvUsed: used}, errors.Join(errs...)
}

// decides which single source to use (config file or env) and lets
// explicit --addr/--db flags override the listener and db path. if --config
// is set, only the config file is used.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Server.DBPath
		res.Source = "config"
		return res, nil
	}

	base, source := envCfg, "env"
	if fileExists {
		base, source = fileCfg, "config"
	} else if !envRes.EnvUsed {
		source = "defaults"
	}
	if base == nil {
		base = &Config{}
	}

	if flags.Set["addr"] {
		host, port := splitAddr(flags.Addr)
		base.Server.Address = host
		base.Server.Port = port
		source = "flags"
	}
	if flags.Set["db"] {
		base.Server.DBPath = flags.DB
		source = "flags"
	}
	if base.Server.DBPath == "" {
		base.Server.DBPath = flags.DB
	}

	res.Config = base
	res.Addr = base.Addr()
	res.DBPath = base.Server.DBPath
	res.Source = source
	return res, nil
}

// splits host:port, tolerating a bare ":port"
func splitAddr(a string) (string, int) {
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0
	}
	pi, _ := strconv.Atoi(p)
	return h, pi
}
