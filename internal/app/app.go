package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/internal/maintenance"
	"github.com/karthiknish/aroosi-sub016/pkg/api"
	"github.com/karthiknish/aroosi-sub016/pkg/api/auth"
	"github.com/karthiknish/aroosi-sub016/pkg/api/routes/admin"
	"github.com/karthiknish/aroosi-sub016/pkg/api/routes/frontend"
	"github.com/karthiknish/aroosi-sub016/pkg/chat"
	"github.com/karthiknish/aroosi-sub016/pkg/config"
	"github.com/karthiknish/aroosi-sub016/pkg/config/banner"
	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/state/sensor"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
	"github.com/karthiknish/aroosi-sub016/pkg/store/pebblestore"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store      store.Store
	closeStore func() error
	chat       *chat.Chat
	api        *api.API
	sensor     *sensor.Sensor
	maint      *maintenance.Scheduler

	srvFast    *fasthttp.Server
	probesOnce sync.Once
	bgCancel   context.CancelFunc
	bg         sync.WaitGroup

	mu    sync.Mutex
	state string
}

// New opens the store and builds every component. It starts nothing; Run
// does. The caller must have called state.Init.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config
	telemetry.SetSlowThreshold(cfg.Telemetry.SlowThreshold.Duration())

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, state: "initialized"}
	if a.eff.Addr == "" {
		a.eff.Addr = cfg.Addr()
	}

	switch cfg.Store.Mode {
	case config.StoreModeMemory:
		logger.Warn("store_in_memory", "msg", "data is lost on restart")
		a.store = memstore.New()
		a.closeStore = func() error { return nil }
	default:
		if state.PathsVar.Store == "" {
			return nil, fmt.Errorf("state paths not initialized")
		}
		ps, err := pebblestore.Open(state.PathsVar.Store, pebblestore.Options{SyncWrites: cfg.Store.SyncWrites})
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
		}
		a.store = ps
		a.closeStore = ps.Close
	}

	a.chat = chat.New(a.store, chatOptions(cfg.Chat))

	a.sensor = sensor.NewSensor(sensor.MonitorConfig{
		Path:         eff.DBPath,
		PollInterval: cfg.Sensor.PollInterval.Duration(),
		DiskHighPct:  cfg.Sensor.DiskHighPct,
		DiskLowPct:   cfg.Sensor.DiskLowPct,
	})

	var maint admin.Maintenance
	if cfg.Maintenance.Enabled {
		m, err := maintenance.New(a.chat, maintenance.Options{
			Cron:                  cfg.Maintenance.Cron,
			NotificationRetention: cfg.Maintenance.NotificationRetention.Duration(),
			DryRun:                cfg.Maintenance.DryRun,
			RecordDir:             state.PathsVar.Maintenance,
		})
		if err != nil {
			_ = a.closeStore()
			return nil, err
		}
		a.maint = m
		maint = m
	}

	a.api = api.New(a.chat, api.Options{
		Security:    auth.NewSecConfig(cfg.Server),
		Stream:      frontend.Options{WriteTimeout: cfg.Server.WriteTimeout.Duration()},
		Maintenance: maint,
		Disk:        a.sensor,
	})
	return a, nil
}

func chatOptions(c config.ChatConfig) chat.Options {
	return chat.Options{
		TextMaxLength:       c.TextMaxLength,
		TypingTTL:           c.TypingTTL.Duration(),
		TypingSweepInterval: c.TypingSweepInterval.Duration(),
		ActorIdleTimeout:    c.ActorIdleTimeout.Duration(),
		ActorQueueSize:      c.ActorQueueSize,
		SequencerMaxRetries: c.SequencerMaxRetries,
		SessionBuffer:       c.SessionBuffer,
		SessionResumeWindow: c.SessionResumeWindow.Duration(),
		ReplayPageSize:      c.ReplayPageSize,
		ReactionIntentTTL:   c.ReactionIntentTTL.Duration(),
		IdempotencyTTL:      c.IdempotencyTTL.Duration(),
	}
}

func (a *App) setState(s string) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *App) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Run starts background work and the http server, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner(os.Stdout)

	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel

	_ = a.sensor.Check()
	a.goBackground(func() { a.sensor.Run(bgCtx) })
	a.goBackground(func() { a.chat.Run(bgCtx) })
	if a.maint != nil {
		a.goBackground(func() { a.maint.Run(bgCtx) })
	}

	errCh := a.startHTTP()
	a.setState("running")
	logger.Info("server_started", "addr", a.eff.Addr, "store", a.eff.Config.Store.Mode)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (a *App) goBackground(fn func()) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn()
	}()
}

func (a *App) printBanner(w io.Writer) {
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	cfg := a.eff.Config
	logger.LogConfigSummary("chat_limits_summary", []string{
		fmt.Sprintf("rate_limit: %.0f rps (burst %s)", cfg.Server.RateLimit.RPS, humanize.Comma(int64(cfg.Server.RateLimit.Burst))),
		fmt.Sprintf("max_body_size: %s", cfg.Server.MaxBodySize),
		fmt.Sprintf("replay_page_size: %s", humanize.Comma(int64(cfg.Chat.ReplayPageSize))),
		fmt.Sprintf("maintenance: %t (%s)", cfg.Maintenance.Enabled, cfg.Maintenance.Cron),
	})
	banner.PrintWithEff(w, a.eff, ver)
}
