package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"github.com/karthiknish/aroosi-sub016/internal/app"
	"github.com/karthiknish/aroosi-sub016/pkg/config"
	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/state/shutdown"
)

// set by the build
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 20 * time.Second

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err)
	}

	envCfg, envRes, err := config.ParseConfigEnvs()
	if err != nil {
		shutdown.Abort("failed to parse environment", err)
	}

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err)
	}

	if err := config.ValidateConfig(eff); err != nil {
		shutdown.Abort("invalid configuration", err)
	}

	logger.Init(eff.Config.Logging.Level)
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	if err := state.Init(eff.DBPath); err != nil {
		shutdown.Abort(fmt.Sprintf("failed to ensure state directories under %s", eff.DBPath), err)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}

	if runErr != nil {
		state.Crash("app run failed", runErr)
	}
}
