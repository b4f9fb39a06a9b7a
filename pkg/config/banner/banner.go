package banner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/karthiknish/aroosi-sub016/pkg/config"
)

const banner = `
 █████╗ ██████╗  ██████╗  ██████╗ ███████╗██╗     ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔══██╗██╔═══██╗██╔═══██╗██╔════╝██║    ██╔════╝██║  ██║██╔══██╗╚══██╔══╝
███████║██████╔╝██║   ██║██║   ██║███████╗██║    ██║     ███████║███████║   ██║   
██╔══██║██╔══██╗██║   ██║██║   ██║╚════██║██║    ██║     ██╔══██║██╔══██║   ██║   
██║  ██║██║  ██║╚██████╔╝╚██████╔╝███████║██║    ╚██████╗██║  ██║██║  ██║   ██║   
╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚══════╝╚═╝     ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   
`

// PrintWithEff writes the banner and a startup summary of eff to w.
func PrintWithEff(w io.Writer, eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", addr)
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	cfg := eff.Config
	if cfg == nil {
		return
	}

	fmt.Fprintln(w, "\n== Chat =======================================================")
	fmt.Fprintf(w, "Store:          %s (sync writes: %t)\n", cfg.Store.Mode, cfg.Store.SyncWrites)
	fmt.Fprintf(w, "Max text:       %s characters\n", humanize.Comma(int64(cfg.Chat.TextMaxLength)))
	fmt.Fprintf(w, "Typing TTL:     %s\n", cfg.Chat.TypingTTL)
	fmt.Fprintf(w, "Actor idle:     %s (queue %d)\n", cfg.Chat.ActorIdleTimeout, cfg.Chat.ActorQueueSize)
	fmt.Fprintf(w, "Session buffer: %d events, resume window %s\n", cfg.Chat.SessionBuffer, cfg.Chat.SessionResumeWindow)
	fmt.Fprintf(w, "Max body:       %s\n", cfg.Server.MaxBodySize)

	fmt.Fprintln(w, "\n== Production? =================================================")
	keys := []struct {
		name string
		n    int
		need string
	}{
		{"Backend", len(cfg.Server.APIKeys.Backend), "required for backend services"},
		{"Frontend", len(cfg.Server.APIKeys.Frontend), "required for client access"},
		{"Admin", len(cfg.Server.APIKeys.Admin), "required for admin tooling"},
	}
	for _, k := range keys {
		if k.n > 0 {
			fmt.Fprintf(w, "- %s API keys: OK (%d)\n", k.name, k.n)
		} else {
			fmt.Fprintf(w, "- %s API keys: MISSING (%s)\n", k.name, k.need)
		}
	}
	if cfg.Store.Mode == config.StoreModeMemory {
		fmt.Fprintln(w, "- Store: memory (data is lost on restart)")
	}
	if cfg.Maintenance.Enabled {
		fmt.Fprintf(w, "- Maintenance: enabled (cron=%s, dry_run=%t)\n", cfg.Maintenance.Cron, cfg.Maintenance.DryRun)
	} else {
		fmt.Fprintln(w, "- Maintenance: disabled")
	}
}
