// Package admin serves the operator surface under /admin.
package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/karthiknish/aroosi-sub016/internal/maintenance"
	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/chat"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/state/sensor"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

// Maintenance is the scheduler surface exposed to operators.
type Maintenance interface {
	RunOnce(ctx context.Context) (maintenance.Report, error)
	LastReport() (maintenance.Report, bool)
}

// Disk reports the state of the db volume.
type Disk interface {
	Degraded() bool
	Last() sensor.DiskUsage
}

type Handlers struct {
	chat  *chat.Chat
	maint Maintenance
	disk  Disk
}

// New wires the admin handlers. maint and disk may be nil when the
// scheduler or the sensor is disabled.
func New(c *chat.Chat, maint Maintenance, disk Disk) *Handlers {
	return &Handlers{chat: c, maint: maint, disk: disk}
}

func (h *Handlers) Register(r *router.Router) {
	r.GET("/admin/stats", h.Stats)
	r.GET("/admin/metrics", wrapHTTPHandler(promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{})))
	r.GET("/admin/maintenance", h.LastMaintenance)
	r.POST("/admin/maintenance/run", h.RunMaintenance)

	r.GET("/admin/debug/pprof/", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/admin/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/admin/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/admin/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/admin/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))
}

func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

type diskStats struct {
	Degraded   bool    `json:"degraded"`
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

type statsResponse struct {
	chat.Stats
	Disk *diskStats `json:"disk,omitempty"`
}

func (h *Handlers) Stats(ctx *fasthttp.RequestCtx) {
	resp := statsResponse{Stats: h.chat.Stats()}
	if h.disk != nil {
		u := h.disk.Last()
		resp.Disk = &diskStats{Degraded: h.disk.Degraded(), TotalBytes: u.Total, FreeBytes: u.Free, UsedPct: u.UsedPct()}
	}
	router.WriteJSONOk(ctx, resp)
}

func (h *Handlers) LastMaintenance(ctx *fasthttp.RequestCtx) {
	if h.maint == nil {
		router.WriteError(ctx, apperr.Unavailable("maintenance disabled", nil))
		return
	}
	rep, ok := h.maint.LastReport()
	if !ok {
		router.WriteError(ctx, apperr.NotFound("no maintenance run recorded"))
		return
	}
	router.WriteJSONOk(ctx, rep)
}

// RunMaintenance triggers a run outside the cron schedule.
func (h *Handlers) RunMaintenance(ctx *fasthttp.RequestCtx) {
	if h.maint == nil {
		router.WriteError(ctx, apperr.Unavailable("maintenance disabled", nil))
		return
	}
	rep, err := h.maint.RunOnce(ctx)
	switch {
	case errors.Is(err, maintenance.ErrRunInProgress):
		router.WriteError(ctx, apperr.Conflict(err.Error()))
		return
	case err != nil:
		logger.Warn("admin_maintenance_failed", "run_id", rep.RunID, "error", err)
		router.WriteJSON(ctx, fasthttp.StatusInternalServerError, rep)
		return
	}
	router.WriteJSONOk(ctx, rep)
}
