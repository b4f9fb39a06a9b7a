package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
)

type probeResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (a *App) healthzHandler(ctx *fasthttp.RequestCtx) {
	router.WriteJSONOk(ctx, probeResponse{Status: "ok"})
}

// readyzHandler fails while the store cannot answer a ping or the disk
// sensor reports the volume nearly full.
func (a *App) readyzHandler(ctx *fasthttp.RequestCtx) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.chat.Ping(pingCtx); err != nil {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, probeResponse{Status: "not ready", Reason: "store unavailable"})
		return
	}
	if a.sensor.Degraded() {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, probeResponse{Status: "not ready", Reason: "disk nearly full"})
		return
	}
	if s := a.State(); s != "running" {
		router.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, probeResponse{Status: "not ready", Reason: s})
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	router.WriteJSONOk(ctx, probeResponse{Status: "ok", Version: ver})
}

// Handler returns the full request pipeline. Exposed for tests.
func (a *App) Handler() fasthttp.RequestHandler {
	a.probesOnce.Do(func() {
		r := a.api.Router()
		r.GET("/healthz", a.healthzHandler)
		r.GET("/readyz", a.readyzHandler)
	})
	return a.api.Handler()
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers its terminal error.
func (a *App) startHTTP() <-chan error {
	srv := a.eff.Config.Server
	const (
		readBufferSize       = 64 * 1024
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:               "aroosi-chat",
		Handler:            a.Handler(),
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: int(srv.MaxBodySize.Int64()),
		ReadTimeout:        srv.ReadTimeout.Duration(),
		// streams manage their own per-frame write deadline
		WriteTimeout:         0,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
		CloseOnShutdown:      true,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
