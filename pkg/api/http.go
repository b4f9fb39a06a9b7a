// Package api is the HTTP transport over the chat core.
package api

import (
	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/auth"
	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/routes/admin"
	"github.com/karthiknish/aroosi-sub016/pkg/api/routes/backend"
	"github.com/karthiknish/aroosi-sub016/pkg/api/routes/frontend"
	"github.com/karthiknish/aroosi-sub016/pkg/chat"
)

type Options struct {
	Security auth.SecConfig
	Stream   frontend.Options
	// Maintenance and Disk are optional.
	Maintenance admin.Maintenance
	Disk        admin.Disk
}

type API struct {
	router   *router.Router
	gateway  *auth.Gateway
	frontend *frontend.Handlers
}

// New registers every route against c.
func New(c *chat.Chat, opts Options) *API {
	a := &API{
		router:   router.New(),
		gateway:  auth.NewGateway(opts.Security),
		frontend: frontend.New(c, opts.Stream),
	}
	a.frontend.Register(a.router)
	backend.Register(a.router, a.gateway)
	admin.New(c, opts.Maintenance, opts.Disk).Register(a.router)
	return a
}

// Router exposes the route table so the process can add probes.
func (a *API) Router() *router.Router { return a.router }

// Handler returns the authenticated entry point for the server.
func (a *API) Handler() fasthttp.RequestHandler {
	return a.gateway.Middleware(a.router.Handler)
}

// Drain ends open event streams ahead of a server shutdown.
func (a *API) Drain() { a.frontend.Drain() }

// Close releases the gateway's background state.
func (a *API) Close() { a.gateway.Close() }
