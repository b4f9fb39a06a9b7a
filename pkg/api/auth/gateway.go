package auth

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/utils"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

// Gateway authenticates every request before it reaches the router:
// CORS, API key role, route restrictions, acting user and rate limits.
type Gateway struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGateway(cfg SecConfig) *Gateway {
	return &Gateway{cfg: cfg, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Close stops the limiter cleanup loop.
func (g *Gateway) Close() {
	g.limiters.Shutdown()
}

func (g *Gateway) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		origin := utils.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, g.cfg.AllowedOrigins) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature,Last-Event-ID")
			h.Set("Access-Control-Expose-Headers", "X-Role-Name,X-Session-ID")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if publicAllowedPath(ctx) {
			next(ctx)
			return
		}

		role, key := g.validateAPIKey(ctx)
		if role == RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		}
		ctx.SetUserValue(roleKey, role)
		ctx.Response.Header.Set("X-Role-Name", role.String())

		isAdminPath := utils.HasPathPrefix(ctx, "/admin")
		switch {
		case role == RoleAdmin && !isAdminPath:
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access /admin routes")
			logger.Warn("admin_route_violation", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		case role != RoleAdmin && isAdminPath:
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
			logger.Warn("admin_access_attempt", "role", role.String(), "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		case role == RoleFrontend && !frontendAllowed(ctx):
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
			logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", utils.GetPath(ctx))
			return
		}

		limitKey := key
		if utils.HasPathPrefix(ctx, "/v1/") && !signPath(ctx) {
			userID, status, msg := g.resolveUser(ctx, role)
			if status != 0 {
				router.WriteJSONError(ctx, status, msg)
				return
			}
			ctx.SetUserValue(userKey, userID)
			limitKey = key + "|" + userID
		}

		if !g.limiters.Allow(limitKey) {
			ctx.Response.Header.Set("Retry-After", "1")
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", utils.GetPath(ctx))
			return
		}

		next(ctx)
	}
}

// resolveUser returns the acting user. Frontend callers must present a
// signature over the id; backend callers are trusted but a signature they
// choose to send must still verify.
func (g *Gateway) resolveUser(ctx *fasthttp.RequestCtx, role Role) (string, int, string) {
	tr := telemetry.Track("auth.resolve_user")
	defer tr.Finish()

	userID := utils.GetUserID(ctx)
	if userID == "" {
		return "", fasthttp.StatusBadRequest, "X-User-ID required"
	}
	if len(userID) > maxUserIDLength {
		return "", fasthttp.StatusBadRequest, "X-User-ID too long"
	}
	sig := utils.GetUserSignature(ctx)
	if sig == "" {
		if role == RoleFrontend {
			logger.Warn("missing_signature_headers", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return "", fasthttp.StatusUnauthorized, "missing signature headers"
		}
		return userID, 0, ""
	}
	tr.Mark("verify_signature")
	if !VerifyHMACSignature(userID, sig, g.cfg.SigningKeys) {
		logger.Warn("invalid_signature", "user", userID, "remote", ctx.RemoteAddr().String(), "path", utils.GetPath(ctx))
		return "", fasthttp.StatusUnauthorized, "invalid signature"
	}
	logger.Debug("signature_verified", "user", userID, "path", utils.GetPath(ctx))
	return userID, 0, ""
}

func (g *Gateway) validateAPIKey(ctx *fasthttp.RequestCtx) (Role, string) {
	key := utils.ExtractAPIKey(ctx)
	if key == "" {
		return RoleUnauth, ""
	}
	if _, ok := g.cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := g.cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := g.cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

// frontendAllowed keeps browser keys on the user facing /v1 surface.
func frontendAllowed(ctx *fasthttp.RequestCtx) bool {
	return utils.HasPathPrefix(ctx, "/v1/") && !signPath(ctx)
}

func signPath(ctx *fasthttp.RequestCtx) bool {
	return utils.GetPath(ctx) == "/v1/sign"
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := utils.GetPath(ctx)
	return (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}
