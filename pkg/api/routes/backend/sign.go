// Package backend serves routes reserved for trusted backend keys.
package backend

import (
	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
)

// Signer issues user signatures for frontend clients.
type Signer interface {
	Sign(userID string) (string, error)
}

type signRequest struct {
	UserID string `json:"user_id"`
}

// Register mounts POST /v1/sign. The gateway keeps frontend keys off it.
func Register(r *router.Router, s Signer) {
	r.POST("/v1/sign", func(ctx *fasthttp.RequestCtx) {
		var req signRequest
		if err := router.DecodeJSON(ctx, &req); err != nil {
			router.WriteError(ctx, err)
			return
		}
		sig, err := s.Sign(req.UserID)
		if err != nil {
			router.WriteError(ctx, err)
			return
		}
		router.WriteJSONOk(ctx, map[string]string{"user_id": req.UserID, "signature": sig})
	})
}
