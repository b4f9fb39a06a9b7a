package router

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
)

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
	Field string      `json:"field,omitempty"`
}

// WriteJSON writes data with the given status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, data any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(data); err != nil {
		logger.Error("response_encode_failed", "path", string(ctx.Path()), "error", err)
	}
}

// WriteJSONOk writes data with status 200.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data any) {
	WriteJSON(ctx, fasthttp.StatusOK, data)
}

// WriteJSONError writes a plain error body for failures raised by the
// transport itself (auth, routing, rate limits).
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, errorBody{Error: message})
}

// WriteError maps a core error to its status and writes
// {"error","kind","field"}. Internal causes are logged, never returned.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: "internal error", Kind: apperr.KindInternal}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		body = errorBody{Error: ae.Reason, Kind: ae.Kind, Field: ae.Field}
	}
	if status >= fasthttp.StatusInternalServerError {
		logger.Error("request_failed", "method", string(ctx.Method()), "path", string(ctx.Path()), "status", status, "error", err)
	} else {
		logger.Debug("request_rejected", "method", string(ctx.Method()), "path", string(ctx.Path()), "status", status, "error", err)
	}
	if apperr.IsTransient(err) {
		ctx.Response.Header.Set("Retry-After", "1")
	}
	WriteJSON(ctx, status, body)
}
