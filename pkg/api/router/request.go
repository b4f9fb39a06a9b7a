package router

import (
	"bytes"
	"encoding/json"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
)

// DecodeJSON unmarshals the request body into v. Unknown fields are
// rejected so client typos surface as validation errors.
func DecodeJSON(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(bytes.TrimSpace(body)) == 0 {
		return apperr.Validation("body", "required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("body", "invalid json: "+err.Error())
	}
	return nil
}
