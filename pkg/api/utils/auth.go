package utils

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// ExtractAPIKey reads "Authorization: Bearer <key>", falling back to
// X-API-Key.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if auth := GetHeader(ctx, "Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return GetHeader(ctx, "X-API-Key")
}

func GetUserID(ctx *fasthttp.RequestCtx) string {
	return GetHeader(ctx, "X-User-ID")
}

func GetUserSignature(ctx *fasthttp.RequestCtx) string {
	return GetHeader(ctx, "X-User-Signature")
}
