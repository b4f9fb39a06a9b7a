package utils

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
)

// GetHeader returns the trimmed header value.
func GetHeader(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(key)))
}

// GetQuery returns the trimmed query parameter value.
func GetQuery(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// GetQueryInt parses an integer query parameter. A missing value yields def;
// a malformed one is a validation error naming the parameter.
func GetQueryInt(ctx *fasthttp.RequestCtx, key string, def int) (int, error) {
	v := GetQuery(ctx, key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key, "must be a non-negative integer")
	}
	return n, nil
}

// GetQueryUint is GetQueryInt for sequence numbers.
func GetQueryUint(ctx *fasthttp.RequestCtx, key string) (uint64, error) {
	v := GetQuery(ctx, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, apperr.Validation(key, "must be a non-negative integer")
	}
	return n, nil
}

// GetQueryBool treats "1", "true" and "yes" as true.
func GetQueryBool(ctx *fasthttp.RequestCtx, key string) bool {
	switch strings.ToLower(GetQuery(ctx, key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// GetPathParam returns a {name} segment captured by the router.
func GetPathParam(ctx *fasthttp.RequestCtx, name string) string {
	if s, ok := ctx.UserValue(name).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func GetPath(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Path())
}

func HasPathPrefix(ctx *fasthttp.RequestCtx, prefix string) bool {
	return strings.HasPrefix(GetPath(ctx), prefix)
}
