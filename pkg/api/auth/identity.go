package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/config"
)

// Role is the caller class derived from its API key.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

const (
	userKey = "auth.user"
	roleKey = "auth.role"

	maxUserIDLength = 128
)

// SecConfig is the access policy enforced by the gateway.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
	// SigningKeys verify X-User-Signature. The first one signs.
	SigningKeys []string
}

// NewSecConfig builds the policy from the server section of the config.
func NewSecConfig(s config.ServerConfig) SecConfig {
	cfg := SecConfig{
		AllowedOrigins: append([]string(nil), s.CORS.AllowedOrigins...),
		RPS:            s.RateLimit.RPS,
		Burst:          s.RateLimit.Burst,
		BackendKeys:    toSet(s.APIKeys.Backend),
		FrontendKeys:   toSet(s.APIKeys.Frontend),
		AdminKeys:      toSet(s.APIKeys.Admin),
		SigningKeys:    append([]string(nil), s.SigningKeys...),
	}
	return cfg
}

func toSet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// CreateHMACSignature returns hex(HMAC-SHA256(userID, key)).
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature accepts a signature made with any of keys.
func VerifyHMACSignature(userID, signature string, keys []string) bool {
	for _, k := range keys {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// UserID is the acting user resolved by the gateway, or "" on public
// routes.
func UserID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(userKey).(string)
	return id
}

// RoleOf returns the caller role resolved by the gateway.
func RoleOf(ctx *fasthttp.RequestCtx) Role {
	r, _ := ctx.UserValue(roleKey).(Role)
	return r
}

// ErrNoSigningKey is returned by Sign when no signing key is configured.
var ErrNoSigningKey = apperr.Unavailable("no signing key configured", nil)

// Sign issues the X-User-Signature value for userID with the first
// signing key.
func (g *Gateway) Sign(userID string) (string, error) {
	if userID == "" {
		return "", apperr.Validation("user_id", "required")
	}
	if len(userID) > maxUserIDLength {
		return "", apperr.Validation("user_id", "too long")
	}
	if len(g.cfg.SigningKeys) == 0 {
		return "", ErrNoSigningKey
	}
	return CreateHMACSignature(userID, g.cfg.SigningKeys[0]), nil
}
