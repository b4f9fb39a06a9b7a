package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/karthiknish/aroosi-sub016/pkg/api/auth"
	"github.com/karthiknish/aroosi-sub016/pkg/chat"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
)

const (
	backendKey  = "backend-key"
	frontendKey = "frontend-key"
	adminKey    = "admin-key"
	signingKey  = "signing-key"
)

type env struct {
	api    *API
	chat   *chat.Chat
	ln     *fasthttputil.InmemoryListener
	client *fasthttp.Client
}

func newEnv(t *testing.T, mutate func(*auth.SecConfig)) *env {
	t.Helper()
	sec := auth.SecConfig{
		BackendKeys:  map[string]struct{}{backendKey: {}},
		FrontendKeys: map[string]struct{}{frontendKey: {}},
		AdminKeys:    map[string]struct{}{adminKey: {}},
		SigningKeys:  []string{signingKey},
	}
	if mutate != nil {
		mutate(&sec)
	}
	c := chat.New(memstore.New(), chat.Options{ActorIdleTimeout: time.Minute})
	a := New(c, Options{Security: sec})
	a.Router().GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: a.Handler()}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		a.Drain()
		a.Close()
		_ = ln.Close()
		_ = c.Close(context.Background())
	})
	return &env{
		api:  a,
		chat: c,
		ln:   ln,
		client: &fasthttp.Client{Dial: func(string) (net.Conn, error) {
			return ln.Dial()
		}},
	}
}

type call struct {
	method string
	path   string
	key    string
	user   string
	sig    string
	body   any
}

func (e *env) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://chat.test" + c.path)
	req.Header.SetMethod(c.method)
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.sig != "" {
		req.Header.Set("X-User-Signature", c.sig)
	}
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}
	require.NoError(t, e.client.DoTimeout(req, resp, 2*time.Second))

	var out map[string]any
	if len(resp.Body()) > 0 && strings.HasPrefix(string(resp.Header.ContentType()), "application/json") {
		require.NoError(t, json.Unmarshal(resp.Body(), &out))
	}
	return resp.StatusCode(), out
}

// as builds a backend call acting for user.
func as(user, method, path string, body any) call {
	return call{method: method, path: path, key: backendKey, user: user, body: body}
}

func openConversation(t *testing.T, e *env, creator string, others ...string) string {
	t.Helper()
	status, body := e.do(t, as(creator, "POST", "/v1/conversations", map[string]any{"participants": others}))
	require.Contains(t, []int{fasthttp.StatusCreated, fasthttp.StatusOK}, status, body)
	conv := body["conversation"].(map[string]any)
	return conv["id"].(string)
}

func TestPublicProbeNeedsNoKey(t *testing.T) {
	e := newEnv(t, nil)
	status, _ := e.do(t, call{method: "GET", path: "/healthz"})
	assert.Equal(t, fasthttp.StatusOK, status)
}

func TestGatewayRoles(t *testing.T) {
	e := newEnv(t, nil)
	sig := auth.CreateHMACSignature("alice", signingKey)

	tests := []struct {
		name   string
		call   call
		status int
	}{
		{"no key", call{method: "GET", path: "/v1/conversations", user: "alice"}, fasthttp.StatusUnauthorized},
		{"unknown key", call{method: "GET", path: "/v1/conversations", key: "nope", user: "alice"}, fasthttp.StatusUnauthorized},
		{"backend without user", call{method: "GET", path: "/v1/conversations", key: backendKey}, fasthttp.StatusBadRequest},
		{"backend with user", as("alice", "GET", "/v1/conversations", nil), fasthttp.StatusOK},
		{"frontend unsigned", call{method: "GET", path: "/v1/conversations", key: frontendKey, user: "alice"}, fasthttp.StatusUnauthorized},
		{"frontend bad signature", call{method: "GET", path: "/v1/conversations", key: frontendKey, user: "alice", sig: "00"}, fasthttp.StatusUnauthorized},
		{"frontend signed", call{method: "GET", path: "/v1/conversations", key: frontendKey, user: "alice", sig: sig}, fasthttp.StatusOK},
		{"frontend signature for someone else", call{method: "GET", path: "/v1/conversations", key: frontendKey, user: "bob", sig: sig}, fasthttp.StatusUnauthorized},
		{"frontend cannot sign", call{method: "POST", path: "/v1/sign", key: frontendKey, body: map[string]string{"user_id": "x"}}, fasthttp.StatusForbidden},
		{"backend off admin", call{method: "GET", path: "/admin/stats", key: backendKey}, fasthttp.StatusForbidden},
		{"admin off v1", call{method: "GET", path: "/v1/conversations", key: adminKey, user: "alice"}, fasthttp.StatusForbidden},
		{"admin stats", call{method: "GET", path: "/admin/stats", key: adminKey}, fasthttp.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := e.do(t, tc.call)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestSignIssuesVerifiableSignature(t *testing.T) {
	e := newEnv(t, nil)
	status, body := e.do(t, call{method: "POST", path: "/v1/sign", key: backendKey, body: map[string]string{"user_id": "alice"}})
	require.Equal(t, fasthttp.StatusOK, status)
	sig := body["signature"].(string)
	assert.True(t, auth.VerifyHMACSignature("alice", sig, []string{signingKey}))

	status, _ = e.do(t, call{method: "GET", path: "/v1/conversations", key: frontendKey, user: "alice", sig: sig})
	assert.Equal(t, fasthttp.StatusOK, status)
}

func TestConversationAndMessageRoutes(t *testing.T) {
	e := newEnv(t, nil)
	convID := openConversation(t, e, "alice", "bob")

	status, body := e.do(t, as("bob", "POST", "/v1/conversations", map[string]any{"participants": []string{"alice"}}))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, false, body["created"])
	assert.Equal(t, convID, body["conversation"].(map[string]any)["id"])

	msg := map[string]any{"type": "text", "payload": "salaam", "idempotency_key": "k1"}
	status, body = e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", msg))
	require.Equal(t, fasthttp.StatusCreated, status, body)
	m := body["message"].(map[string]any)
	assert.EqualValues(t, 1, m["sequence"])

	status, body = e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", msg))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, m["id"], body["message"].(map[string]any)["id"])

	status, body = e.do(t, as("bob", "GET", "/v1/conversations/"+convID+"/messages?after=0&limit=10", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["messages"], 1)
	assert.EqualValues(t, 1, body["next_after"])

	status, body = e.do(t, as("bob", "POST", "/v1/conversations/"+convID+"/read", map[string]any{"sequence": 1}))
	require.Equal(t, fasthttp.StatusOK, status, body)
	assert.EqualValues(t, 1, body["cursor"].(map[string]any)["read"])

	status, body = e.do(t, as("bob", "POST", "/v1/conversations/"+convID+"/ack", map[string]any{"sequence": 5}))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])

	status, _ = e.do(t, as("bob", "POST", "/v1/conversations/"+convID+"/typing", map[string]any{"action": "start"}))
	assert.Equal(t, fasthttp.StatusNoContent, status)
	status, body = e.do(t, as("alice", "GET", "/v1/conversations/"+convID+"/typing", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["typing"], 1)

	msgID := m["id"].(string)
	status, body = e.do(t, as("bob", "POST", "/v1/messages/"+msgID+"/reactions", map[string]any{"emoji": "👍"}))
	require.Equal(t, fasthttp.StatusOK, status, body)
	assert.Equal(t, "added", body["state"])
	status, body = e.do(t, as("alice", "GET", "/v1/messages/"+msgID+"/reactions", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["reactions"], 1)
}

func TestCoreErrorsMapToStatus(t *testing.T) {
	e := newEnv(t, nil)
	convID := openConversation(t, e, "alice", "bob")

	status, body := e.do(t, as("mallory", "GET", "/v1/conversations/"+convID, nil))
	assert.Equal(t, fasthttp.StatusForbidden, status)
	assert.Equal(t, "not_participant", body["kind"])

	status, body = e.do(t, as("alice", "GET", "/v1/conversations/missing", nil))
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])

	status, body = e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", map[string]any{"type": "text", "payload": ""}))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "payload", body["field"])

	status, body = e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", map[string]any{"type": "text", "payload": "x", "colour": "red"}))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "body", body["field"])

	status, _ = e.do(t, as("alice", "DELETE", "/v1/conversations/"+convID, nil))
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, status)
}

func TestNotificationsAndSocialRoutes(t *testing.T) {
	e := newEnv(t, nil)
	convID := openConversation(t, e, "alice", "bob")
	status, _ := e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", map[string]any{"type": "text", "payload": "hi"}))
	require.Equal(t, fasthttp.StatusCreated, status)

	status, body := e.do(t, as("bob", "GET", "/v1/notifications?unread=true", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	list := body["notifications"].([]any)
	require.Len(t, list, 1)
	id := list[0].(map[string]any)["id"].(string)

	status, body = e.do(t, as("bob", "POST", "/v1/notifications/read", map[string]any{"ids": []string{id}}))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 1, body["updated"])

	status, body = e.do(t, as("alice", "POST", "/v1/profile-views", map[string]any{"profile_id": "bob"}))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, body["recorded"])
	status, body = e.do(t, as("bob", "GET", "/v1/profile-views", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["views"], 1)

	status, _ = e.do(t, as("alice", "POST", "/v1/icebreakers/answers", map[string]any{"question_id": "q1", "answer": "tea"}))
	require.Equal(t, fasthttp.StatusOK, status)
	status, body = e.do(t, as("alice", "GET", "/v1/icebreakers/answers", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["answers"], 1)

	status, _ = e.do(t, as("alice", "POST", "/v1/reports", map[string]any{"target_id": "bob", "reason": "spam"}))
	assert.Equal(t, fasthttp.StatusCreated, status)

	appeal := map[string]any{"action_id": "ban-1", "reason": "mistake", "details": "I was not spamming"}
	status, _ = e.do(t, as("bob", "POST", "/v1/appeals", appeal))
	assert.Equal(t, fasthttp.StatusCreated, status)
	status, body = e.do(t, as("bob", "POST", "/v1/appeals", appeal))
	assert.Equal(t, fasthttp.StatusConflict, status)
	assert.Equal(t, "conflict", body["kind"])
	status, body = e.do(t, as("bob", "GET", "/v1/appeals", nil))
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, body["appeals"], 1)
}

func TestRateLimitPerIdentity(t *testing.T) {
	e := newEnv(t, func(s *auth.SecConfig) {
		s.RPS = 0.001
		s.Burst = 1
	})
	status, _ := e.do(t, as("alice", "GET", "/v1/conversations", nil))
	assert.Equal(t, fasthttp.StatusOK, status)
	status, _ = e.do(t, as("alice", "GET", "/v1/conversations", nil))
	assert.Equal(t, fasthttp.StatusTooManyRequests, status)
	status, _ = e.do(t, as("bob", "GET", "/v1/conversations", nil))
	assert.Equal(t, fasthttp.StatusOK, status)
}

func TestAdminMetrics(t *testing.T) {
	e := newEnv(t, nil)
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://chat.test/admin/metrics")
	req.Header.Set("X-API-Key", adminKey)
	require.NoError(t, e.client.DoTimeout(req, resp, 2*time.Second))
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "go_goroutines")

	status, _ := e.do(t, call{method: "POST", path: "/admin/maintenance/run", key: adminKey})
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
}

// sseFrame is one parsed event from the stream.
type sseFrame struct {
	id    string
	event string
	data  string
}

func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
			return f
		}
	}
}

func openStream(t *testing.T, e *env, user, query string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := e.ln.Dial()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = fmt.Fprintf(conn, "GET /v1/stream?%s HTTP/1.1\r\nHost: chat.test\r\nX-API-Key: %s\r\nX-User-ID: %s\r\n\r\n", query, backendKey, user)
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "200")
	return conn, r
}

func TestStreamReplaysThenDeliversLive(t *testing.T) {
	e := newEnv(t, nil)
	convID := openConversation(t, e, "alice", "bob")
	for _, text := range []string{"one", "two"} {
		status, _ := e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", map[string]any{"type": "text", "payload": text}))
		require.Equal(t, fasthttp.StatusCreated, status)
	}

	_, r := openStream(t, e, "bob", "c="+convID+":1")
	hello := readFrame(t, r)
	assert.Equal(t, "session", hello.event)

	replayed := readFrame(t, r)
	assert.Equal(t, "message.sent", replayed.event)
	assert.Equal(t, convID+":2", replayed.id)

	status, _ := e.do(t, as("alice", "POST", "/v1/conversations/"+convID+"/messages", map[string]any{"type": "text", "payload": "three"}))
	require.Equal(t, fasthttp.StatusCreated, status)
	live := readFrame(t, r)
	assert.Equal(t, convID+":3", live.id)
	assert.Contains(t, live.data, `"payload":"three"`)
}

func TestStreamRejectsOutsider(t *testing.T) {
	e := newEnv(t, nil)
	convID := openConversation(t, e, "alice", "bob")
	status, body := e.do(t, as("mallory", "GET", "/v1/stream?c="+convID, nil))
	assert.Equal(t, fasthttp.StatusForbidden, status)
	assert.Equal(t, "not_participant", body["kind"])

	status, _ = e.do(t, as("bob", "GET", "/v1/stream?c="+convID+":abc", nil))
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	status, body = e.do(t, as("bob", "GET", "/v1/stream?c="+convID+":50", nil))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "c", body["field"])
}
