package app

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/karthiknish/aroosi-sub016/pkg/chat"
	"github.com/karthiknish/aroosi-sub016/pkg/config"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

func newTestApp(t *testing.T) (*App, *fasthttp.Client) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.Mode = config.StoreModeMemory
	cfg.Server.APIKeys.Admin = []string{"admin"}
	eff := config.EffectiveConfigResult{Config: cfg, DBPath: t.TempDir(), Source: "defaults"}

	a, err := New(eff, "test", "none", "unknown")
	require.NoError(t, err)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, a.Handler()) }()
	t.Cleanup(func() { _ = ln.Close() })
	return a, &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func get(t *testing.T, c *fasthttp.Client, path string) (int, probeResponse) {
	t.Helper()
	status, body, err := c.GetTimeout(nil, "http://app.test"+path, 2*time.Second)
	require.NoError(t, err)
	var out probeResponse
	_ = json.Unmarshal(body, &out)
	return status, out
}

func TestProbes(t *testing.T) {
	a, c := newTestApp(t)

	status, _ := get(t, c, "/healthz")
	assert.Equal(t, fasthttp.StatusOK, status)

	status, body := get(t, c, "/readyz")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
	assert.Equal(t, "initialized", body.Reason)

	a.setState("running")
	status, body = get(t, c, "/readyz")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "test", body.Version)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, "stopped", a.State())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Mode = config.StoreModeMemory
	cfg.Maintenance.Enabled = true
	cfg.Maintenance.Cron = "not a cron"
	_, err := New(config.EffectiveConfigResult{Config: cfg}, "test", "none", "unknown")
	assert.Error(t, err)
}

func TestChatOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, cfg.ValidateConfig())
	opts := chatOptions(cfg.Chat)
	assert.Equal(t, 4000, opts.TextMaxLength)
	assert.Equal(t, 5*time.Second, opts.TypingTTL)
	assert.Equal(t, 24*time.Hour, opts.IdempotencyTTL)
}

// stalledStore blocks AppendMessage until release is closed.
type stalledStore struct {
	*memstore.Store
	entered chan struct{}
	release chan struct{}
}

func (s *stalledStore) AppendMessage(ctx context.Context, m *models.Message) error {
	close(s.entered)
	<-s.release
	return s.Store.AppendMessage(ctx, m)
}

func TestShutdownKeepsStoreWhileActorsRun(t *testing.T) {
	a, _ := newTestApp(t)
	st := &stalledStore{Store: memstore.New(), entered: make(chan struct{}), release: make(chan struct{})}
	a.chat = chat.New(st, chatOptions(config.ChatConfig{}))
	closed := false
	a.closeStore = func() error { closed = true; return nil }

	ctx := context.Background()
	conv, _, err := a.chat.OpenConversation(ctx, "alice", validation.OpenConversation{Participants: []string{"alice", "bob"}})
	require.NoError(t, err)
	go func() {
		_, _, _ = a.chat.Submit(ctx, "alice", validation.SendMessage{ConversationID: conv.ID, Type: models.MessageText, Payload: "hi"})
	}()
	<-st.entered

	sctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = a.Shutdown(sctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, closed, "store closed under a running actor")
	assert.Equal(t, "shutting_down", a.State())

	close(st.release)
}
