package frontend

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/utils"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/session"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
)

// parseInterests reads every ?c=<conversation>[:<lastSeen>] parameter.
// Last-Event-ID ("<conversation>:<seq>") supplies the position for its
// conversation when the parameter carries none, so a browser EventSource
// reconnect resumes where it stopped.
func parseInterests(ctx *fasthttp.RequestCtx) ([]session.Interest, error) {
	var lastEventConv string
	var lastEventSeq uint64
	if v := utils.GetHeader(ctx, "Last-Event-ID"); v != "" {
		if conv, seq, ok := splitPosition(v); ok {
			lastEventConv, lastEventSeq = conv, seq
		}
	}

	seen := make(map[string]bool)
	var out []session.Interest
	for _, raw := range ctx.QueryArgs().PeekMulti("c") {
		v := strings.TrimSpace(string(raw))
		if v == "" {
			return nil, apperr.Validation("c", "empty conversation")
		}
		in := session.Interest{ConversationID: v}
		if strings.Contains(v, ":") {
			conv, seq, ok := splitPosition(v)
			if !ok {
				return nil, apperr.Validation("c", "last seen must be a non-negative integer")
			}
			in = session.Interest{ConversationID: conv, LastSeen: seq, HasLastSeen: true}
		}
		if seen[in.ConversationID] {
			return nil, apperr.Validation("c", "duplicate conversation "+in.ConversationID)
		}
		seen[in.ConversationID] = true
		if !in.HasLastSeen && in.ConversationID == lastEventConv {
			in.LastSeen, in.HasLastSeen = lastEventSeq, true
		}
		out = append(out, in)
	}
	return out, nil
}

func splitPosition(v string) (string, uint64, bool) {
	i := strings.LastIndexByte(v, ':')
	if i <= 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(v[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return v[:i], seq, true
}

// Stream attaches a session (or resumes ?session=<id>) and writes its
// events as text/event-stream until the client goes away.
func (h *Handlers) Stream(ctx *fasthttp.RequestCtx) {
	select {
	case <-h.drain:
		router.WriteError(ctx, apperr.Unavailable("server shutting down", nil))
		return
	default:
	}

	interests, err := parseInterests(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var s *session.Session
	if id := utils.GetQuery(ctx, "session"); id != "" {
		s, err = h.chat.Resume(ctx, id, user(ctx), interests)
	} else {
		s, err = h.chat.Attach(ctx, user(ctx), interests)
	}
	if err != nil {
		router.WriteError(ctx, err)
		return
	}

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")
	ctx.Response.Header.Set("X-Session-ID", s.ID())

	conn := ctx.Conn()
	events, done := s.Events()
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		h.pump(conn, s, events, done, w)
	})
}

type streamWriter struct {
	conn    net.Conn
	w       *bufio.Writer
	timeout time.Duration
}

func (sw *streamWriter) frame(event, id string, data any) error {
	if sw.timeout > 0 && sw.conn != nil {
		_ = sw.conn.SetWriteDeadline(time.Now().Add(sw.timeout))
	}
	if id != "" {
		fmt.Fprintf(sw.w, "id: %s\n", id)
	}
	if event != "" {
		fmt.Fprintf(sw.w, "event: %s\n", event)
	}
	if data == nil {
		sw.w.WriteString(": ping\n\n")
	} else {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(sw.w, "data: %s\n\n", b)
	}
	return sw.w.Flush()
}

type streamHello struct {
	SessionID     string   `json:"session_id"`
	Conversations []string `json:"conversations"`
}

type streamClose struct {
	Reason string      `json:"reason"`
	Kind   apperr.Kind `json:"kind,omitempty"`
}

func (h *Handlers) pump(conn net.Conn, s *session.Session, events <-chan models.Event, done <-chan struct{}, w *bufio.Writer) {
	sw := &streamWriter{conn: conn, w: w, timeout: h.opts.WriteTimeout}
	lost := func(err error) {
		logger.Info("stream_write_failed", "session", s.ID(), "error", err)
		s.Lost(fmt.Errorf("%w: %v", apperr.ErrTransportLost, err))
	}

	if err := sw.frame("session", "", streamHello{SessionID: s.ID(), Conversations: s.Conversations()}); err != nil {
		lost(err)
		return
	}
	ticker := time.NewTicker(h.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			id := ""
			if ev.Type == models.EventMessageSent {
				id = ev.ConversationID + ":" + strconv.FormatUint(ev.Sequence, 10)
			}
			if err := sw.frame(string(ev.Type), id, ev); err != nil {
				lost(err)
				return
			}
			s.Confirm(ev)
		case <-ticker.C:
			if err := sw.frame("", "", nil); err != nil {
				lost(err)
				return
			}
		case <-done:
			reason := streamClose{Reason: "closed"}
			if err := s.Err(); err != nil {
				reason = streamClose{Reason: err.Error(), Kind: apperr.KindOf(err)}
			}
			_ = sw.frame("close", "", reason)
			return
		case <-h.drain:
			_ = sw.frame("close", "", streamClose{Reason: "server shutting down", Kind: apperr.KindUnavailable})
			return
		}
	}
}

// Drain ends every open stream and refuses new ones. The server calls it
// before shutting the listener down, since streams never end on their own.
func (h *Handlers) Drain() {
	h.drainOnce.Do(func() { close(h.drain) })
}
