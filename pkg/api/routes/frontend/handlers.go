// Package frontend serves the user facing /v1 surface. Every handler acts
// as the user resolved by the auth gateway.
package frontend

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/auth"
	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/utils"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/chat"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	defaultHeartbeat = 15 * time.Second
)

type Options struct {
	// WriteTimeout bounds each stream write. Zero disables the deadline.
	WriteTimeout time.Duration
	// Heartbeat is the idle interval between SSE comment frames.
	Heartbeat time.Duration
}

type Handlers struct {
	chat *chat.Chat
	opts Options

	drain     chan struct{}
	drainOnce sync.Once
}

func New(c *chat.Chat, opts Options) *Handlers {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	return &Handlers{chat: c, opts: opts, drain: make(chan struct{})}
}

// Register mounts the /v1 routes.
func (h *Handlers) Register(r *router.Router) {
	r.POST("/v1/conversations", h.OpenConversation)
	r.GET("/v1/conversations", h.ListConversations)
	r.GET("/v1/conversations/{id}", h.GetConversation)
	r.POST("/v1/conversations/{id}/messages", h.SubmitMessage)
	r.GET("/v1/conversations/{id}/messages", h.ListMessages)
	r.POST("/v1/conversations/{id}/ack", h.Acknowledge)
	r.POST("/v1/conversations/{id}/read", h.MarkRead)
	r.POST("/v1/conversations/{id}/typing", h.SetTyping)
	r.GET("/v1/conversations/{id}/typing", h.Typers)

	r.POST("/v1/messages/{id}/reactions", h.ToggleReaction)
	r.GET("/v1/messages/{id}/reactions", h.ListReactions)

	r.GET("/v1/notifications", h.ListNotifications)
	r.POST("/v1/notifications/read", h.MarkNotificationsRead)

	r.POST("/v1/profile-views", h.RecordProfileView)
	r.GET("/v1/profile-views", h.ListProfileViews)
	r.POST("/v1/icebreakers/answers", h.AnswerIcebreaker)
	r.GET("/v1/icebreakers/answers", h.ListIcebreakerAnswers)
	r.POST("/v1/reports", h.SubmitReport)
	r.POST("/v1/appeals", h.SubmitAppeal)
	r.GET("/v1/appeals", h.ListAppeals)

	r.GET("/v1/stream", h.Stream)
}

func pathID(ctx *fasthttp.RequestCtx) (string, error) {
	id := utils.GetPathParam(ctx, "id")
	if id == "" {
		return "", apperr.Validation("id", "required")
	}
	return id, nil
}

func listLimit(ctx *fasthttp.RequestCtx) (int, error) {
	limit, err := utils.GetQueryInt(ctx, "limit", defaultListLimit)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func user(ctx *fasthttp.RequestCtx) string {
	return auth.UserID(ctx)
}
