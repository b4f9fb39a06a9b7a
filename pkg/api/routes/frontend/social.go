package frontend

import (
	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/utils"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

type reactionRequest struct {
	Emoji    string `json:"emoji"`
	IntentID string `json:"intent_id,omitempty"`
}

func (h *Handlers) ToggleReaction(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var req reactionRequest
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	state, err := h.chat.ToggleReaction(ctx, user(ctx), validation.ToggleReaction{
		MessageID: id,
		Emoji:     req.Emoji,
		IntentID:  req.IntentID,
	})
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"message_id": id, "emoji": req.Emoji, "state": state})
}

func (h *Handlers) ListReactions(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	list, err := h.chat.ListReactions(ctx, id, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if list == nil {
		list = []models.Reaction{}
	}
	router.WriteJSONOk(ctx, map[string]any{"reactions": list})
}

// ListNotifications supports ?unread=true and ?limit=.
func (h *Handlers) ListNotifications(ctx *fasthttp.RequestCtx) {
	limit, err := listLimit(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	list, err := h.chat.Notifications(ctx, user(ctx), utils.GetQueryBool(ctx, "unread"), limit)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	router.WriteJSONOk(ctx, map[string]any{"notifications": list})
}

func (h *Handlers) MarkNotificationsRead(ctx *fasthttp.RequestCtx) {
	var req validation.MarkRead
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	n, err := h.chat.MarkNotificationsRead(ctx, user(ctx), req.IDs)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"updated": n})
}

func (h *Handlers) RecordProfileView(ctx *fasthttp.RequestCtx) {
	var req validation.ProfileView
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	recorded, err := h.chat.RecordProfileView(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"recorded": recorded})
}

// ListProfileViews returns who viewed the acting user's profile.
func (h *Handlers) ListProfileViews(ctx *fasthttp.RequestCtx) {
	limit, err := listLimit(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	views, err := h.chat.ProfileViews(ctx, user(ctx), limit)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if views == nil {
		views = []models.ProfileView{}
	}
	router.WriteJSONOk(ctx, map[string]any{"views": views})
}

func (h *Handlers) AnswerIcebreaker(ctx *fasthttp.RequestCtx) {
	var req validation.IcebreakerAnswer
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	ans, err := h.chat.AnswerIcebreaker(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"answer": ans})
}

func (h *Handlers) ListIcebreakerAnswers(ctx *fasthttp.RequestCtx) {
	list, err := h.chat.IcebreakerAnswers(ctx, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if list == nil {
		list = []models.IcebreakerAnswer{}
	}
	router.WriteJSONOk(ctx, map[string]any{"answers": list})
}

func (h *Handlers) SubmitReport(ctx *fasthttp.RequestCtx) {
	var req validation.Report
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	rep, err := h.chat.SubmitReport(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{"report": rep})
}

func (h *Handlers) SubmitAppeal(ctx *fasthttp.RequestCtx) {
	var req validation.Appeal
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	appeal, err := h.chat.SubmitAppeal(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{"appeal": appeal})
}

func (h *Handlers) ListAppeals(ctx *fasthttp.RequestCtx) {
	list, err := h.chat.ListAppeals(ctx, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if list == nil {
		list = []*models.Appeal{}
	}
	router.WriteJSONOk(ctx, map[string]any{"appeals": list})
}
