package frontend

import (
	"github.com/valyala/fasthttp"

	"github.com/karthiknish/aroosi-sub016/pkg/api/router"
	"github.com/karthiknish/aroosi-sub016/pkg/api/utils"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

type conversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

// OpenConversation answers 201 for a new conversation and 200 when the
// participant set already had one.
func (h *Handlers) OpenConversation(ctx *fasthttp.RequestCtx) {
	var req validation.OpenConversation
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	conv, created, err := h.chat.OpenConversation(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	status := fasthttp.StatusOK
	if created {
		status = fasthttp.StatusCreated
	}
	router.WriteJSON(ctx, status, conversationResponse{Conversation: conv, Created: created})
}

func (h *Handlers) ListConversations(ctx *fasthttp.RequestCtx) {
	convs, err := h.chat.Conversations(ctx, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	router.WriteJSONOk(ctx, map[string]any{"conversations": convs})
}

func (h *Handlers) GetConversation(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	conv, err := h.chat.Conversation(ctx, id, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"conversation": conv})
}

type submitResponse struct {
	Message   *models.Message `json:"message"`
	Duplicate bool            `json:"duplicate"`
}

// SubmitMessage answers 201 for a newly sequenced message and 200 when the
// idempotency key matched an earlier submission.
func (h *Handlers) SubmitMessage(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var req validation.SendMessage
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if req.ConversationID != "" && req.ConversationID != id {
		router.WriteError(ctx, apperr.Validation("conversation_id", "does not match path"))
		return
	}
	req.ConversationID = id
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = utils.GetHeader(ctx, "Idempotency-Key")
	}
	msg, dup, err := h.chat.Submit(ctx, user(ctx), req)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	status := fasthttp.StatusCreated
	if dup {
		status = fasthttp.StatusOK
	}
	router.WriteJSON(ctx, status, submitResponse{Message: msg, Duplicate: dup})
}

// ListMessages pages forward from ?after= in sequence order.
func (h *Handlers) ListMessages(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	after, err := utils.GetQueryUint(ctx, "after")
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	limit, err := listLimit(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	msgs, err := h.chat.ListMessages(ctx, id, user(ctx), after, limit)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	resp := map[string]any{"messages": msgs, "has_more": len(msgs) == limit}
	if n := len(msgs); n > 0 {
		resp["next_after"] = msgs[n-1].Sequence
	}
	router.WriteJSONOk(ctx, resp)
}

type cursorRequest struct {
	Sequence uint64 `json:"sequence"`
}

func (h *Handlers) Acknowledge(ctx *fasthttp.RequestCtx) {
	h.advanceCursor(ctx, false)
}

func (h *Handlers) MarkRead(ctx *fasthttp.RequestCtx) {
	h.advanceCursor(ctx, true)
}

func (h *Handlers) advanceCursor(ctx *fasthttp.RequestCtx, read bool) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var req cursorRequest
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if req.Sequence == 0 {
		router.WriteError(ctx, apperr.Validation("sequence", "must be positive"))
		return
	}
	var cur models.Cursor
	if read {
		cur, err = h.chat.MarkConversationRead(ctx, id, user(ctx), req.Sequence)
	} else {
		cur, err = h.chat.Acknowledge(ctx, id, user(ctx), req.Sequence)
	}
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"cursor": cur})
}

type typingRequest struct {
	Action models.TypingAction `json:"action"`
}

func (h *Handlers) SetTyping(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	var req typingRequest
	if err := router.DecodeJSON(ctx, &req); err != nil {
		router.WriteError(ctx, err)
		return
	}
	if err := h.chat.SetTyping(ctx, user(ctx), validation.Typing{ConversationID: id, Action: req.Action}); err != nil {
		router.WriteError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *Handlers) Typers(ctx *fasthttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	typers, err := h.chat.Typers(ctx, id, user(ctx))
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	if typers == nil {
		typers = []models.TypingIndicator{}
	}
	router.WriteJSONOk(ctx, map[string]any{"typing": typers})
}
