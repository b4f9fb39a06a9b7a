// Package validation holds the inbound payload contracts checked before a
// request reaches the messaging core.
package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
)

const (
	DefaultTextMaxLength = 4000
	MaxEmojiBytes        = 64
	MaxMarkReadBatch     = 500
	AppealReasonMax      = 500
	AppealDetailsMax     = 2000
	IcebreakerAnswerMax  = 500
	ReportDetailsMax     = 2000
	MaxParticipants      = 50
	MaxIdempotencyKey    = 128
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result accumulates field errors in the order they were found.
type Result struct {
	Errors []FieldError
}

func (r *Result) Add(field, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: message})
}

func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil when valid, otherwise a validation error naming the first
// offending field.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	first := r.Errors[0]
	msg := first.Message
	if len(r.Errors) > 1 {
		parts := make([]string, 0, len(r.Errors)-1)
		for _, e := range r.Errors[1:] {
			parts = append(parts, e.Field+": "+e.Message)
		}
		msg += " (also " + strings.Join(parts, "; ") + ")"
	}
	return apperr.Validation(first.Field, msg)
}

func required(r *Result, field, value string) bool {
	if strings.TrimSpace(value) == "" {
		r.Add(field, "is required")
		return false
	}
	return true
}

func runeRange(r *Result, field, value string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n < min && min > 0:
		r.Add(field, "is required")
	case n > max:
		r.Add(field, "exceeds maximum length")
	}
}

type OpenConversation struct {
	CreatorID    string   `json:"-"`
	Participants []string `json:"participants"`
}

func (p *OpenConversation) Validate() error {
	r := &Result{}
	required(r, "creator_id", p.CreatorID)
	ids := models.NormalizeParticipants(append(append([]string(nil), p.Participants...), p.CreatorID))
	switch {
	case len(ids) < 2:
		r.Add("participants", "at least two distinct participants required")
	case len(ids) > MaxParticipants:
		r.Add("participants", "too many participants")
	}
	return r.Err()
}

type SendMessage struct {
	ConversationID string             `json:"conversation_id"`
	SenderID       string             `json:"-"`
	Type           models.MessageType `json:"type"`
	Payload        string             `json:"payload"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// Validate checks the client facing contract. System messages are never
// accepted from clients.
func (p *SendMessage) Validate(maxText int) error {
	if maxText <= 0 {
		maxText = DefaultTextMaxLength
	}
	r := &Result{}
	required(r, "conversation_id", p.ConversationID)
	required(r, "sender_id", p.SenderID)
	switch p.Type {
	case models.MessageText, models.MessageImage, models.MessageVoice:
		if reason := models.ValidatePayload(p.Type, p.Payload, maxText); reason != "" {
			r.Add("payload", reason)
		}
	case "":
		r.Add("type", "is required")
	default:
		r.Add("type", "must be one of text, image, voice")
	}
	if len(p.IdempotencyKey) > MaxIdempotencyKey {
		r.Add("idempotency_key", "exceeds maximum length")
	}
	return r.Err()
}

type ToggleReaction struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"-"`
	Emoji     string `json:"emoji"`
	// IntentID identifies one logical toggle so client retries do not flip
	// the state twice.
	IntentID string `json:"intent_id,omitempty"`
}

func (p *ToggleReaction) Validate() error {
	r := &Result{}
	required(r, "message_id", p.MessageID)
	if required(r, "emoji", p.Emoji) && len(p.Emoji) > MaxEmojiBytes {
		r.Add("emoji", "exceeds maximum length")
	}
	if len(p.IntentID) > MaxIdempotencyKey {
		r.Add("intent_id", "exceeds maximum length")
	}
	return r.Err()
}

type Typing struct {
	ConversationID string              `json:"conversation_id"`
	Action         models.TypingAction `json:"action"`
}

func (p *Typing) Validate() error {
	r := &Result{}
	required(r, "conversation_id", p.ConversationID)
	if !p.Action.Valid() {
		r.Add("action", "must be start or stop")
	}
	return r.Err()
}

type MarkRead struct {
	IDs []string `json:"ids"`
}

func (p *MarkRead) Validate() error {
	r := &Result{}
	switch {
	case len(p.IDs) == 0:
		r.Add("ids", "must not be empty")
	case len(p.IDs) > MaxMarkReadBatch:
		r.Add("ids", "too many ids")
	default:
		for _, id := range p.IDs {
			if strings.TrimSpace(id) == "" {
				r.Add("ids", "must not contain empty ids")
				break
			}
		}
	}
	return r.Err()
}

type ProfileView struct {
	ProfileID string `json:"profile_id"`
}

func (p *ProfileView) Validate() error {
	r := &Result{}
	required(r, "profile_id", p.ProfileID)
	return r.Err()
}

type Appeal struct {
	ActionID string `json:"action_id,omitempty"`
	Reason   string `json:"reason"`
	Details  string `json:"details"`
}

func (p *Appeal) Validate() error {
	r := &Result{}
	runeRange(r, "reason", p.Reason, 1, AppealReasonMax)
	runeRange(r, "details", p.Details, 1, AppealDetailsMax)
	return r.Err()
}

type IcebreakerAnswer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

func (p *IcebreakerAnswer) Validate() error {
	r := &Result{}
	required(r, "question_id", p.QuestionID)
	runeRange(r, "answer", p.Answer, 1, IcebreakerAnswerMax)
	return r.Err()
}

type Report struct {
	TargetID string              `json:"target_id"`
	Reason   models.ReportReason `json:"reason"`
	Details  string              `json:"details,omitempty"`
}

func (p *Report) Validate() error {
	r := &Result{}
	required(r, "target_id", p.TargetID)
	if !p.Reason.Valid() {
		r.Add("reason", "unknown report reason")
	}
	runeRange(r, "details", p.Details, 0, ReportDetailsMax)
	return r.Err()
}
