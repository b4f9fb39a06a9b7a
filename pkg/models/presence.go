package models

import "time"

type TypingAction string

const (
	TypingStart TypingAction = "start"
	TypingStop  TypingAction = "stop"
)

func (a TypingAction) Valid() bool {
	return a == TypingStart || a == TypingStop
}

// TypingIndicator is ephemeral and never persisted.
type TypingIndicator struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}
