package models

type ReactionState string

const (
	ReactionAdded   ReactionState = "added"
	ReactionRemoved ReactionState = "removed"
)

// Reaction is a present (message, user, emoji) triple. Absence is the
// removed state; there is no tombstone.
type Reaction struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedTS int64  `json:"created_ts"`
}
