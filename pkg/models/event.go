package models

type EventType string

const (
	EventMessageSent          EventType = "message.sent"
	EventMessageStatusChanged EventType = "message.statusChanged"
	EventReactionChanged      EventType = "reaction.changed"
	EventTypingChanged        EventType = "typing.changed"
)

// Event is the outbound record broadcast to attached sessions. Only the
// fields relevant to Type are set.
type Event struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Sequence       uint64         `json:"sequence,omitempty"`
	Message        *Message       `json:"message,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Status         DeliveryStatus `json:"status,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Emoji          string         `json:"emoji,omitempty"`
	State          ReactionState  `json:"state,omitempty"`
	IsTyping       *bool          `json:"is_typing,omitempty"`
	TS             int64          `json:"ts"`
}

// MessageSent builds the event for a newly sequenced message.
func MessageSent(m *Message, ts int64) Event {
	return Event{
		Type:           EventMessageSent,
		ConversationID: m.ConversationID,
		Sequence:       m.Sequence,
		Message:        m.Clone(),
		TS:             ts,
	}
}

func StatusChanged(m *Message, ts int64) Event {
	return Event{
		Type:           EventMessageStatusChanged,
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		Status:         m.Status,
		TS:             ts,
	}
}

func ReactionChanged(conversationID string, r Reaction, state ReactionState, ts int64) Event {
	return Event{
		Type:           EventReactionChanged,
		ConversationID: conversationID,
		MessageID:      r.MessageID,
		UserID:         r.UserID,
		Emoji:          r.Emoji,
		State:          state,
		TS:             ts,
	}
}

func TypingChanged(conversationID, userID string, typing bool, ts int64) Event {
	return Event{
		Type:           EventTypingChanged,
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       &typing,
		TS:             ts,
	}
}
