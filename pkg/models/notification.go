package models

type NotificationKind string

const (
	NotificationMessage     NotificationKind = "message"
	NotificationProfileView NotificationKind = "profile_view"
)

type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Kind           NotificationKind `json:"kind"`
	ActorID        string           `json:"actor_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	MessageID      string           `json:"message_id,omitempty"`
	CreatedTS      int64            `json:"created_ts"`
	// ReadTS is zero while unread.
	ReadTS int64 `json:"read_ts,omitempty"`
}

func (n *Notification) Read() bool { return n.ReadTS != 0 }
