// Package store defines the conversation store interface the messaging core
// depends on. Backends live in memstore (process memory) and pebblestore
// (durable).
package store

import (
	"context"

	"github.com/karthiknish/aroosi-sub016/pkg/models"
)

// ConversationStore reads and creates conversations and persists
// participant cursors.
type ConversationStore interface {
	// CreateConversation stores c unless a conversation already exists for
	// the same participant set, in which case the existing one is returned
	// with created=false.
	CreateConversation(ctx context.Context, c *models.Conversation) (conv *models.Conversation, created bool, err error)
	GetConversation(ctx context.Context, convID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	// UpdateCursor merges cur into the stored cursor taking the max of each
	// mark and returns the merged value.
	UpdateCursor(ctx context.Context, convID, userID string, cur models.Cursor) (models.Cursor, error)
}

// MessageStore appends and reads messages.
type MessageStore interface {
	// AppendMessage is a compare-and-append: m.Sequence must equal the
	// conversation's LastSequence+1, otherwise a sequencing conflict is
	// returned and nothing is written. On success LastSequence becomes
	// m.Sequence and, when m.IdempotencyKey is set, the token is recorded.
	AppendMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, msgID string) (*models.Message, error)
	// ListMessages returns messages with Sequence > after in ascending
	// order, at most limit (limit <= 0 means no limit).
	ListMessages(ctx context.Context, convID string, after uint64, limit int) ([]*models.Message, error)
	// UpdateMessageStatus moves a message forward to status. changed is
	// false when status would not advance the current one.
	UpdateMessageStatus(ctx context.Context, msgID string, status models.DeliveryStatus) (msg *models.Message, changed bool, err error)
	LookupIdempotency(ctx context.Context, convID, senderID, token string) (msgID string, ok bool, err error)
	// PurgeIdempotency removes tokens recorded before cutoff (unix millis).
	PurgeIdempotency(ctx context.Context, cutoff int64, dryRun bool) (int, error)
}

// ReactionStore holds present reaction triples. Absence is the removed
// state.
type ReactionStore interface {
	HasReaction(ctx context.Context, msgID, userID, emoji string) (bool, error)
	PutReaction(ctx context.Context, r models.Reaction) error
	DeleteReaction(ctx context.Context, msgID, userID, emoji string) error
	ListReactions(ctx context.Context, msgID string) ([]models.Reaction, error)
}

type NotificationStore interface {
	PutNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns newest first, at most limit.
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	// MarkNotificationsRead marks the given ids owned by userID as read at
	// ts. Unknown, foreign and already read ids are skipped. It returns the
	// number of records that changed.
	MarkNotificationsRead(ctx context.Context, userID string, ids []string, ts int64) (int, error)
	// PurgeNotifications removes read notifications read before cutoff.
	PurgeNotifications(ctx context.Context, cutoff int64, dryRun bool) (int, error)
}

type ModerationStore interface {
	PutReport(ctx context.Context, r *models.Report) error
	// CreateAppeal fails with a conflict when the user already has an open
	// appeal for the same action.
	CreateAppeal(ctx context.Context, a *models.Appeal) error
	ListAppeals(ctx context.Context, userID string) ([]*models.Appeal, error)
}

type ProfileStore interface {
	PutProfileView(ctx context.Context, v models.ProfileView) error
	// ListProfileViews returns newest first, at most limit.
	ListProfileViews(ctx context.Context, profileID string, limit int) ([]models.ProfileView, error)
	// PutIcebreakerAnswer replaces any previous answer to the same question.
	PutIcebreakerAnswer(ctx context.Context, a models.IcebreakerAnswer) error
	ListIcebreakerAnswers(ctx context.Context, userID string) ([]models.IcebreakerAnswer, error)
}

// Store is the aggregate every backend implements.
type Store interface {
	ConversationStore
	MessageStore
	ReactionStore
	NotificationStore
	ModerationStore
	ProfileStore

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
	Close() error
}

// IdempotencyRecord is the stored value of a submission token.
type IdempotencyRecord struct {
	MessageID string `json:"message_id"`
	CreatedTS int64  `json:"created_ts"`
}
