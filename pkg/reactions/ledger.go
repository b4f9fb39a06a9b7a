// Package reactions keeps the (message, user, emoji) toggle ledger.
package reactions

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/locks"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

const (
	DefaultIntentTTL  = 30 * time.Second
	DefaultIntentSize = 10000
)

type Backend interface {
	GetConversation(ctx context.Context, convID string) (*models.Conversation, error)
	GetMessage(ctx context.Context, msgID string) (*models.Message, error)
	store.ReactionStore
}

type Publisher interface {
	Publish(ev models.Event)
}

type Options struct {
	IntentTTL  time.Duration
	IntentSize int
	Clock      timeutil.Clock
}

type Ledger struct {
	backend Backend
	actors  *actor.Registry
	pub     Publisher
	clock   timeutil.Clock

	locks   locks.Keyed
	intents *expirable.LRU[string, models.ReactionState]
}

func New(backend Backend, actors *actor.Registry, pub Publisher, opts Options) *Ledger {
	if opts.IntentTTL <= 0 {
		opts.IntentTTL = DefaultIntentTTL
	}
	if opts.IntentSize <= 0 {
		opts.IntentSize = DefaultIntentSize
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	return &Ledger{
		backend: backend,
		actors:  actors,
		pub:     pub,
		clock:   opts.Clock,
		intents: expirable.NewLRU[string, models.ReactionState](opts.IntentSize, nil, opts.IntentTTL),
	}
}

// visible resolves the message and checks userID participates in its
// conversation. Messages the caller cannot see are reported as not found.
func (l *Ledger) visible(ctx context.Context, msgID, userID string) (*models.Message, error) {
	m, err := l.backend.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	conv, err := l.backend.GetConversation(ctx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.ErrMessageNotFound
	}
	return m, nil
}

// Toggle flips the presence of (msgID, userID, emoji) and returns the new
// state. Retries carrying the same intentID return the first outcome
// without flipping again.
func (l *Ledger) Toggle(ctx context.Context, msgID, userID, emoji, intentID string) (models.ReactionState, error) {
	if emoji == "" {
		return "", apperr.Validation("emoji", "is required")
	}
	m, err := l.visible(ctx, msgID, userID)
	if err != nil {
		return "", err
	}
	return actor.Call(ctx, l.actors, m.ConversationID, func(ctx context.Context) (models.ReactionState, error) {
		unlock := l.locks.Lock(msgID + "\x00" + userID + "\x00" + emoji)
		defer unlock()

		intentKey := ""
		if intentID != "" {
			intentKey = msgID + "\x00" + userID + "\x00" + emoji + "\x00" + intentID
			if st, ok := l.intents.Get(intentKey); ok {
				logger.Debug("reaction_intent_replayed", "message", msgID, "user", userID, "state", st)
				return st, nil
			}
		}

		present, err := l.backend.HasReaction(ctx, msgID, userID, emoji)
		if err != nil {
			return "", err
		}
		now := l.clock.Now().UnixMilli()
		r := models.Reaction{MessageID: msgID, UserID: userID, Emoji: emoji, CreatedTS: now}
		state := models.ReactionAdded
		if present {
			state = models.ReactionRemoved
			err = l.backend.DeleteReaction(ctx, msgID, userID, emoji)
		} else {
			err = l.backend.PutReaction(ctx, r)
		}
		if err != nil {
			return "", err
		}
		if intentKey != "" {
			l.intents.Add(intentKey, state)
		}

		l.pub.Publish(models.ReactionChanged(m.ConversationID, r, state, now))
		telemetry.ReactionToggles.WithLabelValues(string(state)).Inc()
		logger.Info("reaction_toggled", "message", msgID, "user", userID, "emoji", emoji, "state", state)
		return state, nil
	})
}

// List returns the present reactions on a message visible to userID.
func (l *Ledger) List(ctx context.Context, msgID, userID string) ([]models.Reaction, error) {
	if _, err := l.visible(ctx, msgID, userID); err != nil {
		return nil, err
	}
	return l.backend.ListReactions(ctx, msgID)
}
