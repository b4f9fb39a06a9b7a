// Package chat composes the messaging core. The HTTP layer talks to a
// *Chat and nothing else.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/fanout"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/moderation"
	"github.com/karthiknish/aroosi-sub016/pkg/notifications"
	"github.com/karthiknish/aroosi-sub016/pkg/pipeline"
	"github.com/karthiknish/aroosi-sub016/pkg/presence"
	"github.com/karthiknish/aroosi-sub016/pkg/profile"
	"github.com/karthiknish/aroosi-sub016/pkg/reactions"
	"github.com/karthiknish/aroosi-sub016/pkg/sequencer"
	"github.com/karthiknish/aroosi-sub016/pkg/session"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

type Options struct {
	TextMaxLength       int
	TypingTTL           time.Duration
	TypingSweepInterval time.Duration
	ActorIdleTimeout    time.Duration
	ActorQueueSize      int
	SequencerMaxRetries int
	SessionBuffer       int
	SessionResumeWindow time.Duration
	ReplayPageSize      int
	ReactionIntentTTL   time.Duration
	IdempotencyTTL      time.Duration
	Clock               timeutil.Clock
}

type Chat struct {
	store store.Store
	opts  Options
	clock timeutil.Clock

	actors        *actor.Registry
	seq           *sequencer.Sequencer
	hub           *fanout.Hub
	pipeline      *pipeline.Pipeline
	presence      *presence.Tracker
	reactions     *reactions.Ledger
	notifications *notifications.Service
	sessions      *session.Manager
	moderation    *moderation.Service
	profiles      *profile.Service

	wg sync.WaitGroup
}

func New(st store.Store, opts Options) *Chat {
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	c := &Chat{store: st, opts: opts, clock: opts.Clock}

	c.actors = actor.NewRegistry(actor.Options{QueueSize: opts.ActorQueueSize, IdleTimeout: opts.ActorIdleTimeout})
	c.seq = sequencer.New(st, opts.SequencerMaxRetries)
	c.actors.OnRetire(c.seq.Forget)
	c.hub = fanout.NewHub()
	c.notifications = notifications.New(st, opts.Clock)
	c.pipeline = pipeline.New(st, c.seq, c.actors, c.hub, c.notifications, pipeline.Options{
		TextMaxLength: opts.TextMaxLength,
		PageSize:      opts.ReplayPageSize,
		Clock:         opts.Clock,
	})
	c.presence = presence.New(st, c.actors, c.hub, presence.Options{
		TTL:           opts.TypingTTL,
		SweepInterval: opts.TypingSweepInterval,
		Clock:         opts.Clock,
	})
	c.reactions = reactions.New(st, c.actors, c.hub, reactions.Options{
		IntentTTL: opts.ReactionIntentTTL,
		Clock:     opts.Clock,
	})
	c.sessions = session.NewManager(c.hub, st, session.Options{
		Buffer:       opts.SessionBuffer,
		PageSize:     opts.ReplayPageSize,
		ResumeWindow: opts.SessionResumeWindow,
		Clock:        opts.Clock,
	})
	c.moderation = moderation.New(st, opts.Clock)
	c.profiles = profile.New(st, c.notifications, opts.Clock)
	return c
}

// Run drives the background sweepers until ctx is done.
func (c *Chat) Run(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.presence.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.sessions.Run(ctx)
	}()
	<-ctx.Done()
	c.wg.Wait()
}

// Close ends every session and drains the conversation actors. The store
// is owned by the caller.
func (c *Chat) Close(ctx context.Context) error {
	c.sessions.Shutdown()
	return c.actors.Close(ctx)
}

func (c *Chat) Ping(ctx context.Context) error { return c.store.Ping(ctx) }

func (c *Chat) Hub() *fanout.Hub { return c.hub }

// Stats is a point-in-time view of in-memory state.
type Stats struct {
	Actors   int `json:"actors"`
	Sessions int `json:"sessions"`
	Typers   int `json:"typers"`
}

func (c *Chat) Stats() Stats {
	return Stats{Actors: c.actors.Len(), Sessions: c.sessions.Len(), Typers: c.presence.Len()}
}

// Conversations

func (c *Chat) OpenConversation(ctx context.Context, creatorID string, req validation.OpenConversation) (*models.Conversation, bool, error) {
	return c.pipeline.OpenConversation(ctx, creatorID, req.Participants)
}

func (c *Chat) Conversation(ctx context.Context, convID, userID string) (*models.Conversation, error) {
	return c.pipeline.Conversation(ctx, convID, userID)
}

func (c *Chat) Conversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return c.pipeline.Conversations(ctx, userID)
}

// Messages

// Submit sends a message and clears the sender's typing indicator.
func (c *Chat) Submit(ctx context.Context, senderID string, req validation.SendMessage) (*models.Message, bool, error) {
	req.SenderID = senderID
	if err := req.Validate(c.opts.TextMaxLength); err != nil {
		return nil, false, err
	}
	m, dup, err := c.pipeline.Submit(ctx, pipeline.SubmitRequest{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Type:           req.Type,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, false, err
	}
	c.presence.Stop(req.ConversationID, senderID)
	return m, dup, nil
}

func (c *Chat) ListMessages(ctx context.Context, convID, userID string, after uint64, limit int) ([]*models.Message, error) {
	return c.pipeline.ListMessages(ctx, convID, userID, after, limit)
}

func (c *Chat) Acknowledge(ctx context.Context, convID, userID string, seq uint64) (models.Cursor, error) {
	return c.pipeline.Acknowledge(ctx, convID, userID, seq)
}

func (c *Chat) MarkConversationRead(ctx context.Context, convID, userID string, seq uint64) (models.Cursor, error) {
	return c.pipeline.MarkRead(ctx, convID, userID, seq)
}

// Presence

func (c *Chat) SetTyping(ctx context.Context, userID string, req validation.Typing) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.presence.SetTyping(ctx, req.ConversationID, userID, req.Action)
}

func (c *Chat) Typers(ctx context.Context, convID, userID string) ([]models.TypingIndicator, error) {
	return c.presence.Typers(ctx, convID, userID)
}

// Reactions

func (c *Chat) ToggleReaction(ctx context.Context, userID string, req validation.ToggleReaction) (models.ReactionState, error) {
	req.UserID = userID
	if err := req.Validate(); err != nil {
		return "", err
	}
	return c.reactions.Toggle(ctx, req.MessageID, userID, req.Emoji, req.IntentID)
}

func (c *Chat) ListReactions(ctx context.Context, msgID, userID string) ([]models.Reaction, error) {
	return c.reactions.List(ctx, msgID, userID)
}

// Notifications

func (c *Chat) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return c.notifications.List(ctx, userID, unreadOnly, limit)
}

func (c *Chat) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int, error) {
	return c.notifications.MarkRead(ctx, userID, ids)
}

// Sessions

func (c *Chat) Attach(ctx context.Context, userID string, interests []session.Interest) (*session.Session, error) {
	return c.sessions.Attach(ctx, userID, interests)
}

func (c *Chat) Resume(ctx context.Context, sessionID, userID string, interests []session.Interest) (*session.Session, error) {
	return c.sessions.Resume(ctx, sessionID, userID, interests)
}

func (c *Chat) Session(sessionID, userID string) (*session.Session, error) {
	return c.sessions.Get(sessionID, userID)
}

// Profiles and moderation

func (c *Chat) RecordProfileView(ctx context.Context, viewerID string, req validation.ProfileView) (bool, error) {
	return c.profiles.RecordView(ctx, viewerID, req)
}

func (c *Chat) ProfileViews(ctx context.Context, profileID string, limit int) ([]models.ProfileView, error) {
	return c.profiles.Views(ctx, profileID, limit)
}

func (c *Chat) AnswerIcebreaker(ctx context.Context, userID string, req validation.IcebreakerAnswer) (models.IcebreakerAnswer, error) {
	return c.profiles.AnswerIcebreaker(ctx, userID, req)
}

func (c *Chat) IcebreakerAnswers(ctx context.Context, userID string) ([]models.IcebreakerAnswer, error) {
	return c.profiles.IcebreakerAnswers(ctx, userID)
}

func (c *Chat) SubmitReport(ctx context.Context, reporterID string, req validation.Report) (*models.Report, error) {
	return c.moderation.SubmitReport(ctx, reporterID, req)
}

func (c *Chat) SubmitAppeal(ctx context.Context, userID string, req validation.Appeal) (*models.Appeal, error) {
	return c.moderation.SubmitAppeal(ctx, userID, req)
}

func (c *Chat) ListAppeals(ctx context.Context, userID string) ([]*models.Appeal, error) {
	return c.moderation.ListAppeals(ctx, userID)
}

// Housekeeping

// PurgeExpiredIdempotency drops idempotency tokens older than the
// configured TTL.
func (c *Chat) PurgeExpiredIdempotency(ctx context.Context, dryRun bool) (int, error) {
	cutoff := c.clock.Now().Add(-c.opts.IdempotencyTTL).UnixMilli()
	n, err := c.store.PurgeIdempotency(ctx, cutoff, dryRun)
	if err != nil {
		return 0, err
	}
	logger.Info("idempotency_purged", "count", n, "dry_run", dryRun)
	return n, nil
}

// PurgeReadNotifications drops notifications read more than retention ago.
func (c *Chat) PurgeReadNotifications(ctx context.Context, retention time.Duration, dryRun bool) (int, error) {
	if retention <= 0 {
		return 0, apperr.Validation("retention", "must be positive")
	}
	n, err := c.notifications.Purge(ctx, retention, dryRun)
	if err != nil {
		return 0, err
	}
	logger.Info("notifications_purged", "count", n, "dry_run", dryRun)
	return n, nil
}
