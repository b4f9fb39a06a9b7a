// Package pipeline accepts, sequences and fans out messages and owns their
// delivery status.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/sequencer"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

const (
	DefaultPageSize = 200
	MaxPageSize     = 1000
)

type Backend interface {
	store.ConversationStore
	store.MessageStore
}

// Publisher is the fanout side the pipeline writes to.
type Publisher interface {
	Publish(ev models.Event)
	Attached(convID, userID string) bool
}

// Notifier records notifications for recipients with no attached session.
type Notifier interface {
	NotifyMessage(ctx context.Context, m *models.Message, userIDs []string) error
}

type Options struct {
	TextMaxLength int
	PageSize      int
	Clock         timeutil.Clock
}

type Pipeline struct {
	backend  Backend
	seq      *sequencer.Sequencer
	actors   *actor.Registry
	pub      Publisher
	notifier Notifier
	clock    timeutil.Clock
	opts     Options
}

func New(backend Backend, seq *sequencer.Sequencer, actors *actor.Registry, pub Publisher, notifier Notifier, opts Options) *Pipeline {
	if opts.TextMaxLength <= 0 {
		opts.TextMaxLength = validation.DefaultTextMaxLength
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	return &Pipeline{
		backend:  backend,
		seq:      seq,
		actors:   actors,
		pub:      pub,
		notifier: notifier,
		clock:    opts.Clock,
		opts:     opts,
	}
}

func (p *Pipeline) now() int64 { return p.clock.Now().UnixMilli() }

// OpenConversation returns the conversation for exactly this participant
// set, creating it on first use. creator must be one of the participants.
func (p *Pipeline) OpenConversation(ctx context.Context, creator string, participants []string) (*models.Conversation, bool, error) {
	req := validation.OpenConversation{CreatorID: creator, Participants: participants}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	ids := models.NormalizeParticipants(append(append([]string(nil), participants...), creator))
	c, created, err := p.backend.CreateConversation(ctx, &models.Conversation{
		ID:           uuid.NewString(),
		Participants: ids,
		CreatedTS:    p.now(),
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info("conversation_created", "conversation", c.ID, "participants", len(c.Participants))
	}
	return c, created, nil
}

// Conversation loads convID and checks userID is a participant.
func (p *Pipeline) Conversation(ctx context.Context, convID, userID string) (*models.Conversation, error) {
	c, err := p.backend.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant
	}
	return c, nil
}

func (p *Pipeline) Conversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return p.backend.ListConversations(ctx, userID)
}

type SubmitRequest struct {
	ConversationID string
	SenderID       string
	Type           models.MessageType
	Payload        string
	IdempotencyKey string
}

// Submit validates, sequences, stores and publishes one message. A retry
// carrying an already used idempotency key returns the original message
// with duplicate=true and consumes no sequence number.
func (p *Pipeline) Submit(ctx context.Context, req SubmitRequest) (*models.Message, bool, error) {
	tr := telemetry.Track("pipeline.submit")
	defer tr.Finish()

	type result struct {
		msg *models.Message
		dup bool
	}
	res, err := actor.Call(ctx, p.actors, req.ConversationID, func(ctx context.Context) (result, error) {
		conv, err := p.Conversation(ctx, req.ConversationID, req.SenderID)
		if err != nil {
			return result{}, err
		}
		if !req.Type.Valid() {
			return result{}, apperr.Validation("type", "unknown message type")
		}
		if reason := models.ValidatePayload(req.Type, req.Payload, p.opts.TextMaxLength); reason != "" {
			return result{}, apperr.Validation("payload", reason)
		}
		tr.Mark("validated")

		if req.IdempotencyKey != "" {
			id, ok, err := p.backend.LookupIdempotency(ctx, conv.ID, req.SenderID, req.IdempotencyKey)
			if err != nil {
				return result{}, err
			}
			if ok {
				m, err := p.backend.GetMessage(ctx, id)
				if err != nil {
					return result{}, err
				}
				telemetry.DuplicateSubmissions.Inc()
				logger.Debug("duplicate_submission", "conversation", conv.ID, "message", id)
				return result{msg: m, dup: true}, nil
			}
		}

		id := uuid.NewString()
		created := p.now()
		m, err := p.seq.Append(ctx, conv.ID, func(seq uint64) *models.Message {
			return &models.Message{
				ID:             id,
				ConversationID: conv.ID,
				SenderID:       req.SenderID,
				Sequence:       seq,
				Type:           req.Type,
				Payload:        req.Payload,
				CreatedTS:      created,
				Status:         models.StatusSent,
				IdempotencyKey: req.IdempotencyKey,
			}
		})
		if err != nil {
			logger.Warn("message_append_failed", "conversation", conv.ID, "error", err)
			return result{}, err
		}
		tr.Mark("appended")

		p.pub.Publish(models.MessageSent(m, created))
		p.notifyOffline(ctx, conv, m)
		telemetry.MessagesSubmitted.WithLabelValues(string(m.Type)).Inc()
		logger.Info("message_submitted", "conversation", conv.ID, "message", m.ID, "seq", m.Sequence, "type", m.Type)
		return result{msg: m}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.msg, res.dup, nil
}

func (p *Pipeline) notifyOffline(ctx context.Context, conv *models.Conversation, m *models.Message) {
	if p.notifier == nil {
		return
	}
	var offline []string
	for _, r := range conv.Recipients(m.SenderID) {
		if !p.pub.Attached(conv.ID, r) {
			offline = append(offline, r)
		}
	}
	if len(offline) == 0 {
		return
	}
	if err := p.notifier.NotifyMessage(ctx, m, offline); err != nil {
		// the message is durable; replay covers the missed record
		logger.Warn("notification_record_failed", "message", m.ID, "error", err)
	}
}

// ListMessages returns messages after the given sequence for a participant.
func (p *Pipeline) ListMessages(ctx context.Context, convID, userID string, after uint64, limit int) ([]*models.Message, error) {
	if _, err := p.Conversation(ctx, convID, userID); err != nil {
		return nil, err
	}
	return p.backend.ListMessages(ctx, convID, after, store.ClampLimit(limit, p.opts.PageSize, MaxPageSize))
}

// Acknowledge records that userID has received every message up to seq.
func (p *Pipeline) Acknowledge(ctx context.Context, convID, userID string, seq uint64) (models.Cursor, error) {
	return p.moveCursor(ctx, convID, userID, models.Cursor{Delivered: seq})
}

// MarkRead records that userID has read every message up to seq. Reading
// implies delivery.
func (p *Pipeline) MarkRead(ctx context.Context, convID, userID string, seq uint64) (models.Cursor, error) {
	return p.moveCursor(ctx, convID, userID, models.Cursor{Delivered: seq, Read: seq})
}

func (p *Pipeline) moveCursor(ctx context.Context, convID, userID string, next models.Cursor) (models.Cursor, error) {
	tr := telemetry.Track("pipeline.move_cursor")
	defer tr.Finish()

	return actor.Call(ctx, p.actors, convID, func(ctx context.Context) (models.Cursor, error) {
		conv, err := p.Conversation(ctx, convID, userID)
		if err != nil {
			return models.Cursor{}, err
		}
		if next.Delivered > conv.LastSequence {
			return models.Cursor{}, apperr.Validation("sequence", "beyond the last message of the conversation")
		}
		prev := conv.Cursor(userID)
		merged, err := p.backend.UpdateCursor(ctx, convID, userID, next)
		if err != nil {
			return models.Cursor{}, err
		}
		if merged == prev {
			return merged, nil
		}
		if conv.Cursors == nil {
			conv.Cursors = make(map[string]models.Cursor)
		}
		conv.Cursors[userID] = merged
		if err := p.advanceStatuses(ctx, conv, userID, prev.Read, merged.Delivered); err != nil {
			return merged, err
		}
		return merged, nil
	})
}

// advanceStatuses recomputes the status of messages in (from, to] that
// userID's cursor move may have changed and publishes every forward step.
func (p *Pipeline) advanceStatuses(ctx context.Context, conv *models.Conversation, userID string, from, to uint64) error {
	for after := from; after < to; {
		page, err := p.backend.ListMessages(ctx, conv.ID, after, p.opts.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, m := range page {
			if m.Sequence > to {
				return nil
			}
			after = m.Sequence
			if m.SenderID == userID {
				continue
			}
			target := StatusFor(conv, m)
			if !m.Status.Advances(target) {
				continue
			}
			updated, changed, err := p.backend.UpdateMessageStatus(ctx, m.ID, target)
			if err != nil {
				return err
			}
			if changed {
				p.pub.Publish(models.StatusChanged(updated, p.now()))
			}
		}
	}
	return nil
}

// StatusFor derives the conversation scoped status of m: the least advanced
// recipient decides.
func StatusFor(conv *models.Conversation, m *models.Message) models.DeliveryStatus {
	recipients := conv.Recipients(m.SenderID)
	if len(recipients) == 0 {
		return m.Status
	}
	delivered, read := true, true
	for _, r := range recipients {
		cur := conv.Cursor(r)
		if cur.Delivered < m.Sequence {
			delivered = false
		}
		if cur.Read < m.Sequence {
			read = false
		}
	}
	switch {
	case read:
		return models.StatusRead
	case delivered:
		return models.StatusDelivered
	default:
		return models.StatusSent
	}
}
