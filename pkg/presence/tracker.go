// Package presence tracks ephemeral typing indicators in an expiring map
// keyed by (conversation, user).
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

const (
	DefaultTTL           = 5 * time.Second
	DefaultSweepInterval = time.Second
)

type Backend interface {
	GetConversation(ctx context.Context, convID string) (*models.Conversation, error)
}

type Publisher interface {
	PublishExcept(ev models.Event, skipUser string)
}

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         timeutil.Clock
}

type key struct {
	conv string
	user string
}

type entry struct {
	expiresAt   time.Time
	announcedAt time.Time
}

type Tracker struct {
	backend Backend
	actors  *actor.Registry
	pub     Publisher
	opts    Options

	mu      sync.Mutex
	entries map[key]*entry
}

func New(backend Backend, actors *actor.Registry, pub Publisher, opts Options) *Tracker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	return &Tracker{
		backend: backend,
		actors:  actors,
		pub:     pub,
		opts:    opts,
		entries: make(map[key]*entry),
	}
}

// publishLocked sends a typing change to the other participants. Called with
// t.mu held so changes for one key are observed in order.
func (t *Tracker) publishLocked(k key, typing bool, now time.Time) {
	t.pub.PublishExcept(models.TypingChanged(k.conv, k.user, typing, now.UnixMilli()), k.user)
}

// SetTyping applies a start or stop signal from userID.
func (t *Tracker) SetTyping(ctx context.Context, convID, userID string, action models.TypingAction) error {
	if !action.Valid() {
		return apperr.Validation("action", "must be start or stop")
	}
	return t.actors.Do(ctx, convID, func(ctx context.Context) error {
		conv, err := t.backend.GetConversation(ctx, convID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return apperr.ErrNotParticipant
		}
		if action == models.TypingStart {
			t.start(key{conv: convID, user: userID})
		} else {
			t.Stop(convID, userID)
		}
		return nil
	})
}

func (t *Tracker) start(k key) {
	now := t.opts.Clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[k]
	if ok && now.Before(e.expiresAt) {
		e.expiresAt = now.Add(t.opts.TTL)
		if now.Sub(e.announcedAt) >= t.opts.TTL {
			e.announcedAt = now
			t.publishLocked(k, true, now)
		}
		return
	}
	t.entries[k] = &entry{expiresAt: now.Add(t.opts.TTL), announcedAt: now}
	t.publishLocked(k, true, now)
	telemetry.ActiveTypers.Set(float64(len(t.entries)))
}

// Stop clears userID's indicator, if any, and announces it. It is also
// used when a message from userID lands.
func (t *Tracker) Stop(convID, userID string) {
	k := key{conv: convID, user: userID}
	now := t.opts.Clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[k]; !ok {
		return
	}
	delete(t.entries, k)
	t.publishLocked(k, false, now)
	telemetry.ActiveTypers.Set(float64(len(t.entries)))
}

// Typers returns the live indicators of convID for a participant, sweeping
// expired ones first.
func (t *Tracker) Typers(ctx context.Context, convID, userID string) ([]models.TypingIndicator, error) {
	conv, err := t.backend.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant
	}
	now := t.opts.Clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.TypingIndicator
	for k, e := range t.entries {
		if k.conv != convID {
			continue
		}
		if !now.Before(e.expiresAt) {
			t.expireLocked(k, now)
			continue
		}
		out = append(out, models.TypingIndicator{ConversationID: k.conv, UserID: k.user, ExpiresAt: e.expiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *Tracker) expireLocked(k key, now time.Time) {
	delete(t.entries, k)
	t.publishLocked(k, false, now)
	logger.Debug("typing_expired", "conversation", k.conv, "user", k.user)
}

// Sweep removes every expired indicator and announces each as stopped. It
// returns how many were removed.
func (t *Tracker) Sweep() int {
	now := t.opts.Clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.entries {
		if !now.Before(e.expiresAt) {
			t.expireLocked(k, now)
			n++
		}
	}
	telemetry.ActiveTypers.Set(float64(len(t.entries)))
	return n
}

// Len reports the number of tracked indicators, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps periodically until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
