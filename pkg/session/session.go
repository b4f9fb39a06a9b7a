// Package session manages client attachments: the connection state machine
// and replay-then-live delivery across reconnects.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
)

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
)

// Interest names a conversation to attach to. When HasLastSeen is set the
// session first replays every message after LastSeen.
type Interest struct {
	ConversationID string
	LastSeen       uint64
	HasLastSeen    bool
}

type convState struct {
	// queued is the highest message sequence handed to the outbound queue.
	queued    uint64
	replaying bool
	pending   []models.Event
}

// attachment is one transport lifetime of a session.
type attachment struct {
	out    chan models.Event
	done   chan struct{}
	ready  chan struct{}
	closed bool
	err    error
	convs  map[string]*convState
}

type Session struct {
	id     string
	userID string
	mgr    *Manager

	mu        sync.Mutex
	state     State
	att       *attachment
	confirmed map[string]uint64
	lostAt    time.Time
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the outbound queue of the current attachment and a channel
// closed when that attachment ends. The queue itself is never closed.
func (s *Session) Events() (<-chan models.Event, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.att == nil {
		done := make(chan struct{})
		close(done)
		return nil, done
	}
	return s.att.out, s.att.done
}

// Ready is closed once replay for the current attachment has finished.
func (s *Session) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.att == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.att.ready
}

// Err reports why the current attachment ended, or nil while it is live.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.att == nil {
		return nil
	}
	return s.att.err
}

// Conversations returns the conversation ids of the current attachment.
func (s *Session) Conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.att == nil {
		return nil
	}
	out := make([]string, 0, len(s.att.convs))
	for id := range s.att.convs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Confirm records that the transport wrote ev to the client. Resume uses
// the confirmed position when the client supplies none.
func (s *Session) Confirm(ev models.Event) {
	if ev.Type != models.EventMessageSent {
		return
	}
	s.mu.Lock()
	if ev.Sequence > s.confirmed[ev.ConversationID] {
		s.confirmed[ev.ConversationID] = ev.Sequence
	}
	s.mu.Unlock()
}

// LastSeen is the highest confirmed sequence for convID.
func (s *Session) LastSeen(convID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[convID]
}

// Lost reports a transient transport failure. The session moves to
// reconnecting and keeps its registrations for Resume.
func (s *Session) Lost(err error) {
	s.mu.Lock()
	changed := s.lostLocked(s.att, err)
	s.mu.Unlock()
	if changed {
		s.mgr.hub.UnsubscribeAll(s.id)
	}
}

// lostLocked ends att if it is still the live attachment.
func (s *Session) lostLocked(att *attachment, err error) bool {
	if att == nil || att != s.att || att.closed {
		return false
	}
	if err == nil {
		err = apperr.ErrTransportLost
	}
	att.closed = true
	att.err = err
	close(att.done)
	s.state = Reconnecting
	s.lostAt = s.mgr.clock.Now()
	s.mgr.logLost(s, err)
	return true
}

// Close tears the session down. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	if s.att != nil && !s.att.closed {
		s.att.closed = true
		s.att.err = apperr.ErrSessionNotFound
		close(s.att.done)
	}
	s.mu.Unlock()

	s.mgr.hub.UnsubscribeAll(s.id)
	s.mgr.forget(s)
}

// deliver is the live path from the hub. It never blocks.
func (s *Session) deliver(att *attachment, ev models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if att != s.att || att.closed {
		return false
	}
	cs, ok := att.convs[ev.ConversationID]
	if !ok {
		return true
	}
	if ev.Type == models.EventMessageSent && ev.Sequence <= cs.queued {
		return true
	}
	if cs.replaying {
		if len(cs.pending) >= cap(att.out) {
			s.lostLocked(att, apperr.ErrTransportLost)
			return false
		}
		cs.pending = append(cs.pending, ev)
		return true
	}
	select {
	case att.out <- ev:
		if ev.Type == models.EventMessageSent {
			cs.queued = ev.Sequence
		}
		return true
	default:
		s.lostLocked(att, apperr.ErrTransportLost)
		return false
	}
}

// subscriber binds the hub to one attachment so a stale registration can
// never reach a newer one.
type subscriber struct {
	s   *Session
	att *attachment
}

func (b *subscriber) SessionID() string { return b.s.id }
func (b *subscriber) UserID() string    { return b.s.userID }
func (b *subscriber) Deliver(ev models.Event) bool {
	return b.s.deliver(b.att, ev)
}
