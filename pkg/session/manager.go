package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/fanout"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

const (
	DefaultBuffer       = 512
	DefaultPageSize     = 200
	DefaultResumeWindow = 2 * time.Minute
	MaxInterests        = 100
)

// Replayer is the read side of the store used for authorization and
// replay.
type Replayer interface {
	GetConversation(ctx context.Context, convID string) (*models.Conversation, error)
	ListMessages(ctx context.Context, convID string, after uint64, limit int) ([]*models.Message, error)
}

type Options struct {
	Buffer       int
	PageSize     int
	ResumeWindow time.Duration
	Clock        timeutil.Clock
}

type Manager struct {
	hub    *fanout.Hub
	replay Replayer
	opts   Options
	clock  timeutil.Clock

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewManager(hub *fanout.Hub, replay Replayer, opts Options) *Manager {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ResumeWindow <= 0 {
		opts.ResumeWindow = DefaultResumeWindow
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.System
	}
	return &Manager{
		hub:      hub,
		replay:   replay,
		opts:     opts,
		clock:    opts.Clock,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) logLost(s *Session, err error) {
	logger.Warn("session_transport_lost", "session", s.id, "user", s.userID, "error", err)
}

// Get returns a session owned by userID.
func (m *Manager) Get(sessionID, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.userID != userID {
		return nil, apperr.ErrSessionNotFound
	}
	return s, nil
}

// Len reports the number of sessions not yet closed.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.id]
	delete(m.sessions, s.id)
	m.mu.Unlock()
	if ok {
		telemetry.ActiveSessions.Dec()
		logger.Info("session_closed", "session", s.id, "user", s.userID)
	}
}

func (m *Manager) authorize(ctx context.Context, userID string, interests []Interest) error {
	if len(interests) == 0 {
		return apperr.Validation("conversations", "at least one conversation required")
	}
	if len(interests) > MaxInterests {
		return apperr.Validation("conversations", "too many conversations")
	}
	for _, in := range interests {
		c, err := m.replay.GetConversation(ctx, in.ConversationID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(userID) {
			return apperr.ErrNotParticipant
		}
		if in.HasLastSeen && in.LastSeen > c.LastSequence {
			return apperr.Validation("c", fmt.Sprintf("position %d of %s is beyond the last message %d", in.LastSeen, in.ConversationID, c.LastSequence))
		}
	}
	return nil
}

// Attach opens a new session for userID on the given conversations.
func (m *Manager) Attach(ctx context.Context, userID string, interests []Interest) (*Session, error) {
	if err := m.authorize(ctx, userID, interests); err != nil {
		return nil, err
	}
	s := &Session{
		id:        uuid.NewString(),
		userID:    userID,
		mgr:       m,
		state:     Connecting,
		confirmed: make(map[string]uint64),
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	telemetry.ActiveSessions.Inc()
	logger.Info("session_attached", "session", s.id, "user", userID, "conversations", len(interests))

	m.connect(s, interests)
	return s, nil
}

// Resume re-attaches a reconnecting session. Conversations without an
// explicit LastSeen resume from the last confirmed position; conversations
// of the previous attachment that are not listed are kept.
func (m *Manager) Resume(ctx context.Context, sessionID, userID string, interests []Interest) (*Session, error) {
	s, err := m.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil, apperr.ErrSessionNotFound
	}
	merged := make(map[string]Interest)
	if s.att != nil {
		for convID := range s.att.convs {
			merged[convID] = Interest{ConversationID: convID}
		}
	}
	for _, in := range interests {
		merged[in.ConversationID] = in
	}
	list := make([]Interest, 0, len(merged))
	for _, in := range merged {
		if !in.HasLastSeen {
			in.LastSeen = s.confirmed[in.ConversationID]
			in.HasLastSeen = true
		}
		list = append(list, in)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ConversationID < list[j].ConversationID })

	if err := m.authorize(ctx, userID, list); err != nil {
		return nil, err
	}
	// a resume while still attached means the old transport died unnoticed
	s.Lost(apperr.ErrTransportLost)
	m.hub.UnsubscribeAll(s.id)

	logger.Info("session_resumed", "session", s.id, "user", userID, "conversations", len(list))
	m.connect(s, list)
	return s, nil
}

// connect starts a fresh attachment: subscribe first so no live event is
// missed, buffer live events while the store replays the gap, then flush.
func (m *Manager) connect(s *Session, interests []Interest) {
	att := &attachment{
		out:   make(chan models.Event, m.opts.Buffer),
		done:  make(chan struct{}),
		ready: make(chan struct{}),
		convs: make(map[string]*convState, len(interests)),
	}
	var replays []Interest
	for _, in := range interests {
		cs := &convState{}
		if in.HasLastSeen {
			cs.replaying = true
			cs.queued = in.LastSeen
			replays = append(replays, in)
		}
		att.convs[in.ConversationID] = cs
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.att = att
	s.state = Connecting
	s.mu.Unlock()

	// one value for every conversation so an overflow detaches them all
	sub := &subscriber{s: s, att: att}
	for _, in := range interests {
		m.hub.Subscribe(in.ConversationID, sub)
	}

	if len(replays) == 0 {
		m.markConnected(s, att)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runReplay(s, att, replays)
	}()
}

func (m *Manager) markConnected(s *Session, att *attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.att == att && !att.closed && s.state == Connecting {
		s.state = Connected
	}
	close(att.ready)
}

// send blocks until ev is queued or the attachment ends.
func send(att *attachment, ev models.Event) bool {
	select {
	case att.out <- ev:
		return true
	case <-att.done:
		return false
	}
}

func (m *Manager) runReplay(s *Session, att *attachment, replays []Interest) {
	ctx := context.Background()
	tr := telemetry.Track("session.replay")
	defer tr.Finish()

	for _, in := range replays {
		after := in.LastSeen
		for {
			page, err := m.replay.ListMessages(ctx, in.ConversationID, after, m.opts.PageSize)
			if err != nil {
				logger.Warn("session_replay_failed", "session", s.id, "conversation", in.ConversationID, "error", err)
				s.mu.Lock()
				changed := s.lostLocked(att, err)
				s.mu.Unlock()
				if changed {
					m.hub.UnsubscribeAll(s.id)
				}
				close(att.ready)
				return
			}
			for _, msg := range page {
				if !send(att, models.MessageSent(msg, m.clock.Now().UnixMilli())) {
					close(att.ready)
					return
				}
				after = msg.Sequence
				s.mu.Lock()
				att.convs[in.ConversationID].queued = after
				s.mu.Unlock()
			}
			if len(page) < m.opts.PageSize {
				break
			}
		}
		if !m.flushPending(s, att, in.ConversationID) {
			close(att.ready)
			return
		}
		logger.Debug("session_replayed", "session", s.id, "conversation", in.ConversationID, "through", after)
	}
	m.markConnected(s, att)
}

// flushPending drains live events buffered during replay, dropping
// messages the replay already covered, then switches the conversation live.
func (m *Manager) flushPending(s *Session, att *attachment, convID string) bool {
	for {
		s.mu.Lock()
		cs := att.convs[convID]
		batch := cs.pending
		cs.pending = nil
		if len(batch) == 0 {
			cs.replaying = false
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		for _, ev := range batch {
			s.mu.Lock()
			skip := ev.Type == models.EventMessageSent && ev.Sequence <= cs.queued
			s.mu.Unlock()
			if skip {
				continue
			}
			if !send(att, ev) {
				return false
			}
			if ev.Type == models.EventMessageSent {
				s.mu.Lock()
				cs.queued = ev.Sequence
				s.mu.Unlock()
			}
		}
	}
}

// Sweep closes sessions that stayed in reconnecting longer than the resume
// window. It returns how many were closed.
func (m *Manager) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	var stale []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.state == Reconnecting && now.Sub(s.lostAt) >= m.opts.ResumeWindow {
			stale = append(stale, s)
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run sweeps abandoned sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.opts.ResumeWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Info("sessions_expired", "count", n)
			}
		}
	}
}

// Shutdown closes every session and waits for replays to stop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	m.wg.Wait()
}
