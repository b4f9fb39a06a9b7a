// Package fanout routes conversation events to attached subscribers.
// Publishing for one conversation happens on that conversation's actor, so
// subscribers observe events in publish order.
package fanout

import (
	"sync"

	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

type Subscriber interface {
	SessionID() string
	UserID() string
	// Deliver must not block. Returning false means the subscriber could
	// not take the event; the hub then detaches it everywhere.
	Deliver(ev models.Event) bool
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]Subscriber // conversation -> session id
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[string]Subscriber)}
}

func (h *Hub) Subscribe(convID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[convID]
	if !ok {
		set = make(map[string]Subscriber)
		h.subs[convID] = set
	}
	set[s.SessionID()] = s
}

func (h *Hub) Unsubscribe(convID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(convID, sessionID)
}

func (h *Hub) removeLocked(convID, sessionID string) {
	set, ok := h.subs[convID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(h.subs, convID)
	}
}

// UnsubscribeAll detaches a session from every conversation.
func (h *Hub) UnsubscribeAll(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for convID := range h.subs {
		h.removeLocked(convID, sessionID)
	}
}

// Attached reports whether userID has at least one live session on convID.
func (h *Hub) Attached(convID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[convID] {
		if s.UserID() == userID {
			return true
		}
	}
	return false
}

// Subscribers returns how many sessions are attached to convID.
func (h *Hub) Subscribers(convID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[convID])
}

// Publish delivers ev to every session attached to its conversation.
func (h *Hub) Publish(ev models.Event) {
	h.PublishExcept(ev, "")
}

// PublishExcept delivers ev to every attached session not owned by
// skipUser.
func (h *Hub) PublishExcept(ev models.Event, skipUser string) {
	var failed []Subscriber

	h.mu.RLock()
	for _, s := range h.subs[ev.ConversationID] {
		if skipUser != "" && s.UserID() == skipUser {
			continue
		}
		if !s.Deliver(ev) {
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()
	telemetry.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for _, s := range failed {
		telemetry.SessionOverflows.Inc()
		logger.Warn("subscriber_overflow", "session", s.SessionID(), "conversation", ev.ConversationID, "event", ev.Type)
		h.detach(s)
	}
}

// detach removes s everywhere it is still registered. A newer subscriber
// registered under the same session id is left alone.
func (h *Hub) detach(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := s.SessionID()
	for convID, set := range h.subs {
		if cur, ok := set[id]; ok && cur == s {
			h.removeLocked(convID, id)
		}
	}
}
