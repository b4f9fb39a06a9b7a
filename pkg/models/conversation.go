package models

import (
	"sort"
	"strings"
)

// Conversation is a durable thread of messages among a fixed participant set.
type Conversation struct {
	ID string `json:"id"`
	// Participants is sorted and de-duplicated; at least two entries.
	Participants []string `json:"participants"`
	// LastSequence never decreases; messages are numbered 1..LastSequence.
	LastSequence uint64 `json:"last_sequence"`
	CreatedTS    int64  `json:"created_ts"`
	UpdatedTS    int64  `json:"updated_ts,omitempty"`
	// Cursors holds per participant delivery and read high-water marks.
	Cursors map[string]Cursor `json:"cursors,omitempty"`
}

// Cursor is a participant's acknowledged position in a conversation.
type Cursor struct {
	Delivered uint64 `json:"delivered"`
	Read      uint64 `json:"read"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	i := sort.SearchStrings(c.Participants, userID)
	return i < len(c.Participants) && c.Participants[i] == userID
}

// Recipients returns every participant except senderID.
func (c *Conversation) Recipients(senderID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != senderID {
			out = append(out, p)
		}
	}
	return out
}

// Cursor returns the cursor for userID (zero value when absent).
func (c *Conversation) Cursor(userID string) Cursor {
	if c.Cursors == nil {
		return Cursor{}
	}
	return c.Cursors[userID]
}

// Clone returns a deep copy so callers never share slices or maps with a
// store.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.Cursors != nil {
		out.Cursors = make(map[string]Cursor, len(c.Cursors))
		for k, v := range c.Cursors {
			out.Cursors[k] = v
		}
	}
	return &out
}

// NormalizeParticipants trims, de-duplicates and sorts ids. Empty ids are
// dropped.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ParticipantSetKey is the order insensitive identity of a participant set.
func ParticipantSetKey(ids []string) string {
	return strings.Join(NormalizeParticipants(ids), ",")
}
