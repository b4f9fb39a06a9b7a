package pebblestore

import (
	"context"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/codec"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
)

func convLock(convID string) string { return "c:" + convID }

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	setKey := models.ParticipantSetKey(c.Participants)
	unlock := s.locks.Lock("cp:" + setKey)
	defer unlock()

	var existingID string
	found, err := s.get("create_conversation", keys.GenConversationSetKey(setKey), &existingID)
	if err != nil {
		return nil, false, err
	}
	if found {
		conv, err := s.GetConversation(ctx, existingID)
		return conv, false, err
	}
	exists, err := s.has("create_conversation", keys.GenConversationKey(c.ID))
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, apperr.Conflict("conversation id already exists")
	}

	cp := c.Clone()
	cp.Participants = models.NormalizeParticipants(cp.Participants)
	b := s.newBatch()
	b.put(keys.GenConversationKey(cp.ID), cp)
	b.put(keys.GenConversationSetKey(setKey), cp.ID)
	for _, p := range cp.Participants {
		b.put(keys.GenUserConversationKey(p, cp.ID), cp.ID)
	}
	if err := s.commit("create_conversation", b); err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

func (s *Store) GetConversation(ctx context.Context, convID string) (*models.Conversation, error) {
	var c models.Conversation
	found, err := s.get("get_conversation", keys.GenConversationKey(convID), &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.ErrConversationNotFound
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var ids []string
	err := s.scan("list_conversations", keys.UserConversationPrefix(userID), false, func(_, v []byte) (bool, error) {
		var id string
		if err := codec.Unmarshal(v, &id); err != nil {
			return false, store.Unavailable("list_conversations", err)
		}
		ids = append(ids, id)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateCursor(ctx context.Context, convID, userID string, cur models.Cursor) (models.Cursor, error) {
	unlock := s.locks.Lock(convLock(convID))
	defer unlock()

	c, err := s.GetConversation(ctx, convID)
	if err != nil {
		return models.Cursor{}, err
	}
	merged := store.MergeCursor(c.Cursor(userID), cur)
	if merged == c.Cursor(userID) {
		return merged, nil
	}
	if c.Cursors == nil {
		c.Cursors = make(map[string]models.Cursor)
	}
	c.Cursors[userID] = merged
	b := s.newBatch()
	b.put(keys.GenConversationKey(convID), c)
	if err := s.commit("update_cursor", b); err != nil {
		return models.Cursor{}, err
	}
	return merged, nil
}
