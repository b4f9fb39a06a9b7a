package pebblestore

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/codec"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

type locator struct {
	ConversationID string `json:"conversation_id"`
	Sequence       uint64 `json:"sequence"`
}

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	tr := telemetry.Track("db.append_message")
	defer tr.Finish()

	unlock := s.locks.Lock(convLock(m.ConversationID))
	defer unlock()

	c, err := s.GetConversation(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	if m.Sequence != c.LastSequence+1 {
		return store.SequenceConflict(c.ID, c.LastSequence, m.Sequence)
	}
	dup, err := s.has("append_message", keys.GenMessageLocatorKey(m.ID))
	if err != nil {
		return err
	}
	if dup {
		return apperr.Conflict("message id already exists")
	}
	tr.Mark("checked")

	c.LastSequence = m.Sequence
	c.UpdatedTS = m.CreatedTS
	b := s.newBatch()
	b.put(keys.GenMessageKey(m.ConversationID, m.Sequence), m)
	b.put(keys.GenMessageLocatorKey(m.ID), locator{ConversationID: m.ConversationID, Sequence: m.Sequence})
	b.put(keys.GenConversationKey(c.ID), c)
	if m.IdempotencyKey != "" {
		b.put(keys.GenIdempotencyKey(c.ID, m.SenderID, m.IdempotencyKey), store.IdempotencyRecord{MessageID: m.ID, CreatedTS: m.CreatedTS})
	}
	return s.commit("append_message", b)
}

func (s *Store) locate(op, msgID string) (locator, error) {
	var loc locator
	found, err := s.get(op, keys.GenMessageLocatorKey(msgID), &loc)
	if err != nil {
		return loc, err
	}
	if !found {
		return loc, apperr.ErrMessageNotFound
	}
	return loc, nil
}

func (s *Store) loadMessage(op string, loc locator) (*models.Message, error) {
	var m models.Message
	found, err := s.get(op, keys.GenMessageKey(loc.ConversationID, loc.Sequence), &m)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.ErrMessageNotFound
	}
	return &m, nil
}

func (s *Store) GetMessage(ctx context.Context, msgID string) (*models.Message, error) {
	loc, err := s.locate("get_message", msgID)
	if err != nil {
		return nil, err
	}
	return s.loadMessage("get_message", loc)
}

func (s *Store) ListMessages(ctx context.Context, convID string, after uint64, limit int) ([]*models.Message, error) {
	tr := telemetry.Track("db.list_messages")
	defer tr.Finish()

	if _, err := s.GetConversation(ctx, convID); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keys.GenMessageKey(convID, after+1)),
		UpperBound: keys.PrefixEnd(keys.MessagePrefix(convID)),
	})
	if err != nil {
		return nil, store.Unavailable("list_messages", err)
	}
	defer iter.Close()

	var out []*models.Message
	for iter.First(); iter.Valid(); iter.Next() {
		var m models.Message
		if err := codec.Unmarshal(iter.Value(), &m); err != nil {
			return nil, store.Unavailable("list_messages", err)
		}
		out = append(out, &m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, store.Unavailable("list_messages", err)
	}
	return out, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, msgID string, status models.DeliveryStatus) (*models.Message, bool, error) {
	loc, err := s.locate("update_message_status", msgID)
	if err != nil {
		return nil, false, err
	}
	unlock := s.locks.Lock(convLock(loc.ConversationID))
	defer unlock()

	m, err := s.loadMessage("update_message_status", loc)
	if err != nil {
		return nil, false, err
	}
	if !m.Status.Advances(status) {
		return m, false, nil
	}
	m.Status = status
	b := s.newBatch()
	b.put(keys.GenMessageKey(loc.ConversationID, loc.Sequence), m)
	if err := s.commit("update_message_status", b); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *Store) LookupIdempotency(ctx context.Context, convID, senderID, token string) (string, bool, error) {
	var rec store.IdempotencyRecord
	found, err := s.get("lookup_idempotency", keys.GenIdempotencyKey(convID, senderID, token), &rec)
	if err != nil || !found {
		return "", false, err
	}
	return rec.MessageID, true, nil
}

func (s *Store) PurgeIdempotency(ctx context.Context, cutoff int64, dryRun bool) (int, error) {
	var stale []string
	err := s.scan("purge_idempotency", keys.PrefixIdempotency, false, func(k, v []byte) (bool, error) {
		var rec store.IdempotencyRecord
		if err := codec.Unmarshal(v, &rec); err != nil {
			return false, store.Unavailable("purge_idempotency", err)
		}
		if rec.CreatedTS < cutoff {
			stale = append(stale, string(k))
		}
		return true, nil
	})
	if err != nil || dryRun || len(stale) == 0 {
		return len(stale), err
	}
	b := s.newBatch()
	for _, k := range stale {
		b.del(k)
	}
	if err := s.commit("purge_idempotency", b); err != nil {
		return 0, err
	}
	return len(stale), nil
}
