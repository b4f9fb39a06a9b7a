package pebblestore

import (
	"context"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/codec"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
)

func (s *Store) HasReaction(ctx context.Context, msgID, userID, emoji string) (bool, error) {
	return s.has("has_reaction", keys.GenReactionKey(msgID, userID, emoji))
}

func (s *Store) PutReaction(ctx context.Context, r models.Reaction) error {
	b := s.newBatch()
	b.put(keys.GenReactionKey(r.MessageID, r.UserID, r.Emoji), r)
	return s.commit("put_reaction", b)
}

func (s *Store) DeleteReaction(ctx context.Context, msgID, userID, emoji string) error {
	b := s.newBatch()
	b.del(keys.GenReactionKey(msgID, userID, emoji))
	return s.commit("delete_reaction", b)
}

func (s *Store) ListReactions(ctx context.Context, msgID string) ([]models.Reaction, error) {
	var out []models.Reaction
	err := s.scan("list_reactions", keys.ReactionPrefix(msgID), false, func(_, v []byte) (bool, error) {
		var r models.Reaction
		if err := codec.Unmarshal(v, &r); err != nil {
			return false, store.Unavailable("list_reactions", err)
		}
		out = append(out, r)
		return true, nil
	})
	return out, err
}

func (s *Store) PutNotification(ctx context.Context, n *models.Notification) error {
	b := s.newBatch()
	b.put(keys.GenNotificationKey(n.UserID, n.ID), n)
	return s.commit("put_notification", b)
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	err := s.scan("list_notifications", keys.NotificationPrefix(userID), true, func(_, v []byte) (bool, error) {
		var n models.Notification
		if err := codec.Unmarshal(v, &n); err != nil {
			return false, store.Unavailable("list_notifications", err)
		}
		if unreadOnly && n.Read() {
			return true, nil
		}
		out = append(out, &n)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string, ts int64) (int, error) {
	unlock := s.locks.Lock("n:" + userID)
	defer unlock()

	b := s.newBatch()
	updated := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		var n models.Notification
		found, err := s.get("mark_notifications_read", keys.GenNotificationKey(userID, id), &n)
		if err != nil {
			b.b.Close()
			return 0, err
		}
		if !found || n.Read() {
			continue
		}
		n.ReadTS = ts
		b.put(keys.GenNotificationKey(userID, id), &n)
		updated++
	}
	if updated == 0 {
		b.b.Close()
		return 0, nil
	}
	if err := s.commit("mark_notifications_read", b); err != nil {
		return 0, err
	}
	return updated, nil
}

func (s *Store) PurgeNotifications(ctx context.Context, cutoff int64, dryRun bool) (int, error) {
	var stale []string
	err := s.scan("purge_notifications", keys.PrefixNotification, false, func(k, v []byte) (bool, error) {
		var n models.Notification
		if err := codec.Unmarshal(v, &n); err != nil {
			return false, store.Unavailable("purge_notifications", err)
		}
		if n.Read() && n.ReadTS < cutoff {
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
	if err := s.commit("purge_notifications", b); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *Store) PutReport(ctx context.Context, r *models.Report) error {
	b := s.newBatch()
	b.put(keys.GenReportKey(r.ID), r)
	return s.commit("put_report", b)
}

func (s *Store) CreateAppeal(ctx context.Context, a *models.Appeal) error {
	openKey := keys.GenOpenAppealKey(a.UserID, a.ActionID)
	unlock := s.locks.Lock(openKey)
	defer unlock()

	open, err := s.has("create_appeal", openKey)
	if err != nil {
		return err
	}
	if open {
		return apperr.Conflict("an open appeal already exists for this action")
	}
	b := s.newBatch()
	b.put(keys.GenAppealKey(a.UserID, a.ID), a)
	if a.Status == models.AppealOpen {
		b.put(openKey, a.ID)
	}
	return s.commit("create_appeal", b)
}

func (s *Store) ListAppeals(ctx context.Context, userID string) ([]*models.Appeal, error) {
	var out []*models.Appeal
	err := s.scan("list_appeals", keys.AppealPrefix(userID), false, func(_, v []byte) (bool, error) {
		var a models.Appeal
		if err := codec.Unmarshal(v, &a); err != nil {
			return false, store.Unavailable("list_appeals", err)
		}
		out = append(out, &a)
		return true, nil
	})
	return out, err
}

func (s *Store) PutProfileView(ctx context.Context, v models.ProfileView) error {
	b := s.newBatch()
	b.put(keys.GenProfileViewKey(v.ProfileID, v.ViewedTS, v.ViewerID), v)
	return s.commit("put_profile_view", b)
}

func (s *Store) ListProfileViews(ctx context.Context, profileID string, limit int) ([]models.ProfileView, error) {
	var out []models.ProfileView
	err := s.scan("list_profile_views", keys.ProfileViewPrefix(profileID), true, func(_, v []byte) (bool, error) {
		var pv models.ProfileView
		if err := codec.Unmarshal(v, &pv); err != nil {
			return false, store.Unavailable("list_profile_views", err)
		}
		out = append(out, pv)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func (s *Store) PutIcebreakerAnswer(ctx context.Context, a models.IcebreakerAnswer) error {
	b := s.newBatch()
	b.put(keys.GenIcebreakerAnswerKey(a.UserID, a.QuestionID), a)
	return s.commit("put_icebreaker_answer", b)
}

func (s *Store) ListIcebreakerAnswers(ctx context.Context, userID string) ([]models.IcebreakerAnswer, error) {
	var out []models.IcebreakerAnswer
	err := s.scan("list_icebreaker_answers", keys.IcebreakerPrefix(userID), false, func(_, v []byte) (bool, error) {
		var a models.IcebreakerAnswer
		if err := codec.Unmarshal(v, &a); err != nil {
			return false, store.Unavailable("list_icebreaker_answers", err)
		}
		out = append(out, a)
		return true, nil
	})
	return out, err
}
