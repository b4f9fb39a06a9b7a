// Package storetest is a behavioural suite every store.Store backend must
// pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateConversationFindOrCreate", testCreateConversation},
		{"AppendCompareAndSet", testAppendCompareAndSet},
		{"ConcurrentAppendSingleWinner", testConcurrentAppend},
		{"ListMessagesAfter", testListMessagesAfter},
		{"StatusNeverRegresses", testStatusNeverRegresses},
		{"CursorsMonotonic", testCursors},
		{"Idempotency", testIdempotency},
		{"Reactions", testReactions},
		{"Notifications", testNotifications},
		{"Appeals", testAppeals},
		{"ProfileRecords", testProfileRecords},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tc.fn(t, s)
		})
	}
}

func newConv(t *testing.T, s store.Store, id string, participants ...string) *models.Conversation {
	t.Helper()
	c, created, err := s.CreateConversation(context.Background(), &models.Conversation{
		ID:           id,
		Participants: participants,
		CreatedTS:    1,
	})
	require.NoError(t, err)
	require.True(t, created)
	return c
}

func msg(convID string, seq uint64) *models.Message {
	return &models.Message{
		ID:             fmt.Sprintf("%s-m%d", convID, seq),
		ConversationID: convID,
		SenderID:       "alice",
		Sequence:       seq,
		Type:           models.MessageText,
		Payload:        fmt.Sprintf("hello %d", seq),
		CreatedTS:      int64(seq),
		Status:         models.StatusSent,
	}
}

func testCreateConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := newConv(t, s, "c1", "bob", "alice")
	assert.Equal(t, []string{"alice", "bob"}, c.Participants)

	again, created, err := s.CreateConversation(ctx, &models.Conversation{ID: "c2", Participants: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", again.ID)

	_, err = s.GetConversation(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrConversationNotFound))

	newConv(t, s, "c3", "alice", "carol")
	list, err := s.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testAppendCompareAndSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")

	require.NoError(t, s.AppendMessage(ctx, msg("c1", 1)))
	err := s.AppendMessage(ctx, msg("c1", 3))
	require.Error(t, err)
	assert.Equal(t, apperr.KindSequencingConflict, apperr.KindOf(err))

	err = s.AppendMessage(ctx, msg("c1", 1))
	assert.Equal(t, apperr.KindSequencingConflict, apperr.KindOf(err))

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.LastSequence)

	err = s.AppendMessage(ctx, msg("nope", 1))
	assert.True(t, errors.Is(err, apperr.ErrConversationNotFound))
}

func testConcurrentAppend(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := msg("c1", 1)
			m.ID = fmt.Sprintf("w%d", i)
			if err := s.AppendMessage(ctx, m); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testListMessagesAfter(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")
	for seq := uint64(1); seq <= 12; seq++ {
		require.NoError(t, s.AppendMessage(ctx, msg("c1", seq)))
	}

	got, err := s.ListMessages(ctx, "c1", 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 9)
	for i, m := range got {
		assert.Equal(t, uint64(4+i), m.Sequence)
	}

	page, err := s.ListMessages(ctx, "c1", 9, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(10), page[0].Sequence)

	none, err := s.ListMessages(ctx, "c1", 12, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	m, err := s.GetMessage(ctx, "c1-m10")
	require.NoError(t, err)
	assert.Equal(t, "hello 10", m.Payload)

	_, err = s.GetMessage(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrMessageNotFound))
}

func testStatusNeverRegresses(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")
	require.NoError(t, s.AppendMessage(ctx, msg("c1", 1)))

	m, changed, err := s.UpdateMessageStatus(ctx, "c1-m1", models.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusRead, m.Status)

	m, changed, err = s.UpdateMessageStatus(ctx, "c1-m1", models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.StatusRead, m.Status)

	stored, err := s.GetMessage(ctx, "c1-m1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)
}

func testCursors(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")

	cur, err := s.UpdateCursor(ctx, "c1", "bob", models.Cursor{Delivered: 5})
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{Delivered: 5}, cur)

	cur, err = s.UpdateCursor(ctx, "c1", "bob", models.Cursor{Delivered: 2, Read: 3})
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{Delivered: 5, Read: 3}, cur)

	cur, err = s.UpdateCursor(ctx, "c1", "bob", models.Cursor{Read: 7})
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{Delivered: 7, Read: 7}, cur)

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cur, c.Cursor("bob"))
}

func testIdempotency(t *testing.T, s store.Store) {
	ctx := context.Background()
	newConv(t, s, "c1", "alice", "bob")
	m := msg("c1", 1)
	m.IdempotencyKey = "tok-1"
	m.CreatedTS = 100
	require.NoError(t, s.AppendMessage(ctx, m))

	id, ok, err := s.LookupIdempotency(ctx, "c1", "alice", "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, m.ID, id)

	_, ok, err = s.LookupIdempotency(ctx, "c1", "bob", "tok-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.PurgeIdempotency(ctx, 200, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ = s.LookupIdempotency(ctx, "c1", "alice", "tok-1")
	assert.True(t, ok, "dry run must not delete")

	n, err = s.PurgeIdempotency(ctx, 200, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ = s.LookupIdempotency(ctx, "c1", "alice", "tok-1")
	assert.False(t, ok)
}

func testReactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok, err := s.HasReaction(ctx, "m1", "alice", "👍")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutReaction(ctx, models.Reaction{MessageID: "m1", UserID: "alice", Emoji: "👍"}))
	require.NoError(t, s.PutReaction(ctx, models.Reaction{MessageID: "m1", UserID: "alice", Emoji: "👍"}))
	require.NoError(t, s.PutReaction(ctx, models.Reaction{MessageID: "m1", UserID: "bob", Emoji: "🔥"}))

	list, err := s.ListReactions(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteReaction(ctx, "m1", "alice", "👍"))
	ok, err = s.HasReaction(ctx, "m1", "alice", "👍")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.PutNotification(ctx, &models.Notification{
			ID: fmt.Sprintf("n%d", i), UserID: "bob", Kind: models.NotificationMessage, CreatedTS: int64(i),
		}))
	}
	require.NoError(t, s.PutNotification(ctx, &models.Notification{ID: "x1", UserID: "carol", Kind: models.NotificationMessage}))

	list, err := s.ListNotifications(ctx, "bob", false, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "n3", list[0].ID)

	n, err := s.MarkNotificationsRead(ctx, "bob", []string{"n1", "n2", "x1", "missing"}, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkNotificationsRead(ctx, "bob", []string{"n1", "n2"}, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unread, err := s.ListNotifications(ctx, "bob", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n3", unread[0].ID)

	carol, err := s.ListNotifications(ctx, "carol", true, 0)
	require.NoError(t, err)
	assert.Len(t, carol, 1, "foreign ids must not be marked")

	purged, err := s.PurgeNotifications(ctx, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	left, err := s.ListNotifications(ctx, "bob", false, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func testAppeals(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := &models.Appeal{ID: "a1", UserID: "alice", ActionID: "ban-1", Reason: "r", Details: "d", Status: models.AppealOpen}
	require.NoError(t, s.CreateAppeal(ctx, a))

	dup := *a
	dup.ID = "a2"
	err := s.CreateAppeal(ctx, &dup)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	other := *a
	other.ID = "a3"
	other.ActionID = "ban-2"
	require.NoError(t, s.CreateAppeal(ctx, &other))

	list, err := s.ListAppeals(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.PutReport(ctx, &models.Report{ID: "r1", ReporterID: "alice", TargetID: "bob", Reason: models.ReasonSpam}))
}

func testProfileRecords(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutProfileView(ctx, models.ProfileView{ViewerID: "bob", ProfileID: "alice", ViewedTS: 10}))
	require.NoError(t, s.PutProfileView(ctx, models.ProfileView{ViewerID: "carol", ProfileID: "alice", ViewedTS: 20}))

	views, err := s.ListProfileViews(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "carol", views[0].ViewerID)

	require.NoError(t, s.PutIcebreakerAnswer(ctx, models.IcebreakerAnswer{UserID: "alice", QuestionID: "q1", Answer: "first"}))
	require.NoError(t, s.PutIcebreakerAnswer(ctx, models.IcebreakerAnswer{UserID: "alice", QuestionID: "q1", Answer: "second"}))
	require.NoError(t, s.PutIcebreakerAnswer(ctx, models.IcebreakerAnswer{UserID: "alice", QuestionID: "q2", Answer: "x"}))

	answers, err := s.ListIcebreakerAnswers(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "second", answers[0].Answer)
}
