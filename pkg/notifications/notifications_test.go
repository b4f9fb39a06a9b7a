package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)
	m := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "alice"}
	require.NoError(t, s.NotifyMessage(ctx, m, []string{"bob", "carol"}))
	require.NoError(t, s.NotifyMessage(ctx, m, []string{"bob"}))

	bob, err := s.List(ctx, "bob", true, 0)
	require.NoError(t, err)
	require.Len(t, bob, 2)
	carol, err := s.List(ctx, "carol", true, 0)
	require.NoError(t, err)
	require.Len(t, carol, 1)

	ids := []string{bob[0].ID, bob[1].ID, carol[0].ID}
	n, err := s.MarkRead(ctx, "bob", ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkRead(ctx, "bob", ids)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	carol, err = s.List(ctx, "carol", true, 0)
	require.NoError(t, err)
	assert.Len(t, carol, 1, "foreign ids are skipped")
}

func TestMarkReadRequiresIDs(t *testing.T) {
	s := New(memstore.New(), nil)
	_, err := s.MarkRead(context.Background(), "bob", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), nil)
	for _, viewer := range []string{"v1", "v2", "v3"} {
		require.NoError(t, s.NotifyProfileView(ctx, models.ProfileView{ViewerID: viewer, ProfileID: "alice", ViewedTS: 1}))
	}
	list, err := s.List(ctx, "alice", false, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v3", list[0].ActorID)
	assert.Equal(t, models.NotificationProfileView, list[0].Kind)
}

func TestPurgeReadNotifications(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFake(time.Unix(10000, 0))
	s := New(memstore.New(), clock)
	require.NoError(t, s.NotifyMessage(ctx, &models.Message{ID: "m1", ConversationID: "c", SenderID: "a"}, []string{"bob", "bob"}))
	list, err := s.List(ctx, "bob", false, 0)
	require.NoError(t, err)
	_, err = s.MarkRead(ctx, "bob", []string{list[0].ID})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	n, err := s.Purge(ctx, time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Purge(ctx, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := s.List(ctx, "bob", false, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
