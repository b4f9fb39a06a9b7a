package pebblestore

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
	"github.com/karthiknish/aroosi-sub016/pkg/store/keys"
	"github.com/karthiknish/aroosi-sub016/pkg/store/storetest"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("db", Options{FS: vfs.NewMem(), SyncWrites: true})
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openMem(t) })
}

func TestReopenKeepsData(t *testing.T) {
	fs := vfs.NewMem()
	ctx := context.Background()

	s, err := Open("db", Options{FS: fs})
	require.NoError(t, err)
	_, _, err = s.CreateConversation(ctx, &models.Conversation{ID: "c1", Participants: []string{"a", "b"}})
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, &models.Message{ID: "m1", ConversationID: "c1", SenderID: "a", Sequence: 1, Type: models.MessageText, Payload: "hi", Status: models.StatusSent}))
	require.NoError(t, s.Close())

	s, err = Open("db", Options{FS: fs})
	require.NoError(t, err)
	defer s.Close()

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.LastSequence)

	ks, err := s.ListKeys(keys.MessagePrefix("c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{keys.GenMessageKey("c1", 1)}, ks)
	require.NoError(t, s.Ping(ctx))
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestWriteLocksAreReleased(t *testing.T) {
	s := openMem(t)
	defer s.Close()
	ctx := context.Background()

	for i, conv := range []string{"c1", "c2", "c3"} {
		_, _, err := s.CreateConversation(ctx, &models.Conversation{ID: conv, Participants: []string{"a", conv}})
		require.NoError(t, err)
		require.NoError(t, s.AppendMessage(ctx, &models.Message{ID: "m" + conv, ConversationID: conv, SenderID: "a", Sequence: 1, Type: models.MessageText, Payload: "hi", Status: models.StatusSent, CreatedTS: int64(i)}))
	}
	assert.Equal(t, 0, s.locks.Len())
}
