package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
)

type published struct {
	ev   models.Event
	skip string
}

type fakePub struct {
	mu  sync.Mutex
	got []published
}

func (f *fakePub) PublishExcept(ev models.Event, skip string) {
	f.mu.Lock()
	f.got = append(f.got, published{ev: ev, skip: skip})
	f.mu.Unlock()
}

func (f *fakePub) typing() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, p := range f.got {
		out = append(out, *p.ev.IsTyping)
	}
	return out
}

func setup(t *testing.T) (*Tracker, *fakePub, *timeutil.Fake, string) {
	t.Helper()
	st := memstore.New()
	c, _, err := st.CreateConversation(context.Background(), &models.Conversation{ID: "c1", Participants: []string{"alice", "bob"}})
	require.NoError(t, err)
	actors := actor.NewRegistry(actor.Options{})
	t.Cleanup(func() { actors.Close(context.Background()) })
	clock := timeutil.NewFake(time.Unix(1000, 0))
	pub := &fakePub{}
	return New(st, actors, pub, Options{TTL: 5 * time.Second, Clock: clock}), pub, clock, c.ID
}

func TestStartDebouncesWithinWindow(t *testing.T) {
	tr, pub, clock, conv := setup(t)
	ctx := context.Background()

	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	clock.Advance(2 * time.Second)
	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	clock.Advance(2 * time.Second)
	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	assert.Equal(t, []bool{true}, pub.typing())
	assert.Equal(t, "alice", pub.got[0].skip)

	// extended expiry keeps the indicator alive past the first deadline
	clock.Advance(3 * time.Second)
	typers, err := tr.Typers(ctx, conv, "bob")
	require.NoError(t, err)
	require.Len(t, typers, 1)

	// once a full window passed since the announcement, start re-announces
	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	assert.Equal(t, []bool{true, true}, pub.typing())
}

func TestStopClearsAndAnnounces(t *testing.T) {
	tr, pub, _, conv := setup(t)
	ctx := context.Background()

	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStop))
	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStop))
	assert.Equal(t, []bool{true, false}, pub.typing())
	assert.Equal(t, 0, tr.Len())
}

func TestExpiresAfterTTL(t *testing.T) {
	tr, pub, clock, conv := setup(t)
	ctx := context.Background()

	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	clock.Advance(5 * time.Second)

	typers, err := tr.Typers(ctx, conv, "bob")
	require.NoError(t, err)
	assert.Empty(t, typers)
	assert.Equal(t, []bool{true, false}, pub.typing())
}

func TestPeriodicSweep(t *testing.T) {
	tr, pub, clock, conv := setup(t)
	ctx := context.Background()

	require.NoError(t, tr.SetTyping(ctx, conv, "alice", models.TypingStart))
	require.NoError(t, tr.SetTyping(ctx, conv, "bob", models.TypingStart))
	assert.Equal(t, 0, tr.Sweep())

	clock.Advance(6 * time.Second)
	assert.Equal(t, 2, tr.Sweep())
	assert.Equal(t, 0, tr.Len())
	assert.Len(t, pub.typing(), 4)
}

func TestTypingRequiresParticipant(t *testing.T) {
	tr, _, _, conv := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, tr.SetTyping(ctx, conv, "mallory", models.TypingStart), apperr.ErrNotParticipant)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(tr.SetTyping(ctx, conv, "alice", "pause")))
	_, err := tr.Typers(ctx, "missing", "alice")
	assert.ErrorIs(t, err, apperr.ErrConversationNotFound)
}

func TestRunStopsWithContext(t *testing.T) {
	tr, _, _, _ := setup(t)
	tr.opts.SweepInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
