package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/actor"
	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/fanout"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/sequencer"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
)

type recorder struct {
	id, user string
	mu       sync.Mutex
	events   []models.Event
}

func (r *recorder) SessionID() string { return r.id }
func (r *recorder) UserID() string    { return r.user }
func (r *recorder) Deliver(ev models.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return true
}

func (r *recorder) snapshot() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

type notifyCall struct {
	msg   string
	users []string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) NotifyMessage(ctx context.Context, m *models.Message, users []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, notifyCall{msg: m.ID, users: users})
	f.mu.Unlock()
	return nil
}

type fixture struct {
	st       *memstore.Store
	hub      *fanout.Hub
	notifier *fakeNotifier
	p        *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	hub := fanout.NewHub()
	actors := actor.NewRegistry(actor.Options{IdleTimeout: time.Minute})
	t.Cleanup(func() { actors.Close(context.Background()) })
	n := &fakeNotifier{}
	p := New(st, sequencer.New(st, 3), actors, hub, n, Options{TextMaxLength: 100, PageSize: 2})
	return &fixture{st: st, hub: hub, notifier: n, p: p}
}

func (f *fixture) open(t *testing.T, creator string, others ...string) *models.Conversation {
	t.Helper()
	c, _, err := f.p.OpenConversation(context.Background(), creator, others)
	require.NoError(t, err)
	return c
}

func (f *fixture) send(t *testing.T, conv, sender, text string) *models.Message {
	t.Helper()
	m, dup, err := f.p.Submit(context.Background(), SubmitRequest{ConversationID: conv, SenderID: sender, Type: models.MessageText, Payload: text})
	require.NoError(t, err)
	require.False(t, dup)
	return m
}

func TestOpenConversationFindsExistingSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, created, err := f.p.OpenConversation(ctx, "alice", []string{"bob"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.p.OpenConversation(ctx, "bob", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)

	_, _, err = f.p.OpenConversation(ctx, "alice", nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSubmitThenAcknowledgeScenario(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	watcher := &recorder{id: "s-a", user: "alice"}
	f.hub.Subscribe(c.ID, watcher)

	m := f.send(t, c.ID, "alice", "hi")
	assert.Equal(t, uint64(1), m.Sequence)
	assert.Equal(t, models.StatusSent, m.Status)

	cur, err := f.p.Acknowledge(context.Background(), c.ID, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cur.Delivered)

	stored, err := f.st.GetMessage(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, stored.Status)

	evs := watcher.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, models.EventMessageSent, evs[0].Type)
	assert.Equal(t, models.EventMessageStatusChanged, evs[1].Type)
	assert.Equal(t, models.StatusDelivered, evs[1].Status)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	ctx := context.Background()

	_, _, err := f.p.Submit(ctx, SubmitRequest{ConversationID: c.ID, SenderID: "mallory", Type: models.MessageText, Payload: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	_, _, err = f.p.Submit(ctx, SubmitRequest{ConversationID: "nope", SenderID: "alice", Type: models.MessageText, Payload: "x"})
	assert.ErrorIs(t, err, apperr.ErrConversationNotFound)

	_, _, err = f.p.Submit(ctx, SubmitRequest{ConversationID: c.ID, SenderID: "alice", Type: models.MessageText, Payload: strings.Repeat("x", 101)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = f.p.Submit(ctx, SubmitRequest{ConversationID: c.ID, SenderID: "alice", Type: models.MessageImage, Payload: "raw bytes"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// rejected submissions consume no sequence numbers
	m := f.send(t, c.ID, "alice", "ok")
	assert.Equal(t, uint64(1), m.Sequence)
}

func TestIdempotentRetry(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	ctx := context.Background()
	req := SubmitRequest{ConversationID: c.ID, SenderID: "alice", Type: models.MessageText, Payload: "once", IdempotencyKey: "k1"}

	first, dup, err := f.p.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, dup)

	again, dup, err := f.p.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, again.ID)

	next := f.send(t, c.ID, "alice", "two")
	assert.Equal(t, uint64(2), next.Sequence)
}

func TestStoreOutageIsTransientAndRecoverable(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	ctx := context.Background()

	f.st.SetUnavailable(true)
	_, _, err := f.p.Submit(ctx, SubmitRequest{ConversationID: c.ID, SenderID: "alice", Type: models.MessageText, Payload: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	f.st.SetUnavailable(false)

	m := f.send(t, c.ID, "alice", "after")
	assert.Equal(t, uint64(1), m.Sequence)
}

func TestLeastAdvancedRecipientWins(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob", "carol")
	ctx := context.Background()
	m := f.send(t, c.ID, "alice", "group hi")

	status := func() models.DeliveryStatus {
		got, err := f.st.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		return got.Status
	}

	_, err := f.p.Acknowledge(ctx, c.ID, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, status())

	_, err = f.p.Acknowledge(ctx, c.ID, "carol", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, status())

	_, err = f.p.MarkRead(ctx, c.ID, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, status())

	_, err = f.p.MarkRead(ctx, c.ID, "carol", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, status())

	// a late acknowledgement never regresses the status
	cur, err := f.p.Acknowledge(ctx, c.ID, "carol", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cur.Read)
	assert.Equal(t, models.StatusRead, status())
}

func TestReadAdvancesAcrossPages(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.send(t, c.ID, "alice", fmt.Sprintf("m%d", i))
	}
	f.send(t, c.ID, "bob", "reply")

	_, err := f.p.MarkRead(ctx, c.ID, "bob", 6)
	require.NoError(t, err)

	msgs, err := f.p.ListMessages(ctx, c.ID, "alice", 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	for _, m := range msgs[:5] {
		assert.Equal(t, models.StatusRead, m.Status)
	}
	assert.Equal(t, models.StatusSent, msgs[5].Status, "own messages are not advanced by own cursor")

	_, err = f.p.Acknowledge(ctx, c.ID, "bob", 7)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestOfflineRecipientsGetNotifications(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob", "carol")
	f.hub.Subscribe(c.ID, &recorder{id: "s-b", user: "bob"})

	m := f.send(t, c.ID, "alice", "ping")
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, m.ID, f.notifier.calls[0].msg)
	assert.Equal(t, []string{"carol"}, f.notifier.calls[0].users)
}

func TestConcurrentSubmitOrdering(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, "alice", "bob")
	watcher := &recorder{id: "s-b", user: "bob"}
	f.hub.Subscribe(c.ID, watcher)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "alice"
			if i%2 == 0 {
				sender = "bob"
			}
			_, _, err := f.p.Submit(context.Background(), SubmitRequest{ConversationID: c.ID, SenderID: sender, Type: models.MessageText, Payload: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var seqs []uint64
	for _, ev := range watcher.snapshot() {
		if ev.Type == models.EventMessageSent {
			seqs = append(seqs, ev.Sequence)
		}
	}
	require.Len(t, seqs, 20)
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}
}
