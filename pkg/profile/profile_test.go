package profile

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store/memstore"
	"github.com/karthiknish/aroosi-sub016/pkg/timeutil"
	"github.com/karthiknish/aroosi-sub016/pkg/validation"
)

type fakeNotifier struct {
	mu    sync.Mutex
	views []models.ProfileView
}

func (f *fakeNotifier) NotifyProfileView(ctx context.Context, v models.ProfileView) error {
	f.mu.Lock()
	f.views = append(f.views, v)
	f.mu.Unlock()
	return nil
}

func TestRecordView(t *testing.T) {
	clock := timeutil.NewFake(time.Unix(1_700_000_000, 0))
	n := &fakeNotifier{}
	svc := New(memstore.New(), n, clock)
	ctx := context.Background()

	ok, err := svc.RecordView(ctx, "alice", validation.ProfileView{ProfileID: "bob"})
	require.NoError(t, err)
	assert.True(t, ok)
	clock.Advance(time.Second)
	_, err = svc.RecordView(ctx, "carol", validation.ProfileView{ProfileID: "bob"})
	require.NoError(t, err)

	views, err := svc.Views(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "carol", views[0].ViewerID)
	assert.Len(t, n.views, 2)
	assert.Equal(t, "bob", n.views[0].ProfileID)
}

func TestRecordOwnViewIsNoop(t *testing.T) {
	n := &fakeNotifier{}
	svc := New(memstore.New(), n, nil)
	ok, err := svc.RecordView(context.Background(), "bob", validation.ProfileView{ProfileID: "bob"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, n.views)
}

func TestRecordViewRequiresProfile(t *testing.T) {
	svc := New(memstore.New(), nil, nil)
	_, err := svc.RecordView(context.Background(), "alice", validation.ProfileView{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAnswerIcebreakerReplaces(t *testing.T) {
	svc := New(memstore.New(), nil, nil)
	ctx := context.Background()

	_, err := svc.AnswerIcebreaker(ctx, "alice", validation.IcebreakerAnswer{QuestionID: "q1", Answer: "tea"})
	require.NoError(t, err)
	_, err = svc.AnswerIcebreaker(ctx, "alice", validation.IcebreakerAnswer{QuestionID: "q1", Answer: "coffee"})
	require.NoError(t, err)

	answers, err := svc.IcebreakerAnswers(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "coffee", answers[0].Answer)

	_, err = svc.AnswerIcebreaker(ctx, "alice", validation.IcebreakerAnswer{QuestionID: "q2", Answer: strings.Repeat("a", 501)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
