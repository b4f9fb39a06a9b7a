package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu        sync.Mutex
	idemCalls []bool
	notifRet  []time.Duration
	idemErr   error
	block     chan struct{}
}

func (f *fakePurger) PurgeExpiredIdempotency(ctx context.Context, dryRun bool) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idemCalls = append(f.idemCalls, dryRun)
	return 3, f.idemErr
}

func (f *fakePurger) PurgeReadNotifications(ctx context.Context, retention time.Duration, dryRun bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifRet = append(f.notifRet, retention)
	return 2, nil
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(&fakePurger{}, Options{Cron: "whenever"})
	assert.Error(t, err)
}

func TestNext(t *testing.T) {
	s, err := New(&fakePurger{}, Options{Cron: "*/15 * * * *"})
	require.NoError(t, err)
	next, err := s.Next(time.Date(2025, 1, 1, 10, 7, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 15, 0, 0, time.UTC), next)
}

func TestRunOnceWritesRecord(t *testing.T) {
	dir := t.TempDir()
	p := &fakePurger{}
	s, err := New(p, Options{Cron: "* * * * *", NotificationRetention: time.Hour, DryRun: true, RecordDir: dir})
	require.NoError(t, err)

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.IdempotencyPurged)
	assert.Equal(t, 2, rep.NotificationsPurged)
	assert.True(t, rep.DryRun)
	assert.Equal(t, []bool{true}, p.idemCalls)
	assert.Equal(t, []time.Duration{time.Hour}, p.notifRet)

	onDisk, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, onDisk.RunID)

	last, ok := s.LastReport()
	require.True(t, ok)
	assert.Equal(t, rep.RunID, last.RunID)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	p := &fakePurger{idemErr: errors.New("store down")}
	s, err := New(p, Options{Cron: "* * * * *", NotificationRetention: time.Hour})
	require.NoError(t, err)

	rep, err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "store down")
	assert.Contains(t, rep.Error, "store down")
	assert.Len(t, p.notifRet, 1)
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	p := &fakePurger{block: make(chan struct{})}
	s, err := New(p, Options{Cron: "* * * * *"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = s.RunOnce(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	close(p.block)
	<-done
}
