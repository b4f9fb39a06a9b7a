package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
)

func TestSerializesPerConversation(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 4, IdleTimeout: time.Minute})
	defer r.Close(context.Background())

	var inFlight, maxInFlight int32
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Do(context.Background(), "c1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight)
	assert.Len(t, order, 50)
}

func TestConversationsRunInParallel(t *testing.T) {
	r := NewRegistry(Options{IdleTimeout: time.Minute})
	defer r.Close(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = r.Do(context.Background(), "slow", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Do(ctx, "fast", func(ctx context.Context) error { return nil }))
	close(release)
}

func TestCallReturnsValueAndError(t *testing.T) {
	r := NewRegistry(Options{})
	defer r.Close(context.Background())

	v, err := Call(context.Background(), r, "c", func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	boom := errors.New("boom")
	v, err = Call(context.Background(), r, "c", func(ctx context.Context) (int, error) { return 9, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, v)
}

func TestPanicKeepsActorUsable(t *testing.T) {
	r := NewRegistry(Options{})
	defer r.Close(context.Background())

	err := r.Do(context.Background(), "c", func(ctx context.Context) error { panic("kaboom") })
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.NoError(t, r.Do(context.Background(), "c", func(ctx context.Context) error { return nil }))
}

func TestCallerCancelDoesNotAbortCommand(t *testing.T) {
	r := NewRegistry(Options{})
	defer r.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	entered := make(chan struct{})
	go func() {
		_ = r.Do(ctx, "c", func(inner context.Context) error {
			close(entered)
			time.Sleep(20 * time.Millisecond)
			ran <- inner.Err()
			return nil
		})
	}()
	<-entered
	cancel()
	select {
	case err := <-ran:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("command did not complete")
	}
}

func TestIdleActorsRetire(t *testing.T) {
	r := NewRegistry(Options{IdleTimeout: 10 * time.Millisecond})
	defer r.Close(context.Background())

	retired := make(chan string, 1)
	r.OnRetire(func(id string) { retired <- id })

	require.NoError(t, r.Do(context.Background(), "c9", func(ctx context.Context) error { return nil }))
	select {
	case id := <-retired:
		assert.Equal(t, "c9", id)
	case <-time.After(time.Second):
		t.Fatal("actor did not retire")
	}
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Do(context.Background(), "c9", func(ctx context.Context) error { return nil }))
}

func TestClosedRegistryRejects(t *testing.T) {
	r := NewRegistry(Options{})
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	err := r.Do(context.Background(), "c", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRegistryClosed)
}
