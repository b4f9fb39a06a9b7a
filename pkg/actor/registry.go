// Package actor serializes work per conversation: each conversation id owns
// one goroutine draining a bounded command queue. Actors are created on
// first use and retire after an idle period.
package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

var ErrRegistryClosed = apperr.Unavailable("conversation actors shutting down", nil)

type Options struct {
	QueueSize   int
	IdleTimeout time.Duration
}

type command struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

type actor struct {
	id      string
	cmds    chan command
	pending int // guarded by Registry.mu
}

type Registry struct {
	mu      sync.Mutex
	actors  map[string]*actor
	opts    Options
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
	retired []func(convID string)
}

func NewRegistry(opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Minute
	}
	return &Registry{
		actors: make(map[string]*actor),
		opts:   opts,
		stop:   make(chan struct{}),
	}
}

// OnRetire registers fn to run (on the retiring actor's goroutine) when an
// idle actor exits, so per-conversation caches can be dropped.
func (r *Registry) OnRetire(fn func(convID string)) {
	r.mu.Lock()
	r.retired = append(r.retired, fn)
	r.mu.Unlock()
}

// Len reports the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// acquire returns the actor for convID, starting it if needed, and counts
// one pending command against it so it cannot retire underneath the caller.
func (r *Registry) acquire(convID string) (*actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	a, ok := r.actors[convID]
	if !ok {
		a = &actor{id: convID, cmds: make(chan command, r.opts.QueueSize)}
		r.actors[convID] = a
		r.wg.Add(1)
		telemetry.ActiveActors.Inc()
		go r.run(a)
		logger.Debug("actor_started", "conversation", convID)
	}
	a.pending++
	return a, nil
}

func (r *Registry) release(a *actor) {
	r.mu.Lock()
	a.pending--
	r.mu.Unlock()
}

// Do runs fn on convID's actor and waits for its result. Commands for one
// conversation run one at a time in submission order. fn receives a context
// that is not cancelled when the caller gives up, so a mutation that has
// started always completes. fn must not call Do for the same conversation.
func (r *Registry) Do(ctx context.Context, convID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := r.acquire(convID)
	if err != nil {
		return err
	}
	cmd := command{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan error, 1)}
	select {
	case a.cmds <- cmd:
	case <-ctx.Done():
		r.release(a)
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, r *Registry, convID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, convID, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (r *Registry) run(a *actor) {
	defer r.wg.Done()
	defer telemetry.ActiveActors.Dec()

	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd := <-a.cmds:
			r.exec(a, cmd)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.IdleTimeout)

		case <-idle.C:
			if r.tryRetire(a) {
				return
			}
			idle.Reset(r.opts.IdleTimeout)

		case <-r.stop:
			r.drain(a)
			return
		}
	}
}

func (r *Registry) exec(a *actor, cmd command) {
	defer r.release(a)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("actor_command_panic", "conversation", a.id, "panic", p, "stack", string(debug.Stack()))
			cmd.done <- apperr.Internal("conversation command failed", fmt.Errorf("panic: %v", p))
		}
	}()
	cmd.done <- cmd.fn(cmd.ctx)
}

func (r *Registry) tryRetire(a *actor) bool {
	r.mu.Lock()
	if a.pending > 0 || len(a.cmds) > 0 {
		r.mu.Unlock()
		return false
	}
	delete(r.actors, a.id)
	hooks := append([]func(string){}, r.retired...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(a.id)
	}
	logger.Debug("actor_retired", "conversation", a.id)
	return true
}

// drain runs whatever was queued before shutdown, including commands from
// callers that acquired the actor but had not enqueued yet.
func (r *Registry) drain(a *actor) {
	for {
		select {
		case cmd := <-a.cmds:
			r.exec(a, cmd)
		default:
			r.mu.Lock()
			idle := a.pending == 0
			r.mu.Unlock()
			if idle {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// Close stops accepting commands, finishes queued ones and waits for every
// actor to exit or ctx to expire.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("actors_stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("actors_stop_timeout")
		return ctx.Err()
	}
}
