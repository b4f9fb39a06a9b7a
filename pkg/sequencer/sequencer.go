// Package sequencer issues per-conversation sequence numbers. A number is
// only consumed when the store accepts the append that carries it.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
	"github.com/karthiknish/aroosi-sub016/pkg/telemetry"
)

const DefaultMaxRetries = 3

// Backend is the slice of the store the sequencer needs.
type Backend interface {
	GetConversation(ctx context.Context, convID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.Message) error
}

type Sequencer struct {
	backend    Backend
	maxRetries int

	mu   sync.Mutex
	last map[string]uint64
}

func New(backend Backend, maxRetries int) *Sequencer {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Sequencer{
		backend:    backend,
		maxRetries: maxRetries,
		last:       make(map[string]uint64),
	}
}

func (s *Sequencer) cached(convID string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[convID]
	return v, ok
}

func (s *Sequencer) remember(convID string, seq uint64) {
	s.mu.Lock()
	if seq > s.last[convID] {
		s.last[convID] = seq
	}
	s.mu.Unlock()
}

// Forget drops the cached high-water mark; the next call resyncs from the
// store.
func (s *Sequencer) Forget(convID string) {
	s.mu.Lock()
	delete(s.last, convID)
	s.mu.Unlock()
}

func (s *Sequencer) current(ctx context.Context, convID string) (uint64, error) {
	if v, ok := s.cached(convID); ok {
		return v, nil
	}
	c, err := s.backend.GetConversation(ctx, convID)
	if err != nil {
		return 0, err
	}
	s.remember(convID, c.LastSequence)
	return c.LastSequence, nil
}

// Next returns the number the next accepted append for convID will carry.
// It does not reserve it.
func (s *Sequencer) Next(ctx context.Context, convID string) (uint64, error) {
	last, err := s.current(ctx, convID)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Append builds a message for the next sequence number and appends it with
// compare-and-append semantics. On a conflict the high-water mark is
// reloaded and the append retried, up to the configured bound. Callers must
// serialize Append per conversation.
func (s *Sequencer) Append(ctx context.Context, convID string, build func(seq uint64) *models.Message) (*models.Message, error) {
	tr := telemetry.Track("sequencer.append")
	defer tr.Finish()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		last, err := s.current(ctx, convID)
		if err != nil {
			return nil, err
		}
		m := build(last + 1)
		err = s.backend.AppendMessage(ctx, m)
		if err == nil {
			s.remember(convID, m.Sequence)
			return m, nil
		}
		s.Forget(convID)
		if !errors.Is(err, apperr.ErrSequencingConflict) {
			return nil, err
		}
		lastErr = err
		telemetry.SequencerRetries.Inc()
		logger.Warn("sequence_conflict", "conversation", convID, "offered", m.Sequence, "attempt", attempt+1)
	}
	return nil, &apperr.Error{
		Kind:   apperr.KindSequencingConflict,
		Reason: apperr.ErrSequencingConflict.Reason,
		Cause:  fmt.Errorf("gave up after %d attempts: %w", s.maxRetries+1, lastErr),
	}
}
