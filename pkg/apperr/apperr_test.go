package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("toggle: %w", ErrMessageNotFound)
	assert.True(t, errors.Is(wrapped, ErrMessageNotFound))
	assert.False(t, errors.Is(wrapped, ErrConversationNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestTransientKinds(t *testing.T) {
	assert.True(t, IsTransient(Unavailable("append", errors.New("io"))))
	assert.True(t, IsTransient(ErrSequencingConflict))
	assert.False(t, IsTransient(Validation("payload", "empty")))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("type", "unknown"), http.StatusBadRequest},
		{ErrNotParticipant, http.StatusForbidden},
		{ErrMessageNotFound, http.StatusNotFound},
		{Conflict("open appeal exists"), http.StatusConflict},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestErrorMessageIncludesFieldAndCause(t *testing.T) {
	err := &Error{Kind: KindValidation, Field: "payload", Reason: "too long"}
	assert.Equal(t, "payload: too long", err.Error())

	err = &Error{Kind: KindUnavailable, Reason: "store unavailable", Cause: errors.New("disk full")}
	assert.Equal(t, "store unavailable: disk full", err.Error())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
