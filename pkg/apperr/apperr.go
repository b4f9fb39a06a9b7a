// Package apperr defines the error taxonomy shared by the messaging core and
// its transports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotParticipant     Kind = "not_participant"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindSequencingConflict Kind = "sequencing_conflict"
	KindTransportLost      Kind = "transport_lost"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// Error carries a Kind plus the caller facing reason. Field is set for
// validation failures.
type Error struct {
	Kind   Kind   `json:"kind"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"error"`
	Cause  error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrNotParticipant       = &Error{Kind: KindNotParticipant, Reason: "not a conversation participant"}
	ErrConversationNotFound = &Error{Kind: KindNotFound, Reason: "conversation not found"}
	ErrMessageNotFound      = &Error{Kind: KindNotFound, Reason: "message not found"}
	ErrSessionNotFound      = &Error{Kind: KindNotFound, Reason: "session not found"}
	ErrSequencingConflict   = &Error{Kind: KindSequencingConflict, Reason: "sequence conflict"}
	ErrTransportLost        = &Error{Kind: KindTransportLost, Reason: "transport lost"}
	ErrStoreUnavailable     = &Error{Kind: KindUnavailable, Reason: "store unavailable"}
)

func Validation(field, reason string) error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func NotFound(reason string) error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func Conflict(reason string) error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// Unavailable marks a transient failure, typically a store round trip.
func Unavailable(reason string, cause error) error {
	return &Error{Kind: KindUnavailable, Reason: reason, Cause: cause}
}

func Internal(reason string, cause error) error {
	return &Error{Kind: KindInternal, Reason: reason, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the caller may retry the same request.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindSequencingConflict:
		return true
	}
	return false
}

// HTTPStatus maps err to the status code used by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotParticipant:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindSequencingConflict, KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTransportLost:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
