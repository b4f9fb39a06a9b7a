package models

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVoice  MessageType = "voice"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVoice, MessageSystem:
		return true
	}
	return false
}

// IsMedia reports whether the payload of t is a content reference.
func (t MessageType) IsMedia() bool {
	return t == MessageImage || t == MessageVoice
}

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Rank orders the forward path pending < sent < delivered < read. Failed
// is terminal and ranks below pending so it is never "advanced" into.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a forward transition.
func (s DeliveryStatus) Advances(next DeliveryStatus) bool {
	if s == StatusFailed {
		return false
	}
	return next.Rank() > s.Rank()
}

// Message is owned by its conversation and immutable once sent except for
// Status.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Sequence       uint64         `json:"sequence"`
	Type           MessageType    `json:"type"`
	Payload        string         `json:"payload"`
	CreatedTS      int64          `json:"created_ts"`
	Status         DeliveryStatus `json:"status"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

const MaxReferenceLength = 2048

var referenceSchemes = map[string]struct{}{
	"https": {},
	"http":  {},
	"s3":    {},
	"gs":    {},
	"media": {},
}

// ValidatePayload enforces the type specific payload rules. It returns the
// offending reason or "" when the payload is acceptable.
func ValidatePayload(t MessageType, payload string, maxText int) string {
	switch {
	case t == MessageText || t == MessageSystem:
		n := utf8.RuneCountInString(payload)
		if strings.TrimSpace(payload) == "" {
			return "text must not be empty"
		}
		if n > maxText {
			return "text exceeds maximum length"
		}
		return ""
	case t.IsMedia():
		if payload == "" {
			return "media reference required"
		}
		if len(payload) > MaxReferenceLength {
			return "media reference too long"
		}
		u, err := url.Parse(payload)
		if err != nil || u.Scheme == "" {
			return "media payload must be a content reference"
		}
		if _, ok := referenceSchemes[strings.ToLower(u.Scheme)]; !ok {
			return "media payload must be a content reference"
		}
		return ""
	default:
		return "unknown message type"
	}
}
