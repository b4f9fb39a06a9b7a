package keys

import (
	"fmt"
	"strconv"
	"strings"
)

type MessageKeyParts struct {
	ConversationID string
	Seq            uint64
}

// ParseMessageKey parses c:<conv>:m:<seq>.
func ParseMessageKey(key string) (MessageKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "c" || parts[2] != "m" {
		return MessageKeyParts{}, fmt.Errorf("invalid message key: %q", key)
	}
	if len(parts[3]) != SeqPadWidth {
		return MessageKeyParts{}, fmt.Errorf("invalid sequence width in key: %q", key)
	}
	seq, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return MessageKeyParts{}, fmt.Errorf("invalid sequence in key %q: %w", key, err)
	}
	conv, err := Unescape(parts[1])
	if err != nil {
		return MessageKeyParts{}, fmt.Errorf("invalid conversation segment in key %q: %w", key, err)
	}
	return MessageKeyParts{ConversationID: conv, Seq: seq}, nil
}

// ParseConversationKey parses c:<conv> and rejects message keys.
func ParseConversationKey(key string) (string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 2 || parts[0] != "c" || parts[1] == "" {
		return "", fmt.Errorf("invalid conversation key: %q", key)
	}
	return Unescape(parts[1])
}

// Kind classifies a raw key by its leading segment, for inspection output.
func Kind(key string) string {
	switch {
	case strings.HasPrefix(key, "system:"):
		return "system"
	case strings.HasPrefix(key, PrefixConversation):
		if strings.Contains(key, ":m:") {
			return "message"
		}
		return "conversation"
	case strings.HasPrefix(key, "cp:"):
		return "conversation_set"
	case strings.HasPrefix(key, "u:"):
		return "user_conversation"
	case strings.HasPrefix(key, "m:"):
		return "message_locator"
	case strings.HasPrefix(key, PrefixIdempotency):
		return "idempotency"
	case strings.HasPrefix(key, PrefixReaction):
		return "reaction"
	case strings.HasPrefix(key, PrefixNotification):
		return "notification"
	case strings.HasPrefix(key, PrefixReport):
		return "report"
	case strings.HasPrefix(key, "apo:"):
		return "open_appeal"
	case strings.HasPrefix(key, PrefixAppeal):
		return "appeal"
	case strings.HasPrefix(key, PrefixProfileView):
		return "profile_view"
	case strings.HasPrefix(key, PrefixIcebreaker):
		return "icebreaker_answer"
	}
	return "unknown"
}
