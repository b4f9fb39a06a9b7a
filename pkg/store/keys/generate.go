package keys

import (
	"fmt"
	"net/url"
)

func esc(s string) string { return url.QueryEscape(s) }

// Unescape reverses the escaping applied to a variable key segment.
func Unescape(s string) (string, error) { return url.QueryUnescape(s) }

func PadSeq(seq uint64) string { return fmt.Sprintf("%0*d", SeqPadWidth, seq) }

func PadTS(ts int64) string { return fmt.Sprintf("%0*d", TSPadWidth, ts) }

func GenConversationKey(convID string) string {
	return fmt.Sprintf(ConversationKey, esc(convID))
}

func GenConversationSetKey(participantSet string) string {
	return fmt.Sprintf(ConversationSetKey, esc(participantSet))
}

func GenUserConversationKey(userID, convID string) string {
	return fmt.Sprintf(UserConversationKey, esc(userID), esc(convID))
}

func UserConversationPrefix(userID string) string {
	return fmt.Sprintf("u:%s:c:", esc(userID))
}

func GenMessageKey(convID string, seq uint64) string {
	return fmt.Sprintf(MessageKey, esc(convID), PadSeq(seq))
}

// MessagePrefix covers every message of a conversation in sequence order.
func MessagePrefix(convID string) string {
	return fmt.Sprintf("c:%s:m:", esc(convID))
}

func GenMessageLocatorKey(msgID string) string {
	return fmt.Sprintf(MessageLocatorKey, esc(msgID))
}

func GenIdempotencyKey(convID, senderID, token string) string {
	return fmt.Sprintf(IdempotencyKey, esc(convID), esc(senderID), esc(token))
}

func GenReactionKey(msgID, userID, emoji string) string {
	return fmt.Sprintf(ReactionKey, esc(msgID), esc(userID), esc(emoji))
}

func ReactionPrefix(msgID string) string {
	return fmt.Sprintf("r:%s:", esc(msgID))
}

func GenNotificationKey(userID, notifID string) string {
	return fmt.Sprintf(NotificationKey, esc(userID), esc(notifID))
}

func NotificationPrefix(userID string) string {
	return fmt.Sprintf("n:%s:", esc(userID))
}

func GenReportKey(reportID string) string {
	return fmt.Sprintf(ReportKey, esc(reportID))
}

func GenAppealKey(userID, appealID string) string {
	return fmt.Sprintf(AppealKey, esc(userID), esc(appealID))
}

func AppealPrefix(userID string) string {
	return fmt.Sprintf("ap:%s:", esc(userID))
}

func GenOpenAppealKey(userID, actionID string) string {
	return fmt.Sprintf(OpenAppealKey, esc(userID), esc(actionID))
}

func GenProfileViewKey(profileID string, ts int64, viewerID string) string {
	return fmt.Sprintf(ProfileViewKey, esc(profileID), PadTS(ts), esc(viewerID))
}

func ProfileViewPrefix(profileID string) string {
	return fmt.Sprintf("pv:%s:", esc(profileID))
}

func GenIcebreakerAnswerKey(userID, questionID string) string {
	return fmt.Sprintf(IcebreakerAnswerKey, esc(userID), esc(questionID))
}

func IcebreakerPrefix(userID string) string {
	return fmt.Sprintf("ib:%s:", esc(userID))
}

// PrefixEnd returns the smallest key greater than every key with prefix p.
func PrefixEnd(p string) []byte {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			end := append([]byte(nil), b[:i+1]...)
			end[i]++
			return end
		}
	}
	return nil
}
