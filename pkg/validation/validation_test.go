package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var e *apperr.Error
	require.True(t, errors.As(err, &e), "expected *apperr.Error, got %T", err)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	return e.Field
}

func TestSendMessage(t *testing.T) {
	ok := SendMessage{ConversationID: "c1", SenderID: "a", Type: models.MessageText, Payload: "hi"}
	require.NoError(t, ok.Validate(10))

	cases := []struct {
		name  string
		msg   SendMessage
		field string
	}{
		{"missing conversation", SendMessage{SenderID: "a", Type: models.MessageText, Payload: "x"}, "conversation_id"},
		{"system from client", SendMessage{ConversationID: "c", SenderID: "a", Type: models.MessageSystem, Payload: "x"}, "type"},
		{"missing type", SendMessage{ConversationID: "c", SenderID: "a", Payload: "x"}, "type"},
		{"too long", SendMessage{ConversationID: "c", SenderID: "a", Type: models.MessageText, Payload: strings.Repeat("a", 11)}, "payload"},
		{"inline image", SendMessage{ConversationID: "c", SenderID: "a", Type: models.MessageImage, Payload: "data:image/png;base64,AA"}, "payload"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.field, fieldOf(t, c.msg.Validate(10)))
		})
	}
}

func TestOpenConversation(t *testing.T) {
	require.NoError(t, (&OpenConversation{CreatorID: "a", Participants: []string{"b"}}).Validate())
	assert.Equal(t, "participants", fieldOf(t, (&OpenConversation{CreatorID: "a", Participants: []string{"a"}}).Validate()))
}

func TestAppealBounds(t *testing.T) {
	require.NoError(t, (&Appeal{Reason: "r", Details: "d"}).Validate())
	assert.Equal(t, "reason", fieldOf(t, (&Appeal{Reason: "", Details: "d"}).Validate()))
	assert.Equal(t, "reason", fieldOf(t, (&Appeal{Reason: strings.Repeat("r", 501), Details: "d"}).Validate()))
	assert.Equal(t, "details", fieldOf(t, (&Appeal{Reason: "r", Details: strings.Repeat("d", 2001)}).Validate()))
}

func TestSmallContracts(t *testing.T) {
	assert.Equal(t, "emoji", fieldOf(t, (&ToggleReaction{MessageID: "m"}).Validate()))
	assert.Equal(t, "action", fieldOf(t, (&Typing{ConversationID: "c", Action: "pause"}).Validate()))
	assert.Equal(t, "ids", fieldOf(t, (&MarkRead{}).Validate()))
	assert.Equal(t, "profile_id", fieldOf(t, (&ProfileView{}).Validate()))
	assert.Equal(t, "answer", fieldOf(t, (&IcebreakerAnswer{QuestionID: "q", Answer: strings.Repeat("x", 501)}).Validate()))
	assert.Equal(t, "reason", fieldOf(t, (&Report{TargetID: "u", Reason: "rude"}).Validate()))

	require.NoError(t, (&MarkRead{IDs: []string{"n1"}}).Validate())
	require.NoError(t, (&Report{TargetID: "u", Reason: models.ReasonSpam}).Validate())
}

func TestResultCombinesMessages(t *testing.T) {
	r := &Result{}
	r.Add("a", "bad")
	r.Add("b", "worse")
	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: worse")
}
