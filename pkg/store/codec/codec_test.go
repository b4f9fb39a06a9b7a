package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/models"
)

func TestDeterministicEncoding(t *testing.T) {
	c := models.Conversation{
		ID:           "c1",
		Participants: []string{"a", "b"},
		Cursors:      map[string]models.Cursor{"b": {Delivered: 1}, "a": {Read: 2}},
	}
	first, err := Marshal(c)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(c)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	var out models.Conversation
	require.NoError(t, Unmarshal(first, &out))
	assert.Equal(t, c, out)
}

func TestDiagnoseUsesJSONNames(t *testing.T) {
	b, err := Marshal(models.Reaction{MessageID: "m", UserID: "u", Emoji: "x"})
	require.NoError(t, err)
	diag, err := Diagnose(b)
	require.NoError(t, err)
	assert.Contains(t, diag, `"message_id"`)
}
