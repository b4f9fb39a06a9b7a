package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/store/pebblestore"
)

func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	s, err := pebblestore.Open(state.StorePath(dir), pebblestore.Options{})
	require.NoError(t, err)
	_, _, err = s.CreateConversation(ctx, &models.Conversation{ID: "c1", Participants: []string{"alice", "bob"}, CreatedTS: 1_700_000_000_000})
	require.NoError(t, err)
	for i, text := range []string{"salaam", "how are you", "fine"} {
		require.NoError(t, s.AppendMessage(ctx, &models.Message{
			ID:             fmt.Sprintf("m%d", i+1),
			ConversationID: "c1",
			SenderID:       "alice",
			Sequence:       uint64(i + 1),
			Type:           models.MessageText,
			Payload:        text,
			Status:         models.StatusSent,
			CreatedTS:      1_700_000_000_000,
		}))
	}
	require.NoError(t, s.Close())
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInspectSummarisesKinds(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "inspect", "--db", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "message")
	assert.Contains(t, out, "conversation")
	assert.Contains(t, out, "system")

	out, err = run(t, "inspect", "--db", dir, "--json")
	require.NoError(t, err)
	var body struct {
		Total int           `json:"total"`
		Kinds []kindSummary `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	counts := map[string]int{}
	for _, k := range body.Kinds {
		counts[k.Kind] = k.Keys
	}
	assert.Equal(t, 3, counts["message"])
}

func TestInspectDecodesKey(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "inspect", "--db", dir, "--key", "c:c1")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
}

func TestConversationShowsParticipants(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "conversation", "c1", "--db", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "alice, bob")
	assert.Contains(t, out, "Messages:      3")

	_, err = run(t, "conversation", "missing", "--db", dir)
	assert.Error(t, err)
}

func TestReplayAfterSequence(t *testing.T) {
	dir := seed(t)
	out, err := run(t, "replay", "c1", "--after", "1", "--db", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#2"))
	assert.Contains(t, lines[1], "fine")

	out, err = run(t, "replay", "c1", "--after", "3", "--db", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "no messages after 3")
}

func TestMissingStore(t *testing.T) {
	_, err := run(t, "inspect", "--db", t.TempDir())
	assert.Error(t, err)
}
