package models

import (
	"strings"
	"testing"
)

func TestNormalizeParticipants(t *testing.T) {
	got := NormalizeParticipants([]string{" b", "a", "b", "", "c"})
	want := []string{"a", "b", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("NormalizeParticipants = %v, want %v", got, want)
	}
	if ParticipantSetKey([]string{"b", "a"}) != ParticipantSetKey([]string{"a", "b", "a"}) {
		t.Fatalf("participant set key must be order insensitive")
	}
}

func TestConversationHelpers(t *testing.T) {
	c := &Conversation{ID: "c1", Participants: NormalizeParticipants([]string{"bob", "alice", "carol"})}
	if !c.HasParticipant("alice") || c.HasParticipant("mallory") {
		t.Fatalf("HasParticipant mismatch")
	}
	r := c.Recipients("bob")
	if len(r) != 2 || r[0] != "alice" || r[1] != "carol" {
		t.Fatalf("Recipients = %v", r)
	}

	c.Cursors = map[string]Cursor{"alice": {Delivered: 2}}
	cl := c.Clone()
	cl.Cursors["alice"] = Cursor{Delivered: 9}
	cl.Participants[0] = "zed"
	if c.Cursor("alice").Delivered != 2 || c.Participants[0] != "alice" {
		t.Fatalf("Clone shares state with original")
	}
}

func TestStatusAdvances(t *testing.T) {
	cases := []struct {
		from, to DeliveryStatus
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusRead, true},
		{StatusSent, StatusRead, true},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusFailed, StatusSent, false},
	}
	for _, c := range cases {
		if got := c.from.Advances(c.to); got != c.want {
			t.Fatalf("%s -> %s: got %v want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestValidatePayload(t *testing.T) {
	cases := []struct {
		name    string
		typ     MessageType
		payload string
		ok      bool
	}{
		{"text ok", MessageText, "hi", true},
		{"text empty", MessageText, "  ", false},
		{"text too long", MessageText, strings.Repeat("x", 11), false},
		{"text at limit", MessageText, strings.Repeat("é", 10), true},
		{"image ref", MessageImage, "https://cdn.example.com/a.jpg", true},
		{"voice media ref", MessageVoice, "media:voice/abc", true},
		{"image inline bytes", MessageImage, "data:image/png;base64,AAAA", false},
		{"image not a ref", MessageImage, "just text", false},
		{"unknown", MessageType("video"), "x", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reason := ValidatePayload(c.typ, c.payload, 10)
			if (reason == "") != c.ok {
				t.Fatalf("ValidatePayload(%s, %q) = %q", c.typ, c.payload, reason)
			}
		})
	}
}

func TestReportReasonClosedSet(t *testing.T) {
	if !ReasonSpam.Valid() || ReportReason("rude").Valid() {
		t.Fatalf("report reason enumeration mismatch")
	}
}
