package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stringPtr(s string) *string { return &s }

func TestGroup_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		group    Group
		expected string
	}{
		{
			name:     "with subject",
			group:    Group{JID: "1@g.us", Subject: stringPtr("Lunch Club")},
			expected: "Lunch Club",
		},
		{
			name:     "empty subject falls back to jid",
			group:    Group{JID: "1@g.us", Subject: stringPtr("")},
			expected: "1@g.us",
		},
		{
			name:     "no subject",
			group:    Group{JID: "1@g.us"},
			expected: "1@g.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.group.DisplayName())
		})
	}
}

func TestUser_Name(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		expected string
	}{
		{
			name:     "display name wins",
			user:     User{LID: "7@lid", PhoneNumber: stringPtr("+15551234567"), DisplayName: stringPtr("Ana")},
			expected: "Ana",
		},
		{
			name:     "phone number second",
			user:     User{LID: "7@lid", PhoneNumber: stringPtr("+15551234567")},
			expected: "+15551234567",
		},
		{
			name:     "lid last",
			user:     User{LID: "7@lid"},
			expected: "7@lid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.user.Name())
		})
	}
}

func TestMessage_Quote(t *testing.T) {
	t.Run("no quote", func(t *testing.T) {
		msg := Message{}
		assert.Nil(t, msg.Quote())
	})

	t.Run("resolved quote", func(t *testing.T) {
		msg := Message{
			QuotedMessageID:      stringPtr("m-1"),
			QuotedParticipantJID: stringPtr("7@lid"),
			QuotedBody:           stringPtr("see you at noon"),
		}
		q := msg.Quote()
		assert.NotNil(t, q)
		assert.Equal(t, QuoteResolved, q.Kind)
		assert.Equal(t, "m-1", q.MessageID)
		assert.Equal(t, "see you at noon", q.Body)
		assert.Equal(t, "7@lid", q.ParticipantJID)
	})

	t.Run("unresolved quote keeps denormalized fields", func(t *testing.T) {
		msg := Message{
			QuotedParticipantJID: stringPtr("7@lid"),
			QuotedBody:           stringPtr("an old message we never saw"),
		}
		q := msg.Quote()
		assert.NotNil(t, q)
		assert.Equal(t, QuoteUnresolved, q.Kind)
		assert.Empty(t, q.MessageID)
		assert.Equal(t, "an old message we never saw", q.Body)
	})
}

func TestMessage_Mentions(t *testing.T) {
	msg := Message{MentionedJIDs: []string{"1@lid", "2@lid"}}
	assert.True(t, msg.Mentions("1@lid"))
	assert.False(t, msg.Mentions("3@lid"))
	assert.False(t, (&Message{}).Mentions("1@lid"))
}

func TestMessage_ReplySent(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Message{}).ReplySent())
	assert.True(t, (&Message{ReplySentAt: &now}).ReplySent())
}

func TestMessageView_SenderName(t *testing.T) {
	view := MessageView{SenderLID: "7@lid"}
	assert.Equal(t, "7@lid", view.SenderName())

	view.SenderPhoneNumber = stringPtr("+15551234567")
	assert.Equal(t, "+15551234567", view.SenderName())

	view.SenderDisplayName = stringPtr("Ana")
	assert.Equal(t, "Ana", view.SenderName())
}
