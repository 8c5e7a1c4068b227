package tools

import (
	"testing"
	"time"

	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/stretchr/testify/assert"
)

func stringPtr(s string) *string { return &s }

func TestRenderMessage(t *testing.T) {
	ts := time.Date(2026, 8, 10, 12, 30, 0, 0, time.UTC)

	plain := &models.MessageView{
		Message: models.Message{
			ID:        "msg-1",
			Body:      "hello there",
			Timestamp: ts,
		},
		SenderLID:         "1@lid",
		SenderDisplayName: stringPtr("Ana"),
	}
	assert.Equal(t, "[msg-1] 2026-08-10 12:30 Ana: hello there", RenderMessage(plain))

	quoted := &models.MessageView{
		Message: models.Message{
			ID:              "msg-2",
			Body:            "agreed",
			Timestamp:       ts,
			QuotedMessageID: stringPtr("msg-1"),
			QuotedBody:      stringPtr("hello there"),
		},
		SenderLID:        "2@lid",
		QuotedSenderName: stringPtr("Ana"),
	}
	assert.Equal(t,
		"[msg-2] 2026-08-10 12:30 2@lid: agreed\n    (quoting Ana: hello there)",
		RenderMessage(quoted))

	unresolvedQuote := &models.MessageView{
		Message: models.Message{
			ID:         "msg-3",
			Body:       "what was that about?",
			Timestamp:  ts,
			QuotedBody: stringPtr("an old message"),
		},
		SenderLID: "2@lid",
	}
	assert.Contains(t, RenderMessage(unresolvedQuote), "(quoting (unknown user): an old message)")
}

func TestRenderMessages(t *testing.T) {
	assert.Equal(t, "No messages found.", RenderMessages(nil))

	ts := time.Date(2026, 8, 10, 12, 30, 0, 0, time.UTC)
	views := []*models.MessageView{
		{Message: models.Message{ID: "a", Body: "one", Timestamp: ts}, SenderLID: "1@lid"},
		{Message: models.Message{ID: "b", Body: "two", Timestamp: ts}, SenderLID: "2@lid"},
	}
	assert.Equal(t,
		"[a] 2026-08-10 12:30 1@lid: one\n[b] 2026-08-10 12:30 2@lid: two",
		RenderMessages(views))
}
