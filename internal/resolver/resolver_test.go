package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/smaller-world/happytown.life/internal/database"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selfLID = "999@lid"

func setupResolver(t *testing.T) (*Resolver, *database.Database) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(db, selfLID, logger), db
}

type payloadOpts struct {
	id        string
	remoteJID string
	body      string
	fromMe    bool
	lid       string
	message   *models.MessageContent
}

func envelope(t *testing.T, opts payloadOpts) *models.WebhookEnvelope {
	t.Helper()
	payload := models.MessagePayload{
		ID:        opts.id,
		RemoteJID: opts.remoteJID,
		Timestamp: time.Now().UnixMilli(),
		PushName:  "Ana",
		Key: models.MessageKey{
			FromMe:               opts.fromMe,
			ParticipantLID:       opts.lid,
			ParticipantPN:        "15551234567@s.whatsapp.net",
			CleanedParticipantPN: "+1 555 123 4567",
		},
		Message: opts.message,
	}
	if opts.body != "" {
		payload.Body = &opts.body
	}
	data, err := json.Marshal(models.MessageEventData{Messages: &payload})
	require.NoError(t, err)
	return &models.WebhookEnvelope{
		Event:     models.EventMessagesUpsert,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

func TestResolveMessage_CreatesGraph(t *testing.T) {
	r, db := setupResolver(t)
	ctx := context.Background()

	res, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-1", remoteJID: "123@g.us", body: "hello", lid: "1@lid",
	}))
	require.NoError(t, err)
	require.False(t, res.Skipped)
	assert.True(t, res.GroupCreated)
	assert.True(t, res.SenderCreated)
	assert.True(t, res.MessageStored)
	assert.Equal(t, "123@g.us", res.Group.JID)
	assert.Equal(t, "1@lid", res.Sender.LID)

	// sender identity observed from the payload
	sender, err := db.GetUserByLID(ctx, "1@lid")
	require.NoError(t, err)
	require.NotNil(t, sender.PhoneNumber)
	assert.Equal(t, "+15551234567", *sender.PhoneNumber)
	require.NotNil(t, sender.PhoneNumberJID)
	assert.Equal(t, "15551234567@s.whatsapp.net", *sender.PhoneNumberJID)
	require.NotNil(t, sender.DisplayName)
	assert.Equal(t, "Ana", *sender.DisplayName)

	stored, err := db.GetMessageByProviderID(ctx, res.Group.ID, "MSG-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello", stored.Body)
}

func TestResolveMessage_DuplicateDelivery(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	first, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-1", remoteJID: "123@g.us", body: "hello", lid: "1@lid",
	}))
	require.NoError(t, err)
	require.True(t, first.MessageStored)

	second, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-1", remoteJID: "123@g.us", body: "hello", lid: "1@lid",
	}))
	require.NoError(t, err)
	assert.False(t, second.MessageStored)
	assert.False(t, second.GroupCreated)
	assert.Equal(t, first.Message.ID, second.Message.ID)
}

func TestResolveMessage_FromMe(t *testing.T) {
	r, db := setupResolver(t)
	ctx := context.Background()

	res, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-1", remoteJID: "123@g.us", body: "I sent this", fromMe: true,
	}))
	require.NoError(t, err)
	assert.Equal(t, selfLID, res.Sender.LID)

	// the push name of an outbound message never overwrites the self row
	self, err := db.GetUserByLID(ctx, selfLID)
	require.NoError(t, err)
	assert.Nil(t, self.DisplayName)
}

func TestResolveMessage_Skips(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		opts   payloadOpts
		reason string
	}{
		{
			name:   "direct chat",
			opts:   payloadOpts{id: "M1", remoteJID: "15551234567@s.whatsapp.net", body: "hi", lid: "1@lid"},
			reason: "not a group chat",
		},
		{
			name:   "no text body",
			opts:   payloadOpts{id: "M2", remoteJID: "123@g.us", lid: "1@lid"},
			reason: "no text body",
		},
		{
			name: "reaction",
			opts: payloadOpts{
				id: "M3", remoteJID: "123@g.us", body: "👍", lid: "1@lid",
				message: &models.MessageContent{ReactionMessage: json.RawMessage(`{"text":"👍"}`)},
			},
			reason: "reaction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.ResolveMessage(ctx, envelope(t, tt.opts))
			require.NoError(t, err)
			assert.True(t, res.Skipped)
			assert.Equal(t, tt.reason, res.SkipReason)
		})
	}
}

func TestResolveMessage_PayloadErrors(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	// missing message id
	_, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		remoteJID: "123@g.us", body: "hi", lid: "1@lid",
	}))
	require.Error(t, err)
	assert.True(t, apperrors.IsPayload(err))

	// missing participant lid on an inbound message
	_, err = r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "M1", remoteJID: "123@g.us", body: "hi",
	}))
	require.Error(t, err)
	assert.True(t, apperrors.IsPayload(err))

	// undecodable data
	_, err = r.ResolveMessage(ctx, &models.WebhookEnvelope{
		Event: models.EventMessagesUpsert,
		Data:  json.RawMessage(`{"messages": "nope"}`),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsPayload(err))
}

func TestResolveMessage_MentionsResolveWithoutCreating(t *testing.T) {
	r, db := setupResolver(t)
	ctx := context.Background()

	// seed Ana so her mention resolves
	seed, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-SEED", remoteJID: "123@g.us", body: "hello", lid: "1@lid",
	}))
	require.NoError(t, err)

	mention := envelope(t, payloadOpts{
		id: "MSG-MENTION", remoteJID: "123@g.us", body: "@15551234567 @15550000000 hi", lid: "2@lid",
		message: &models.MessageContent{
			ExtendedTextMessage: &models.ExtendedTextMessage{
				ContextInfo: &models.MessageContextInfo{
					MentionedJID: []string{"15551234567@s.whatsapp.net", "15550000000@s.whatsapp.net"},
				},
			},
		},
	})
	res, err := r.ResolveMessage(ctx, mention)
	require.NoError(t, err)
	assert.Len(t, res.Message.MentionedJIDs, 2)

	// mentioning an unknown number did not create a user row
	unknown, err := db.GetUserByPhoneNumber(ctx, "+15550000000")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	// Ana's mention is linked and searchable
	result, err := db.SearchMessages(ctx, database.SearchQuery{
		GroupID:      seed.Group.ID,
		Participants: []string{"+15551234567"},
		PageSize:     10,
	})
	require.NoError(t, err)
	found := false
	for _, m := range result.Messages {
		if m.ProviderMessageID == "MSG-MENTION" {
			found = true
		}
	}
	assert.True(t, found, "mention message should match participant search")
}

func TestResolveMessage_Quotes(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	original, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-ORIG", remoteJID: "123@g.us", body: "the original", lid: "1@lid",
	}))
	require.NoError(t, err)

	quoteContent := func(stanzaID, conversation string) *models.MessageContent {
		return &models.MessageContent{
			ExtendedTextMessage: &models.ExtendedTextMessage{
				ContextInfo: &models.MessageContextInfo{
					Participant:   "15551234567@s.whatsapp.net",
					StanzaID:      stanzaID,
					QuotedMessage: &models.QuotedPayload{Conversation: conversation},
				},
			},
		}
	}

	// known stanza id resolves to the stored message
	res, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-REPLY", remoteJID: "123@g.us", body: "replying", lid: "2@lid",
		message: quoteContent("MSG-ORIG", "the original"),
	}))
	require.NoError(t, err)
	quote := res.Message.Quote()
	require.NotNil(t, quote)
	assert.Equal(t, models.QuoteResolved, quote.Kind)
	assert.Equal(t, original.Message.ID, quote.MessageID)
	assert.Equal(t, "the original", quote.Body)

	// unknown stanza id keeps the denormalized quote
	res, err = r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-REPLY-2", remoteJID: "123@g.us", body: "replying to history", lid: "2@lid",
		message: quoteContent("MSG-BEFORE-BOT", "from before the bot joined"),
	}))
	require.NoError(t, err)
	quote = res.Message.Quote()
	require.NotNil(t, quote)
	assert.Equal(t, models.QuoteUnresolved, quote.Kind)
	assert.Equal(t, "from before the bot joined", quote.Body)
	assert.Equal(t, "15551234567@s.whatsapp.net", quote.ParticipantJID)
}

func TestResolveMessage_QuoteBodyBackfilledFromStore(t *testing.T) {
	r, _ := setupResolver(t)
	ctx := context.Background()

	_, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-ORIG", remoteJID: "123@g.us", body: "the original", lid: "1@lid",
	}))
	require.NoError(t, err)

	res, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
		id: "MSG-REPLY", remoteJID: "123@g.us", body: "replying", lid: "2@lid",
		message: &models.MessageContent{
			ExtendedTextMessage: &models.ExtendedTextMessage{
				ContextInfo: &models.MessageContextInfo{StanzaID: "MSG-ORIG"},
			},
		},
	}))
	require.NoError(t, err)
	quote := res.Message.Quote()
	require.NotNil(t, quote)
	assert.Equal(t, models.QuoteResolved, quote.Kind)
	assert.Equal(t, "the original", quote.Body)
}

func TestResolveMessage_ManyMessages(t *testing.T) {
	r, db := setupResolver(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.ResolveMessage(ctx, envelope(t, payloadOpts{
			id: fmt.Sprintf("MSG-%d", i), remoteJID: "123@g.us",
			body: fmt.Sprintf("message %d", i), lid: "1@lid",
		}))
		require.NoError(t, err)
	}

	group, err := db.GetGroupByJID(ctx, "123@g.us")
	require.NoError(t, err)
	recent, err := db.ListRecentMessages(ctx, group.ID, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}
