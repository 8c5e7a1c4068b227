package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db    *Database
	group *models.Group
	ana   *models.User
	bob   *models.User
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	group, _, err := db.FindOrCreateGroupByJID(ctx, "123@g.us")
	require.NoError(t, err)
	ana, _, err := db.FindOrCreateUserByLID(ctx, "1@lid")
	require.NoError(t, err)
	require.NoError(t, db.UpdateUserObserved(ctx, ana.ID, "+15551234567", "15551234567@s.whatsapp.net", "Ana"))
	bob, _, err := db.FindOrCreateUserByLID(ctx, "2@lid")
	require.NoError(t, err)

	return &fixture{db: db, group: group, ana: ana, bob: bob}
}

func (f *fixture) addMessage(t *testing.T, senderID, body string, ts time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		GroupID:           f.group.ID,
		SenderID:          senderID,
		ProviderMessageID: fmt.Sprintf("PROV-%d", ts.UnixNano()),
		Body:              body,
		Timestamp:         ts,
	}
	stored, err := f.db.CreateMessage(context.Background(), msg, nil)
	require.NoError(t, err)
	require.True(t, stored)
	return msg
}

func TestCreateMessage_IdempotentOnProviderID(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	msg := &models.Message{
		GroupID:           f.group.ID,
		SenderID:          f.ana.ID,
		ProviderMessageID: "PROV-1",
		Body:              "hello",
		Timestamp:         time.Now().UTC(),
	}
	stored, err := f.db.CreateMessage(ctx, msg, nil)
	require.NoError(t, err)
	assert.True(t, stored)

	dup := &models.Message{
		GroupID:           f.group.ID,
		SenderID:          f.ana.ID,
		ProviderMessageID: "PROV-1",
		Body:              "hello again",
		Timestamp:         time.Now().UTC(),
	}
	stored, err = f.db.CreateMessage(ctx, dup, nil)
	require.NoError(t, err)
	assert.False(t, stored)

	loaded, err := f.db.GetMessageByProviderID(ctx, f.group.ID, "PROV-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, msg.ID, loaded.ID)
	assert.Equal(t, "hello", loaded.Body)
}

func TestCreateMessage_StoresMentions(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	msg := &models.Message{
		GroupID:           f.group.ID,
		SenderID:          f.bob.ID,
		ProviderMessageID: "PROV-M",
		Body:              "@15551234567 ping",
		Timestamp:         time.Now().UTC(),
		MentionedJIDs:     []string{"15551234567@s.whatsapp.net"},
	}
	stored, err := f.db.CreateMessage(ctx, msg, []string{f.ana.ID})
	require.NoError(t, err)
	require.True(t, stored)

	loaded, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"15551234567@s.whatsapp.net"}, loaded.MentionedJIDs)

	// mention rows are queryable through participant search
	result, err := f.db.SearchMessages(ctx, SearchQuery{
		GroupID:      f.group.ID,
		Participants: []string{"+15551234567"},
		PageSize:     10,
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, msg.ID, result.Messages[0].ID)
}

func TestMarkReplySent_Once(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	msg := f.addMessage(t, f.ana.ID, "question", time.Now().UTC())

	claimed, err := f.db.MarkReplySent(ctx, msg.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = f.db.MarkReplySent(ctx, msg.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	loaded, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ReplySent())
}

func TestGetMessageView_QuotedSenderName(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	quoted := f.addMessage(t, f.ana.ID, "original", time.Now().UTC().Add(-time.Minute))
	body := "original"
	jid := "15551234567@s.whatsapp.net"
	reply := &models.Message{
		GroupID:              f.group.ID,
		SenderID:             f.bob.ID,
		ProviderMessageID:    "PROV-R",
		Body:                 "replying",
		Timestamp:            time.Now().UTC(),
		QuotedMessageID:      &quoted.ID,
		QuotedParticipantJID: &jid,
		QuotedBody:           &body,
	}
	stored, err := f.db.CreateMessage(ctx, reply, nil)
	require.NoError(t, err)
	require.True(t, stored)

	view, err := f.db.GetMessageView(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "2@lid", view.SenderLID)
	require.NotNil(t, view.QuotedSenderName)
	assert.Equal(t, "Ana", *view.QuotedSenderName)

	// unresolved quotes keep the denormalized body but have no sender name
	unresolved := &models.Message{
		GroupID:           f.group.ID,
		SenderID:          f.bob.ID,
		ProviderMessageID: "PROV-U",
		Body:              "replying to something old",
		Timestamp:         time.Now().UTC(),
		QuotedBody:        &body,
	}
	stored, err = f.db.CreateMessage(ctx, unresolved, nil)
	require.NoError(t, err)
	require.True(t, stored)

	view, err = f.db.GetMessageView(ctx, unresolved.ID)
	require.NoError(t, err)
	assert.Nil(t, view.QuotedSenderName)
}

func TestListMessagesAroundAnchor(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	msgs := make([]*models.Message, 7)
	for i := range msgs {
		msgs[i] = f.addMessage(t, f.ana.ID, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))
	}
	anchor := msgs[3]

	before, err := f.db.ListMessagesBefore(ctx, f.group.ID, anchor.ID, 2)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, "msg 1", before[0].Body)
	assert.Equal(t, "msg 2", before[1].Body)

	after, err := f.db.ListMessagesAfter(ctx, f.group.ID, anchor.ID, 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "msg 4", after[0].Body)
	assert.Equal(t, "msg 5", after[1].Body)
}

func TestListRecentMessages_ChronologicalOrder(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		f.addMessage(t, f.ana.ID, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	recent, err := f.db.ListRecentMessages(ctx, f.group.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 2", recent[0].Body)
	assert.Equal(t, "msg 4", recent[2].Body)
}
