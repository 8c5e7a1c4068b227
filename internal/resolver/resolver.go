// Package resolver turns gateway message payloads into the persisted
// group/user/message graph.
package resolver

import (
	"context"
	"strings"

	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/models"
	"github.com/smaller-world/happytown.life/internal/phone"

	"github.com/sirupsen/logrus"
)

const groupJIDSuffix = "@g.us"

// Store is the subset of the database the resolver needs.
type Store interface {
	FindOrCreateGroupByJID(ctx context.Context, jid string) (*models.Group, bool, error)
	FindOrCreateUserByLID(ctx context.Context, lid string) (*models.User, bool, error)
	UpdateUserObserved(ctx context.Context, id, phoneNumber, phoneNumberJID, displayName string) error
	GetMessageByProviderID(ctx context.Context, groupID, providerMessageID string) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message, mentionedUserIDs []string) (bool, error)
	FindUserIDsByIdentifiers(ctx context.Context, identifiers []string) ([]string, error)
}

// Resolution reports what a message event produced. Skipped resolutions
// carry a reason and nothing else.
type Resolution struct {
	Skipped       bool
	SkipReason    string
	Group         *models.Group
	GroupCreated  bool
	Sender        *models.User
	SenderCreated bool
	Message       *models.Message
	MessageStored bool
}

// Resolver persists the entities referenced by message events. Messages the
// bot itself sent are attributed to the configured self identity.
type Resolver struct {
	store   Store
	selfLID string
	logger  *logrus.Logger
}

func New(store Store, selfLID string, logger *logrus.Logger) *Resolver {
	return &Resolver{store: store, selfLID: selfLID, logger: logger}
}

// ResolveMessage upserts the group, sender and message referenced by one
// messages.upsert or message.sent payload. Reactions, non-group chats and
// bodiless messages are skipped without error; structurally malformed
// payloads are rejected.
func (r *Resolver) ResolveMessage(ctx context.Context, envelope *models.WebhookEnvelope) (*Resolution, error) {
	data, err := envelope.MessageData()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePayload, "undecodable message event")
	}
	payload := data.Messages
	if payload == nil {
		return nil, apperrors.New(apperrors.ErrCodePayload, "message event without messages object")
	}

	if payload.IsReaction() {
		return &Resolution{Skipped: true, SkipReason: "reaction"}, nil
	}
	if !strings.HasSuffix(payload.RemoteJID, groupJIDSuffix) {
		return &Resolution{Skipped: true, SkipReason: "not a group chat"}, nil
	}
	if payload.ID == "" {
		return nil, apperrors.New(apperrors.ErrCodePayload, "message payload without id")
	}
	if payload.Body == nil || *payload.Body == "" {
		return &Resolution{Skipped: true, SkipReason: "no text body"}, nil
	}

	group, groupCreated, err := r.store.FindOrCreateGroupByJID(ctx, payload.RemoteJID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to upsert group")
	}

	sender, senderCreated, err := r.resolveSender(ctx, payload)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		GroupID:           group.ID,
		SenderID:          sender.ID,
		ProviderMessageID: payload.ID,
		Body:              *payload.Body,
		Timestamp:         payload.Time(),
	}

	var mentionedUserIDs []string
	if info := payload.ContextInfo(); info != nil {
		msg.MentionedJIDs = info.MentionedJID
		mentionedUserIDs, err = r.resolveMentions(ctx, info.MentionedJID)
		if err != nil {
			return nil, err
		}
		if err := r.resolveQuote(ctx, group.ID, info, msg); err != nil {
			return nil, err
		}
	}

	stored, err := r.store.CreateMessage(ctx, msg, mentionedUserIDs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to store message")
	}
	if !stored {
		existing, err := r.store.GetMessageByProviderID(ctx, group.ID, payload.ID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load existing message")
		}
		if existing != nil {
			msg = existing
		}
	}

	return &Resolution{
		Group:         group,
		GroupCreated:  groupCreated,
		Sender:        sender,
		SenderCreated: senderCreated,
		Message:       msg,
		MessageStored: stored,
	}, nil
}

// resolveSender finds or creates the sending user and backfills identity
// fields observed in the payload. Messages from the bot's own account carry
// fromMe and map to the configured self LID.
func (r *Resolver) resolveSender(ctx context.Context, payload *models.MessagePayload) (*models.User, bool, error) {
	lid := payload.Key.ParticipantLID
	if payload.Key.FromMe {
		lid = r.selfLID
	}
	if lid == "" {
		return nil, false, apperrors.New(apperrors.ErrCodePayload, "message payload without participant lid")
	}

	user, created, err := r.store.FindOrCreateUserByLID(ctx, lid)
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to upsert sender")
	}

	var phoneNumber, phoneJID string
	if raw := payload.Key.CleanedParticipantPN; raw != "" {
		if normalized, err := phone.Normalize(raw); err == nil {
			phoneNumber = normalized
		} else {
			r.logger.WithField("participant_pn", raw).WithError(err).
				Warn("Skipping unparseable participant phone number")
		}
	}
	if phone.IsPhoneJID(payload.Key.ParticipantPN) {
		phoneJID = payload.Key.ParticipantPN
	}

	displayName := payload.PushName
	if payload.Key.FromMe {
		displayName = ""
	}

	if phoneNumber != "" || phoneJID != "" || displayName != "" {
		if err := r.store.UpdateUserObserved(ctx, user.ID, phoneNumber, phoneJID, displayName); err != nil {
			return nil, false, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to update sender identity")
		}
	}
	return user, created, nil
}

// resolveMentions maps mentioned JIDs to locally known users. Unknown
// mentions stay unresolved rather than creating placeholder rows.
func (r *Resolver) resolveMentions(ctx context.Context, mentionedJIDs []string) ([]string, error) {
	if len(mentionedJIDs) == 0 {
		return nil, nil
	}

	identifiers := make([]string, 0, len(mentionedJIDs)*2)
	for _, jid := range mentionedJIDs {
		identifiers = append(identifiers, jid)
		if phone.IsPhoneJID(jid) {
			if number, err := phone.FromJID(jid); err == nil {
				identifiers = append(identifiers, number)
			}
		}
	}

	ids, err := r.store.FindUserIDsByIdentifiers(ctx, identifiers)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to resolve mentions")
	}
	return ids, nil
}

// resolveQuote links the quoted message when its stanza id is known in the
// same group, and always keeps the denormalized quote fields from the
// payload so quotes of unseen messages remain renderable.
func (r *Resolver) resolveQuote(ctx context.Context, groupID string, info *models.MessageContextInfo, msg *models.Message) error {
	if info.QuotedMessage == nil && info.StanzaID == "" {
		return nil
	}

	if info.Participant != "" {
		participant := info.Participant
		msg.QuotedParticipantJID = &participant
	}
	if info.QuotedMessage != nil && info.QuotedMessage.Conversation != "" {
		body := info.QuotedMessage.Conversation
		msg.QuotedBody = &body
	}

	if info.StanzaID == "" {
		return nil
	}
	quoted, err := r.store.GetMessageByProviderID(ctx, groupID, info.StanzaID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to look up quoted message")
	}
	if quoted != nil {
		msg.QuotedMessageID = &quoted.ID
		if msg.QuotedBody == nil && quoted.Body != "" {
			body := quoted.Body
			msg.QuotedBody = &body
		}
	}
	return nil
}
