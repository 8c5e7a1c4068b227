package service

import (
	"context"
	"time"

	"github.com/smaller-world/happytown.life/internal/dispatcher"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/sirupsen/logrus"
)

// EnqueueProcessEvent schedules background processing for a recorded
// webhook event, keyed by its provider event id so redeliveries collapse.
func (s *Service) EnqueueProcessEvent(envelope *models.WebhookEnvelope, providerEventID string) bool {
	return s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobProcessEvent,
		ResourceKey: envelope.Event + "/" + providerEventID,
		Run: func(ctx context.Context) error {
			return s.ProcessEvent(ctx, envelope)
		},
	})
}

// ProcessEvent resolves one webhook event into entity mutations and
// follow-up jobs. Malformed payloads are logged and dropped; the event
// stays in the log so the gateway is never asked to redeliver.
func (s *Service) ProcessEvent(ctx context.Context, envelope *models.WebhookEnvelope) error {
	fields := logrus.Fields{"event": envelope.Event}

	var err error
	switch envelope.Event {
	case models.EventMessagesUpsert, models.EventMessageSent:
		err = s.processMessageEvent(ctx, envelope)
	case models.EventGroupsUpsert:
		err = s.processGroupEvent(ctx, envelope, dispatcher.JobSyncGroupMetadata)
	case models.EventParticipantsUpdate:
		err = s.processGroupEvent(ctx, envelope, dispatcher.JobSyncGroupMemberships)
	default:
		s.logger.WithFields(fields).Debug("Ignoring unhandled event type")
		return nil
	}

	if apperrors.IsPayload(err) {
		s.logger.WithFields(fields).WithError(err).Warn("Dropping malformed webhook payload")
		return nil
	}
	return err
}

func (s *Service) processMessageEvent(ctx context.Context, envelope *models.WebhookEnvelope) error {
	res, err := s.resolver.ResolveMessage(ctx, envelope)
	if err != nil {
		return err
	}
	if res.Skipped {
		s.logger.WithFields(logrus.Fields{
			"event":  envelope.Event,
			"reason": res.SkipReason,
		}).Debug("Skipping message event")
		return nil
	}

	now := time.Now().UTC()
	fields := logrus.Fields{
		"group_jid":  res.Group.JID,
		"message_id": res.Message.ID,
	}

	if res.GroupCreated || s.trigger.MetadataStale(res.Group, now) {
		s.enqueueGroupSync(dispatcher.JobSyncGroupMetadata, res.Group.ID)
	}
	if res.GroupCreated || s.trigger.MembershipsStale(res.Group, now) {
		s.enqueueGroupSync(dispatcher.JobSyncGroupMemberships, res.Group.ID)
	}
	if res.SenderCreated || s.trigger.UserMetadataStale(res.Sender, now) {
		s.enqueueUserSync(res.Sender.ID)
	}

	if !res.MessageStored {
		s.logger.WithFields(fields).Debug("Message already known, no reply evaluation")
		return nil
	}

	quotedSenderLID, err := s.quotedSenderLID(ctx, res.Message)
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("Failed to resolve quoted sender")
	}

	if s.trigger.RequiresReply(res.Sender.LID, res.Message, quotedSenderLID) {
		s.EnqueueReply(res.Message.ID)
		s.logger.WithFields(fields).Info("Message requires a reply")
	}
	return nil
}

// quotedSenderLID loads the LID of the quoted message's sender, when the
// quote resolved to a locally known message.
func (s *Service) quotedSenderLID(ctx context.Context, msg *models.Message) (string, error) {
	if msg.QuotedMessageID == nil {
		return "", nil
	}
	quoted, err := s.db.GetMessage(ctx, *msg.QuotedMessageID)
	if err != nil || quoted == nil {
		return "", err
	}
	sender, err := s.db.GetUser(ctx, quoted.SenderID)
	if err != nil || sender == nil {
		return "", err
	}
	return sender.LID, nil
}

func (s *Service) processGroupEvent(ctx context.Context, envelope *models.WebhookEnvelope, kind dispatcher.JobKind) error {
	data, err := envelope.GroupData()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePayload, "undecodable group event")
	}
	if data.JID == "" {
		return apperrors.New(apperrors.ErrCodePayload, "group event without jid")
	}

	group, created, err := s.db.FindOrCreateGroupByJID(ctx, data.JID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to upsert group")
	}
	if created {
		s.logger.WithField("group_jid", group.JID).Info("Discovered new group")
	}

	s.enqueueGroupSync(kind, group.ID)
	return nil
}
