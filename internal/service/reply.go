package service

import (
	"context"
	"time"

	"github.com/smaller-world/happytown.life/internal/dispatcher"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/models"
	"github.com/smaller-world/happytown.life/internal/phone"

	"github.com/sirupsen/logrus"
)

// EnqueueReply schedules one reply attempt for a stored message.
func (s *Service) EnqueueReply(messageID string) bool {
	return s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobSendReply,
		ResourceKey: messageID,
		Run: func(ctx context.Context) error {
			return s.SendReply(ctx, messageID)
		},
	})
}

// SendReply runs a single agent reply attempt for the message. On failure
// the sender gets a best-effort notice and the message stays unreplied;
// errors are swallowed so the dispatcher never retries a generation and
// completions cannot run away.
func (s *Service) SendReply(ctx context.Context, messageID string) error {
	view, err := s.db.GetMessageView(ctx, messageID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load message")
	}
	if view == nil || view.ReplySent() {
		return nil
	}

	group, err := s.db.GetGroup(ctx, view.GroupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load group")
	}
	if group == nil {
		return nil
	}

	fields := logrus.Fields{
		"group_jid":  group.JID,
		"message_id": view.ID,
	}

	if err := s.agent.Reply(ctx, group, view); err != nil {
		s.logger.WithFields(fields).WithError(err).
			WithField("error_code", apperrors.GetCode(err)).
			Error("Reply generation failed")
		s.sendFailureNotice(ctx, group, view, err)
		return nil
	}

	claimed, err := s.db.MarkReplySent(ctx, view.ID, time.Now())
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Failed to stamp reply")
		return nil
	}
	if claimed {
		s.logger.WithFields(fields).Info("Reply sent")
	}
	return nil
}

// sendFailureNotice tells the original sender, mentioning them, that the
// reply could not be generated. Best effort only.
func (s *Service) sendFailureNotice(ctx context.Context, group *models.Group, view *models.MessageView, cause error) {
	text := "sorry, I couldn't answer that: " + apperrors.GetUserMessage(cause)

	var mentions []string
	if view.SenderPhoneNumber != nil {
		text = phone.MentionToken(*view.SenderPhoneNumber) + " " + text
		mentions = []string{phone.JID(*view.SenderPhoneNumber)}
	}

	if _, err := s.gateway.SendText(ctx, group.JID, text, mentions, view.ProviderMessageID); err != nil {
		s.logger.WithFields(logrus.Fields{
			"group_jid":  group.JID,
			"message_id": view.ID,
		}).WithError(err).Warn("Failed to send failure notice")
	}
}
