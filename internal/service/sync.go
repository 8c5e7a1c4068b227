package service

import (
	"context"
	"strings"
	"time"

	"github.com/smaller-world/happytown.life/internal/database"
	"github.com/smaller-world/happytown.life/internal/dispatcher"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/phone"

	"github.com/sirupsen/logrus"
)

func (s *Service) enqueueGroupSync(kind dispatcher.JobKind, groupID string) {
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        kind,
		ResourceKey: groupID,
		Run: func(ctx context.Context) error {
			switch kind {
			case dispatcher.JobSyncGroupMetadata:
				return s.SyncGroupMetadata(ctx, groupID)
			case dispatcher.JobSyncGroupMemberships:
				return s.SyncGroupMemberships(ctx, groupID)
			}
			return nil
		},
	})
}

func (s *Service) enqueueUserSync(userID string) {
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobSyncUserMetadata,
		ResourceKey: userID,
		Run: func(ctx context.Context) error {
			return s.SyncUserMetadata(ctx, userID)
		},
	})
}

func (s *Service) enqueueIntro(groupID string) {
	s.dispatcher.Enqueue(dispatcher.Job{
		Kind:        dispatcher.JobSendIntro,
		ResourceKey: groupID,
		Run: func(ctx context.Context) error {
			return s.SendIntro(ctx, groupID)
		},
	})
}

// SyncGroupMetadata pulls the group's subject, description and picture from
// the gateway. The first completed sync for a group queues its one-time
// introduction.
func (s *Service) SyncGroupMetadata(ctx context.Context, groupID string) error {
	group, err := s.db.GetGroup(ctx, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load group")
	}
	if group == nil {
		return nil
	}

	meta, err := s.gateway.GetGroupMetadata(ctx, group.JID)
	if err != nil {
		return err
	}

	var pictureURL *string
	picture, err := s.gateway.GetGroupProfilePicture(ctx, group.JID)
	switch {
	case err == nil && picture != "":
		pictureURL = &picture
	case apperrors.IsNotFoundUpstream(err):
		// group has no picture
	case err != nil:
		s.logger.WithField("group_jid", group.JID).WithError(err).
			Warn("Failed to fetch group picture")
	}

	var subject, description *string
	if meta.Subject != "" {
		subject = &meta.Subject
	}
	if meta.Description != "" {
		description = &meta.Description
	}

	if err := s.db.UpdateGroupMetadata(ctx, group.ID, subject, description, pictureURL, time.Now()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to store group metadata")
	}
	s.logger.WithFields(logrus.Fields{
		"group_jid": group.JID,
		"subject":   meta.Subject,
	}).Info("Synced group metadata")

	if group.IntroSentAt == nil {
		s.enqueueIntro(group.ID)
	}
	return nil
}

// SyncGroupMemberships replaces the group's stored member list with the
// gateway's current participants, creating users for unseen members.
func (s *Service) SyncGroupMemberships(ctx context.Context, groupID string) error {
	group, err := s.db.GetGroup(ctx, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load group")
	}
	if group == nil {
		return nil
	}

	participants, err := s.gateway.GetGroupParticipants(ctx, group.JID)
	if err != nil {
		return err
	}

	members := make([]database.MembershipInput, 0, len(participants))
	for _, p := range participants {
		lid := p.LID
		if lid == "" {
			lid = p.JID
		}
		if lid == "" {
			continue
		}

		user, created, err := s.db.FindOrCreateUserByLID(ctx, lid)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to upsert member")
		}

		var phoneNumber string
		if phone.IsPhoneJID(p.PhoneJID) {
			if number, err := phone.FromJID(p.PhoneJID); err == nil {
				phoneNumber = number
			}
		}
		if phoneNumber != "" || p.PhoneJID != "" {
			if err := s.db.UpdateUserObserved(ctx, user.ID, phoneNumber, p.PhoneJID, ""); err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to update member identity")
			}
		}
		if created {
			s.enqueueUserSync(user.ID)
		}

		var admin *string
		if p.Admin != "" {
			role := p.Admin
			admin = &role
		}
		members = append(members, database.MembershipInput{UserID: user.ID, Admin: admin})
	}

	if err := s.db.ReplaceGroupMemberships(ctx, group.ID, members); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to replace memberships")
	}
	if err := s.db.MarkGroupMembershipsSynced(ctx, group.ID, time.Now()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to stamp membership sync")
	}

	s.logger.WithFields(logrus.Fields{
		"group_jid": group.JID,
		"members":   len(members),
	}).Info("Synced group memberships")
	return nil
}

// SyncUserMetadata resolves the user's phone-linked account and picture via
// the gateway. Users without a known phone number are stamped as synced so
// reconciliation does not re-enqueue them every sweep.
func (s *Service) SyncUserMetadata(ctx context.Context, userID string) error {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load user")
	}
	if user == nil {
		return nil
	}

	number := ""
	if user.PhoneNumber != nil {
		number = *user.PhoneNumber
	} else if user.PhoneNumberJID != nil {
		if derived, err := phone.FromJID(*user.PhoneNumberJID); err == nil {
			number = derived
		}
	}
	if number == "" {
		return s.stampUserSynced(ctx, user.ID, nil, nil, nil)
	}

	var phoneJID *string
	info, err := s.gateway.GetContactInfo(ctx, strings.TrimPrefix(number, "+"))
	switch {
	case err == nil && info.Exists && info.JID != "":
		phoneJID = &info.JID
	case apperrors.IsNotFoundUpstream(err):
		// number not on WhatsApp
	case err != nil:
		return err
	}

	var pictureURL *string
	picture, err := s.gateway.GetContactProfilePicture(ctx, strings.TrimPrefix(number, "+"))
	switch {
	case err == nil && picture != "":
		pictureURL = &picture
	case apperrors.IsNotFoundUpstream(err):
		// no picture set
	case err != nil:
		s.logger.WithField("user_lid", user.LID).WithError(err).
			Warn("Failed to fetch contact picture")
	}

	return s.stampUserSynced(ctx, user.ID, &number, phoneJID, pictureURL)
}

func (s *Service) stampUserSynced(ctx context.Context, userID string, number, phoneJID, pictureURL *string) error {
	if err := s.db.UpdateUserMetadata(ctx, userID, number, phoneJID, pictureURL, time.Now()); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to store user metadata")
	}
	return nil
}

// SendIntro runs the agent's one-time introduction turn for a group.
func (s *Service) SendIntro(ctx context.Context, groupID string) error {
	group, err := s.db.GetGroup(ctx, groupID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to load group")
	}
	if group == nil || group.IntroSentAt != nil {
		return nil
	}

	if err := s.agent.Introduce(ctx, group); err != nil {
		return err
	}

	claimed, err := s.db.MarkGroupIntroSent(ctx, group.ID, time.Now())
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabase, "failed to stamp intro")
	}
	if claimed {
		s.logger.WithField("group_jid", group.JID).Info("Sent group introduction")
	}
	return nil
}
