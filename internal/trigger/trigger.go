// Package trigger decides which follow-up work a stored message or entity
// requires.
package trigger

import (
	"time"

	"github.com/smaller-world/happytown.life/internal/models"
)

// Trigger evaluates reply and sync conditions against the bot's own
// identity. SelfPhoneJID may be empty when the gateway never exposed one.
type Trigger struct {
	SelfLID      string
	SelfPhoneJID string
	SyncMaxAge   time.Duration
}

// IsSelf reports whether the LID belongs to the bot's own account.
func (t *Trigger) IsSelf(lid string) bool {
	return lid != "" && lid == t.SelfLID
}

func (t *Trigger) selfJID(jid string) bool {
	if jid == "" {
		return false
	}
	return jid == t.SelfLID || (t.SelfPhoneJID != "" && jid == t.SelfPhoneJID)
}

// RequiresReply reports whether a stored message should enter the reply
// pipeline: it must come from someone else and either quote one of the
// bot's messages or mention the bot. quotedSenderLID is the LID of the
// quoted message's sender when the quote resolved locally, else empty.
func (t *Trigger) RequiresReply(senderLID string, msg *models.Message, quotedSenderLID string) bool {
	if t.IsSelf(senderLID) {
		return false
	}
	if msg.ReplySent() {
		return false
	}

	if quotedSenderLID != "" && t.IsSelf(quotedSenderLID) {
		return true
	}
	if q := msg.Quote(); q != nil && t.selfJID(q.ParticipantJID) {
		return true
	}
	for _, jid := range msg.MentionedJIDs {
		if t.selfJID(jid) {
			return true
		}
	}
	return false
}

// stale reports whether a sync timestamp is missing or older than the
// configured maximum age.
func (t *Trigger) stale(syncedAt *time.Time, now time.Time) bool {
	return syncedAt == nil || now.Sub(*syncedAt) > t.SyncMaxAge
}

// MetadataStale reports whether the group's metadata needs a gateway sync.
func (t *Trigger) MetadataStale(g *models.Group, now time.Time) bool {
	return t.stale(g.MetadataSyncedAt, now)
}

// MembershipsStale reports whether the group's membership list needs a
// gateway sync.
func (t *Trigger) MembershipsStale(g *models.Group, now time.Time) bool {
	return t.stale(g.MembershipsSyncedAt, now)
}

// UserMetadataStale reports whether the user's profile needs a gateway sync.
func (t *Trigger) UserMetadataStale(u *models.User, now time.Time) bool {
	return t.stale(u.MetadataSyncedAt, now)
}

// NeedsIntro reports whether the group is due its one-time introduction:
// metadata has synced at least once and no intro was sent yet.
func (t *Trigger) NeedsIntro(g *models.Group) bool {
	return g.MetadataSyncedAt != nil && g.IntroSentAt == nil
}
