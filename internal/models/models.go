package models

import (
	"encoding/json"
	"time"
)

// RecordOutcome reports whether a webhook event was newly stored or had
// already been recorded by a previous delivery of the same event.
type RecordOutcome int

const (
	OutcomeStored RecordOutcome = iota
	OutcomeAlreadyRecorded
)

// WebhookEvent is an immutable log entry for one inbound gateway delivery.
// The (Event, ProviderEventID) pair is unique; redeliveries are no-ops.
type WebhookEvent struct {
	ID              string          `json:"id"`
	Event           string          `json:"event"`
	ProviderEventID string          `json:"provider_event_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Group is a WhatsApp group known to the system. The nullable sync
// timestamps drive the reconciliation sweeps.
type Group struct {
	ID                  string     `json:"id"`
	JID                 string     `json:"jid"`
	Subject             *string    `json:"subject,omitempty"`
	Description         *string    `json:"description,omitempty"`
	ProfilePictureURL   *string    `json:"profile_picture_url,omitempty"`
	MetadataSyncedAt    *time.Time `json:"metadata_synced_at,omitempty"`
	MembershipsSyncedAt *time.Time `json:"memberships_synced_at,omitempty"`
	IntroSentAt         *time.Time `json:"intro_sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DisplayName returns the best available human-readable name for the group.
func (g *Group) DisplayName() string {
	if g.Subject != nil && *g.Subject != "" {
		return *g.Subject
	}
	return g.JID
}

// User is a WhatsApp account observed through webhooks or membership
// imports. LID is the gateway's stable per-user identifier; the phone
// number is backfilled by the user metadata sync when the gateway can
// resolve it.
type User struct {
	ID                string     `json:"id"`
	LID               string     `json:"lid"`
	PhoneNumber       *string    `json:"phone_number,omitempty"`
	PhoneNumberJID    *string    `json:"phone_number_jid,omitempty"`
	DisplayName       *string    `json:"display_name,omitempty"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	MetadataSyncedAt  *time.Time `json:"metadata_synced_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Name returns the best available display name for the user.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	if u.PhoneNumber != nil && *u.PhoneNumber != "" {
		return *u.PhoneNumber
	}
	return u.LID
}

// Membership joins a User to a Group; Admin carries the gateway's role
// string ("admin", "superadmin") when the participant is an admin.
type Membership struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Admin     *string   `json:"admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one group chat message. ReplySentAt is nil until the reply
// pipeline completes a generation for it; it is set exactly once.
type Message struct {
	ID                   string     `json:"id"`
	GroupID              string     `json:"group_id"`
	SenderID             string     `json:"sender_id"`
	ProviderMessageID    string     `json:"provider_message_id"`
	Body                 string     `json:"body"`
	Timestamp            time.Time  `json:"timestamp"`
	MentionedJIDs        []string   `json:"mentioned_jids"`
	QuotedMessageID      *string    `json:"quoted_message_id,omitempty"`
	QuotedParticipantJID *string    `json:"quoted_participant_jid,omitempty"`
	QuotedBody           *string    `json:"quoted_body,omitempty"`
	ReplySentAt          *time.Time `json:"reply_sent_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// QuoteKind distinguishes a quote that resolved to a locally known message
// from one that only carries the denormalized payload fields.
type QuoteKind int

const (
	QuoteResolved QuoteKind = iota
	QuoteUnresolved
)

// Quote is the explicit two-variant view of a message's quoted reference.
type Quote struct {
	Kind           QuoteKind
	MessageID      string // set when Kind == QuoteResolved
	Body           string
	ParticipantJID string
}

// Quote returns the quoted reference of the message, or nil when the
// message quotes nothing.
func (m *Message) Quote() *Quote {
	switch {
	case m.QuotedMessageID != nil && *m.QuotedMessageID != "":
		q := &Quote{Kind: QuoteResolved, MessageID: *m.QuotedMessageID}
		if m.QuotedBody != nil {
			q.Body = *m.QuotedBody
		}
		if m.QuotedParticipantJID != nil {
			q.ParticipantJID = *m.QuotedParticipantJID
		}
		return q
	case m.QuotedBody != nil && *m.QuotedBody != "":
		q := &Quote{Kind: QuoteUnresolved, Body: *m.QuotedBody}
		if m.QuotedParticipantJID != nil {
			q.ParticipantJID = *m.QuotedParticipantJID
		}
		return q
	default:
		return nil
	}
}

// ReplySent reports whether the reply pipeline already handled the message.
func (m *Message) ReplySent() bool {
	return m.ReplySentAt != nil
}

// Mentions reports whether the message's mention list contains the given JID.
func (m *Message) Mentions(jid string) bool {
	for _, mentioned := range m.MentionedJIDs {
		if mentioned == jid {
			return true
		}
	}
	return false
}

// MessageView is a message joined with its sender's identity, as needed by
// transcript rendering and the agent's message-loading tools.
type MessageView struct {
	Message
	SenderLID         string  `json:"sender_lid"`
	SenderDisplayName *string `json:"sender_display_name,omitempty"`
	SenderPhoneNumber *string `json:"sender_phone_number,omitempty"`
	QuotedSenderName  *string `json:"quoted_sender_name,omitempty"`
}

// SenderName returns the best available name for the message's sender.
func (v *MessageView) SenderName() string {
	if v.SenderDisplayName != nil && *v.SenderDisplayName != "" {
		return *v.SenderDisplayName
	}
	if v.SenderPhoneNumber != nil && *v.SenderPhoneNumber != "" {
		return *v.SenderPhoneNumber
	}
	return v.SenderLID
}
