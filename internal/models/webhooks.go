package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Gateway webhook event types
const (
	EventMessagesUpsert     = "messages.upsert"
	EventMessageSent        = "message.sent"
	EventGroupsUpsert       = "groups.upsert"
	EventParticipantsUpdate = "group-participants.update"
)

// WebhookEnvelope is the outer JSON body of every gateway webhook delivery.
type WebhookEnvelope struct {
	ID        string          `json:"id,omitempty"`
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Data      json.RawMessage `json:"data"`
}

// Time converts the envelope's epoch-millisecond timestamp.
func (e *WebhookEnvelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// ProviderEventID derives the gateway-assigned identifier that keys the
// idempotent event log: the envelope id when present, else the natural id
// of the payload, else an event+timestamp composite. Never fails; an event
// with an undecodable payload still lands in the log, so a redelivering
// gateway sees the duplicate instead of looping on a rejection.
func (e *WebhookEnvelope) ProviderEventID() string {
	if e.ID != "" {
		return e.ID
	}

	switch e.Event {
	case EventMessagesUpsert, EventMessageSent:
		if data, err := e.MessageData(); err == nil && data.Messages != nil && data.Messages.ID != "" {
			return data.Messages.ID
		}
	case EventGroupsUpsert, EventParticipantsUpdate:
		if data, err := e.GroupData(); err == nil && data.JID != "" {
			return fmt.Sprintf("%s:%d", data.JID, e.Timestamp)
		}
	}
	return fmt.Sprintf("%s:%d", e.Event, e.Timestamp)
}

// MessageData decodes the payload of a messages.upsert / message.sent event.
func (e *WebhookEnvelope) MessageData() (*MessageEventData, error) {
	var data MessageEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode message event data: %w", err)
	}
	return &data, nil
}

// GroupData decodes the payload of a groups.upsert /
// group-participants.update event.
func (e *WebhookEnvelope) GroupData() (*GroupEventData, error) {
	var data GroupEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode group event data: %w", err)
	}
	return &data, nil
}

// MessageEventData is the data object of a message event.
type MessageEventData struct {
	Messages *MessagePayload `json:"messages"`
}

// MessagePayload mirrors the gateway's message representation.
type MessagePayload struct {
	ID        string          `json:"id"`
	RemoteJID string          `json:"remoteJid"`
	Body      *string         `json:"messageBody"`
	Timestamp int64           `json:"messageTimestamp"` // epoch milliseconds
	PushName  string          `json:"pushName"`
	Key       MessageKey      `json:"key"`
	Message   *MessageContent `json:"message,omitempty"`
}

// Time converts the message's epoch-millisecond timestamp.
func (p *MessagePayload) Time() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// IsReaction reports whether the payload is a reaction rather than a
// regular message; reactions are not persisted.
func (p *MessagePayload) IsReaction() bool {
	return p.Message != nil && len(p.Message.ReactionMessage) > 0 &&
		string(p.Message.ReactionMessage) != "null"
}

// ContextInfo returns the extended-text context (mentions, quote) when the
// gateway included one.
func (p *MessagePayload) ContextInfo() *MessageContextInfo {
	if p.Message == nil || p.Message.ExtendedTextMessage == nil {
		return nil
	}
	return p.Message.ExtendedTextMessage.ContextInfo
}

// MessageKey identifies the author of a gateway message.
type MessageKey struct {
	FromMe               bool   `json:"fromMe"`
	ParticipantLID       string `json:"participantLid"`
	ParticipantPN        string `json:"participantPn"`
	CleanedParticipantPN string `json:"cleanedParticipantPn"`
}

// MessageContent carries the subset of message content the pipeline reads.
type MessageContent struct {
	ReactionMessage     json.RawMessage      `json:"reactionMessage,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
}

// ExtendedTextMessage wraps the context info of a rich text message.
type ExtendedTextMessage struct {
	ContextInfo *MessageContextInfo `json:"contextInfo,omitempty"`
}

// MessageContextInfo carries mention and quoted-message references.
type MessageContextInfo struct {
	MentionedJID  []string       `json:"mentionedJid,omitempty"`
	Participant   string         `json:"participant,omitempty"`
	StanzaID      string         `json:"stanzaId,omitempty"`
	QuotedMessage *QuotedPayload `json:"quotedMessage,omitempty"`
}

// QuotedPayload is the denormalized quoted-message body from the gateway.
type QuotedPayload struct {
	Conversation string `json:"conversation"`
}

// GroupEventData is the data object of a group event.
type GroupEventData struct {
	JID     string `json:"jid"`
	Subject string `json:"subject,omitempty"`
}
