// Package builtin holds the tools the reply agent can call.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smaller-world/happytown.life/internal/agent/tools"
	"github.com/smaller-world/happytown.life/internal/phone"
	"github.com/smaller-world/happytown.life/pkg/wasender"

	"github.com/sirupsen/logrus"
)

// mentionJIDs maps the @-digit tokens in a message body to the phone-linked
// JIDs the gateway expects in the mentions array.
func mentionJIDs(text string) []string {
	numbers := phone.MentionedNumbers(text)
	jids := make([]string, 0, len(numbers))
	for _, number := range numbers {
		jids = append(jids, phone.JID(number))
	}
	return jids
}

// SendMessage posts a plain message to the group.
type SendMessage struct {
	Sender wasender.Sender
	Logger *logrus.Logger
}

func (t *SendMessage) Name() string { return "send_message" }

func (t *SendMessage) Description() string {
	return "Send a text message to the group chat. Mention members by writing @<phone digits> in the text."
}

func (t *SendMessage) Parameters() json.RawMessage {
	return tools.MustMarshal(tools.ParameterSchema{
		Type: "object",
		Properties: map[string]tools.PropertySchema{
			"text": {Type: "string", Description: "The message text to send."},
		},
		Required: []string{"text"},
	})
}

func (t *SendMessage) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) string {
	var params struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Text == "" {
		return "ERROR: send_message requires a non-empty text argument"
	}

	msgID, err := t.Sender.SendText(ctx, execCtx.Group.JID, params.Text, mentionJIDs(params.Text), "")
	if err != nil {
		t.Logger.WithError(err).WithField("group_jid", execCtx.Group.JID).
			Warn("send_message tool failed")
		return fmt.Sprintf("ERROR: failed to send message: %v", err)
	}
	execCtx.Sent = true
	return fmt.Sprintf("Message sent (id %s).", msgID)
}

// SendReply posts a reply quoting the triggering message. When the model's
// text does not already mention the original sender, their mention token is
// prepended so they get notified.
type SendReply struct {
	Sender wasender.Sender
	Logger *logrus.Logger
}

func (t *SendReply) Name() string { return "send_reply" }

func (t *SendReply) Description() string {
	return "Reply to the message that triggered this turn, quoting it. The original sender is mentioned automatically."
}

func (t *SendReply) Parameters() json.RawMessage {
	return tools.MustMarshal(tools.ParameterSchema{
		Type: "object",
		Properties: map[string]tools.PropertySchema{
			"text": {Type: "string", Description: "The reply text to send."},
		},
		Required: []string{"text"},
	})
}

func (t *SendReply) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) string {
	var params struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Text == "" {
		return "ERROR: send_reply requires a non-empty text argument"
	}
	if execCtx.Trigger == nil {
		return "ERROR: send_reply is only available when replying to a message"
	}

	text := params.Text
	if execCtx.Trigger.SenderPhoneNumber != nil {
		token := phone.MentionToken(*execCtx.Trigger.SenderPhoneNumber)
		if !strings.Contains(text, token) {
			text = token + " " + text
		}
	}

	msgID, err := t.Sender.SendText(ctx, execCtx.Group.JID, text,
		mentionJIDs(text), execCtx.Trigger.ProviderMessageID)
	if err != nil {
		t.Logger.WithError(err).WithField("group_jid", execCtx.Group.JID).
			Warn("send_reply tool failed")
		return fmt.Sprintf("ERROR: failed to send reply: %v", err)
	}
	execCtx.Sent = true
	return fmt.Sprintf("Reply sent (id %s).", msgID)
}

// SendHistoryLink posts the public transcript URL for the group with a short
// usage tip.
type SendHistoryLink struct {
	Sender  wasender.Sender
	BaseURL string
	Logger  *logrus.Logger
}

func (t *SendHistoryLink) Name() string { return "send_message_history_link" }

func (t *SendHistoryLink) Description() string {
	return "Send the group a link to its searchable message history page."
}

func (t *SendHistoryLink) Parameters() json.RawMessage {
	return tools.MustMarshal(tools.ParameterSchema{Type: "object"})
}

func (t *SendHistoryLink) Execute(ctx context.Context, _ json.RawMessage, execCtx *tools.ExecutionContext) string {
	link := strings.TrimSuffix(t.BaseURL, "/") + "/groups/" + execCtx.Group.ID + "/messages"
	text := fmt.Sprintf("You can browse and search this group's message history here: %s\nTip: use the filters at the top to narrow by person, date or keyword.", link)

	msgID, err := t.Sender.SendText(ctx, execCtx.Group.JID, text, nil, "")
	if err != nil {
		t.Logger.WithError(err).WithField("group_jid", execCtx.Group.JID).
			Warn("send_message_history_link tool failed")
		return fmt.Sprintf("ERROR: failed to send history link: %v", err)
	}
	execCtx.Sent = true
	return fmt.Sprintf("History link sent (id %s).", msgID)
}
