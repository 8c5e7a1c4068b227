// Package agent runs the tool-calling loop that generates group
// introductions and replies.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smaller-world/happytown.life/internal/agent/llm"
	"github.com/smaller-world/happytown.life/internal/agent/tools"
	"github.com/smaller-world/happytown.life/internal/agent/tools/builtin"
	"github.com/smaller-world/happytown.life/internal/constants"
	apperrors "github.com/smaller-world/happytown.life/internal/errors"
	"github.com/smaller-world/happytown.life/internal/models"
	"github.com/smaller-world/happytown.life/pkg/wasender"

	"github.com/sirupsen/logrus"
)

// Store is the message read surface the agent and its tools use.
type Store interface {
	builtin.MessageStore
	ListRecentMessages(ctx context.Context, groupID string, limit int) ([]*models.MessageView, error)
}

// Config holds the agent's identity and limits.
type Config struct {
	// AgentName is how the bot refers to itself in prompts.
	AgentName string
	// PublicBaseURL roots the transcript links the history tool sends.
	PublicBaseURL string
	MaxToolRounds int
	// ContextMessages is how many recent messages to include in the prompt.
	ContextMessages int
}

// Agent orchestrates completion turns. Each turn requires at least one tool
// call and keeps the typing indicator alive until it finishes.
type Agent struct {
	llm    llm.CompletionClient
	store  Store
	sender wasender.Sender
	cfg    Config
	logger *logrus.Logger

	introTools *tools.Registry
	replyTools *tools.Registry
	typist     *typist
}

func New(client llm.CompletionClient, store Store, sender wasender.Sender, cfg Config, logger *logrus.Logger) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = constants.DefaultMaxToolRounds
	}
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = 20
	}

	intro := tools.NewRegistry()
	intro.Register(&builtin.SendMessage{Sender: sender, Logger: logger})
	intro.Register(&builtin.SendHistoryLink{Sender: sender, BaseURL: cfg.PublicBaseURL, Logger: logger})

	reply := tools.NewRegistry()
	reply.Register(&builtin.SendReply{Sender: sender, Logger: logger})
	reply.Register(&builtin.SendHistoryLink{Sender: sender, BaseURL: cfg.PublicBaseURL, Logger: logger})
	reply.Register(&builtin.LoadMessagesBefore{Store: store})
	reply.Register(&builtin.LoadMessagesAfter{Store: store})
	reply.Register(&builtin.SearchMessages{Store: store})

	return &Agent{
		llm:        client,
		store:      store,
		sender:     sender,
		cfg:        cfg,
		logger:     logger,
		introTools: intro,
		replyTools: reply,
		typist:     &typist{sender: sender, logger: logger},
	}
}

// Introduce runs the one-time introduction turn for a freshly synced group.
func (a *Agent) Introduce(ctx context.Context, group *models.Group) error {
	execCtx := &tools.ExecutionContext{Group: group}
	prompt := fmt.Sprintf(
		"You just joined the group %q. Introduce yourself briefly: say who you are, that members can mention you with @ to ask questions about the group's history, and share the history link.",
		group.DisplayName())
	return a.runTurn(ctx, group, a.introTools, execCtx, prompt, "introduction")
}

// Reply runs one reply turn for the message that mentioned or quoted the
// bot. It fails when the turn ends without a successful send.
func (a *Agent) Reply(ctx context.Context, group *models.Group, trigger *models.MessageView) error {
	execCtx := &tools.ExecutionContext{Group: group, Trigger: trigger}
	prompt := fmt.Sprintf(
		"%s sent the following message addressed to you:\n%s\n\nAnswer it with the send_reply tool. Use the search and load tools first if the question is about earlier conversation.",
		trigger.SenderName(), tools.RenderMessage(trigger))
	return a.runTurn(ctx, group, a.replyTools, execCtx, prompt, "reply")
}

func (a *Agent) systemPrompt(group *models.Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful assistant living in the WhatsApp group %q.",
		a.cfg.AgentName, group.DisplayName())
	if group.Description != nil && *group.Description != "" {
		fmt.Fprintf(&b, "\nGroup description: %s", *group.Description)
	}
	b.WriteString("\nYou act only through your tools; plain text you write is never shown to the group.")
	b.WriteString("\nKeep messages short and conversational. Mention people as @<phone digits>.")
	return b.String()
}

// runTurn drives the completion loop. The first round requires a tool call;
// later rounds let the model decide when it is done.
func (a *Agent) runTurn(ctx context.Context, group *models.Group, registry *tools.Registry, execCtx *tools.ExecutionContext, prompt, action string) error {
	stopTyping := a.typist.start(ctx, group.JID)
	defer stopTyping()

	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: a.systemPrompt(group)},
	}

	recent, err := a.store.ListRecentMessages(ctx, group.ID, a.cfg.ContextMessages)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load recent messages for context")
	} else if len(recent) > 0 {
		messages = append(messages, llm.ChatMessage{
			Role:    llm.RoleUser,
			Content: "Recent conversation:\n" + tools.RenderMessages(recent),
		})
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: prompt})

	fields := logrus.Fields{"action": action, "group_jid": group.JID}
	var finalContent string

	for round := 0; round < a.cfg.MaxToolRounds; round++ {
		toolChoice := llm.ToolChoiceAuto
		if round == 0 {
			toolChoice = llm.ToolChoiceRequired
		}

		resp, err := a.llm.Complete(ctx, &llm.ChatCompletionRequest{
			Messages:   messages,
			Tools:      registry.Definitions(),
			ToolChoice: toolChoice,
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeReplyGeneration, "completion request failed")
		}

		finalContent = resp.Message.Content
		if len(resp.Message.ToolCalls) == 0 {
			break
		}

		messages = append(messages, resp.Message)
		messages = append(messages, registry.ExecuteToolCalls(ctx, resp.Message.ToolCalls, execCtx)...)
	}

	a.logger.WithFields(fields).WithField("content", finalContent).Info("Agent turn finished")
	a.checkToolsUsed(finalContent, fields)

	if !execCtx.Sent {
		return apperrors.New(apperrors.ErrCodeReplyGeneration, "agent turn ended without a successful send")
	}
	return nil
}

// checkToolsUsed validates the optional {"tools_used": [...]} report some
// models emit as their final content. It only ever warns.
func (a *Agent) checkToolsUsed(content string, fields logrus.Fields) {
	var report struct {
		ToolsUsed []string `json:"tools_used"`
	}
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return
	}
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		return
	}
	if len(report.ToolsUsed) == 0 {
		a.logger.WithFields(fields).Warn("Model reported no tools used")
	}
}
