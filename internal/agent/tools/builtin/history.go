package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smaller-world/happytown.life/internal/agent/tools"
	"github.com/smaller-world/happytown.life/internal/constants"
	"github.com/smaller-world/happytown.life/internal/database"
	"github.com/smaller-world/happytown.life/internal/models"
)

// MessageStore is the read surface the history and search tools use.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessagesBefore(ctx context.Context, groupID, anchorID string, limit int) ([]*models.MessageView, error)
	ListMessagesAfter(ctx context.Context, groupID, anchorID string, limit int) ([]*models.MessageView, error)
	SearchMessages(ctx context.Context, q database.SearchQuery) (*database.SearchResult, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultToolPageSize
	}
	if limit > constants.MaxToolPageSize {
		return constants.MaxToolPageSize
	}
	return limit
}

type loadParams struct {
	AnchorMessageID string `json:"anchor_message_id"`
	Limit           int    `json:"limit"`
}

func loadSchema() json.RawMessage {
	return tools.MustMarshal(tools.ParameterSchema{
		Type: "object",
		Properties: map[string]tools.PropertySchema{
			"anchor_message_id": {Type: "string", Description: "Id of the message to load around, as shown in transcript lines."},
			"limit":             {Type: "integer", Description: fmt.Sprintf("How many messages to load, at most %d.", constants.MaxToolPageSize)},
		},
		Required: []string{"anchor_message_id"},
	})
}

// checkAnchor verifies the anchor exists and belongs to the tool's group.
func checkAnchor(ctx context.Context, store MessageStore, groupID, anchorID string) string {
	anchor, err := store.GetMessage(ctx, anchorID)
	if err != nil {
		return fmt.Sprintf("ERROR: failed to look up anchor message: %v", err)
	}
	if anchor == nil || anchor.GroupID != groupID {
		return fmt.Sprintf("ERROR: no message %q in this group", anchorID)
	}
	return ""
}

// LoadMessagesBefore loads the messages preceding an anchor message.
type LoadMessagesBefore struct {
	Store MessageStore
}

func (t *LoadMessagesBefore) Name() string { return "load_messages_before" }

func (t *LoadMessagesBefore) Description() string {
	return "Load the messages sent just before a given message, oldest first."
}

func (t *LoadMessagesBefore) Parameters() json.RawMessage { return loadSchema() }

func (t *LoadMessagesBefore) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) string {
	var params loadParams
	if err := json.Unmarshal(args, &params); err != nil || params.AnchorMessageID == "" {
		return "ERROR: load_messages_before requires an anchor_message_id argument"
	}
	if msg := checkAnchor(ctx, t.Store, execCtx.Group.ID, params.AnchorMessageID); msg != "" {
		return msg
	}

	views, err := t.Store.ListMessagesBefore(ctx, execCtx.Group.ID, params.AnchorMessageID, clampLimit(params.Limit))
	if err != nil {
		return fmt.Sprintf("ERROR: failed to load messages: %v", err)
	}
	return tools.RenderMessages(views)
}

// LoadMessagesAfter loads the messages following an anchor message.
type LoadMessagesAfter struct {
	Store MessageStore
}

func (t *LoadMessagesAfter) Name() string { return "load_messages_after" }

func (t *LoadMessagesAfter) Description() string {
	return "Load the messages sent just after a given message, oldest first."
}

func (t *LoadMessagesAfter) Parameters() json.RawMessage { return loadSchema() }

func (t *LoadMessagesAfter) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) string {
	var params loadParams
	if err := json.Unmarshal(args, &params); err != nil || params.AnchorMessageID == "" {
		return "ERROR: load_messages_after requires an anchor_message_id argument"
	}
	if msg := checkAnchor(ctx, t.Store, execCtx.Group.ID, params.AnchorMessageID); msg != "" {
		return msg
	}

	views, err := t.Store.ListMessagesAfter(ctx, execCtx.Group.ID, params.AnchorMessageID, clampLimit(params.Limit))
	if err != nil {
		return fmt.Sprintf("ERROR: failed to load messages: %v", err)
	}
	return tools.RenderMessages(views)
}
