// Package tools defines the function-calling surface exposed to the reply
// agent.
package tools

import (
	"context"
	"encoding/json"

	"github.com/smaller-world/happytown.life/internal/agent/llm"
	"github.com/smaller-world/happytown.life/internal/models"
)

// Tool is the interface all tools must implement. Execute returns the
// plain-text observation handed back to the model; failures are reported in
// the returned string with an "ERROR:" prefix rather than as Go errors, so
// the model can react to them.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage, execCtx *ExecutionContext) string
}

// ExecutionContext carries the group and trigger message a tool invocation
// acts on. Trigger is nil for introduction turns.
type ExecutionContext struct {
	Group   *models.Group
	Trigger *models.MessageView
	// Sent tracks whether any send tool delivered a message this turn.
	Sent bool
}

// Definition returns the OpenAI-compatible tool definition.
func Definition(t Tool) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ParameterSchema helps build JSON schema for parameters.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema defines a single property in the schema.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
}

// MustMarshal marshals to JSON or panics.
func MustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
