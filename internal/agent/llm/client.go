// Package llm is the chat-completions client behind the reply agent.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// CompletionClient abstracts the completions API for the agent loop.
type CompletionClient interface {
	Complete(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// Config configures the completions client. Replies are generated at
// temperature 0.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client is an OpenAI SDK-compatible HTTP client.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new LLM client.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	cl := openai.NewClient(opts...)
	return &Client{client: &cl, model: cfg.Model}
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Role:    constant.System("system"),
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(msg.Content)},
				},
			})
		case RoleUser:
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Role:    constant.User("user"),
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(msg.Content)},
				},
			})
		case RoleAssistant:
			m := openai.ChatCompletionAssistantMessageParam{
				Role:    constant.Assistant("assistant"),
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)},
			}
			if len(msg.ToolCalls) > 0 {
				var calls []openai.ChatCompletionMessageToolCallParam
				for _, call := range msg.ToolCalls {
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID:   call.ID,
						Type: constant.Function("function"),
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      call.Function.Name,
							Arguments: call.Function.Arguments,
						},
					})
				}
				m.ToolCalls = calls
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &m})
		case RoleTool:
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Role:       constant.Tool("tool"),
					Content:    openai.ChatCompletionToolMessageParamContentUnion{OfString: openai.String(msg.Content)},
					ToolCallID: msg.ToolCallID,
				},
			})
		}
	}

	var tools []openai.ChatCompletionToolParam
	for _, t := range req.Tools {
		var params map[string]interface{}
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &params); err != nil {
				return nil, fmt.Errorf("unmarshal function parameters: %w", err)
			}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: constant.Function("function"),
			Function: shared.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  shared.FunctionParameters(params),
			},
		})
	}

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       shared.ChatModel(c.model),
		Temperature: openai.Float(0),
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.ToolChoice != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(req.ToolChoice),
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	choice := resp.Choices[0]
	result := &ChatCompletionResponse{
		FinishReason: string(choice.FinishReason),
		Message: ChatMessage{
			Role:    string(choice.Message.Role),
			Content: choice.Message.Content,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		result.Message.ToolCalls = append(result.Message.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return result, nil
}
