package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionStub serves a canned chat-completions response and captures the
// raw request body for assertions.
func completionStub(t *testing.T, response string) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	captured := &map[string]interface{}{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	return server, captured
}

func TestComplete_MapsRequestAndResponse(t *testing.T) {
	server, captured := completionStub(t, `{
		"id": "cmpl-1",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{
					"id": "call-1",
					"type": "function",
					"function": {"name": "send_reply", "arguments": "{\"text\":\"hi\"}"}
				}]
			}
		}]
	}`)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	resp, err := client.Complete(context.Background(), &ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "you are a bot"},
			{Role: RoleUser, Content: "say hi"},
		},
		Tools: []Tool{
			{Type: "function", Function: FunctionDefinition{
				Name:        "send_reply",
				Description: "Reply to a message.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
			}},
		},
		ToolChoice: ToolChoiceRequired,
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "send_reply", resp.Message.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"text":"hi"}`, resp.Message.ToolCalls[0].Function.Arguments)

	body := *captured
	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, "required", body["tool_choice"])

	msgs, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])

	tools, ok := body["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]interface{})
	fn := tool["function"].(map[string]interface{})
	assert.Equal(t, "send_reply", fn["name"])
}

func TestComplete_AssistantAndToolHistory(t *testing.T) {
	server, captured := completionStub(t, `{
		"id": "cmpl-2",
		"choices": [{
			"index": 0,
			"finish_reason": "stop",
			"message": {"role": "assistant", "content": "all done"}
		}]
	}`)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	resp, err := client.Complete(context.Background(), &ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "do a thing"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call-1", Type: "function", Function: FunctionCall{Name: "send_reply", Arguments: "{}"}},
			}},
			{Role: RoleTool, Content: "Reply sent (id X).", ToolCallID: "call-1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "all done", resp.Message.Content)
	assert.Empty(t, resp.Message.ToolCalls)

	msgs := (*captured)["messages"].([]interface{})
	require.Len(t, msgs, 3)
	toolMsg := msgs[2].(map[string]interface{})
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call-1", toolMsg["tool_call_id"])
}

func TestComplete_NoChoices(t *testing.T) {
	server, _ := completionStub(t, `{"id": "cmpl-3", "choices": []}`)
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	_, err := client.Complete(context.Background(), &ChatCompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
