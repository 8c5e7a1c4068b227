package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/smaller-world/happytown.life/internal/agent/llm"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools map[string]Tool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns OpenAI-compatible tool definitions in registration
// order.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, Definition(r.tools[name]))
	}
	return defs
}

// Execute runs a tool by name. Unknown tool names produce an error
// observation for the model instead of failing the turn.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string, execCtx *ExecutionContext) string {
	tool, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("ERROR: unknown tool %q", name)
	}
	return tool.Execute(ctx, json.RawMessage(argsJSON), execCtx)
}

// ExecuteToolCalls runs each call from an assistant turn and renders the
// tool observations as chat messages.
func (r *Registry) ExecuteToolCalls(ctx context.Context, calls []llm.ToolCall, execCtx *ExecutionContext) []llm.ChatMessage {
	results := make([]llm.ChatMessage, 0, len(calls))
	for _, call := range calls {
		content := r.Execute(ctx, call.Function.Name, call.Function.Arguments, execCtx)
		results = append(results, llm.ChatMessage{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return results
}
