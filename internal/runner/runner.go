// Package runner drives the chat handler's tool-calling loop: the
// local-agent runner that talks directly to an LLMRequester, and the
// external-bridge runners that proxy to upstream agent/workflow services.
package runner

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
)

// Runner drives one conversation turn and yields assistant messages, the
// last of which carries the final reply; earlier ones (if any) are
// streaming deltas. Both the local-agent runner and external-bridge runners
// implement this, so the Chat Handler stage can select one per
// conversation's pipeline config without caring which kind it got.
type Runner interface {
	Run(ctx context.Context, conv *model.Conversation, userMsg model.Message) (<-chan model.Message, error)
}

// Tool is one callable the local-agent loop may invoke. Arguments arrive as
// the raw JSON string the model produced; Execute is responsible for
// parsing them.
type Tool interface {
	Name() string
	Description() string
	Parameters() any // JSON-schema-shaped parameter spec, passed to the LLM
	Execute(ctx context.Context, argumentsJSON string) (result string, isError bool, err error)
}

// ToolRegistry looks up tools by name for the local-agent loop's tool-call
// step.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the registered tools' function specs, for building a
// CompletionRequest.
func (r *ToolRegistry) Specs() []model.FunctionSpec {
	out := make([]model.FunctionSpec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, model.FunctionSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}
