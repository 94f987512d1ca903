package anthropic

import (
	"testing"

	"github.com/chatmesh/gateway/internal/model"
)

func TestConvertMessagesSkipsSystemIntoSeparateString(t *testing.T) {
	system, msgs, err := convertMessages([]model.Message{
		{Role: model.RoleSystem, Content: "You are helpful."},
		{Role: model.RoleUser, Content: "Hello!"},
		{Role: model.RoleAssistant, Content: "Hi there!"},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if system != "You are helpful." {
		t.Fatalf("expected system prompt carried separately, got %q", system)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 non-system messages, got %d", len(msgs))
	}
}

func TestConvertMessagesWithToolCallsAndResults(t *testing.T) {
	_, msgs, err := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "What's the weather?"},
		{
			Role:    model.RoleAssistant,
			Content: "Let me check.",
			ToolCalls: []model.ToolCall{
				{ID: "call_1", Type: "function", Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: "get_weather", Arguments: `{"city":"London"}`}},
			},
		},
		{Role: model.RoleTool, ToolCallID: "call_1", Content: "Sunny, 72F"},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
}

func TestConvertMessagesInvalidToolArguments(t *testing.T) {
	_, _, err := convertMessages([]model.Message{
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{
				{ID: "call_1", Type: "function", Function: struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				}{Name: "bad", Arguments: "not json"}},
			},
		},
	})
	if err == nil {
		t.Fatal("expected error for invalid tool call arguments")
	}
}

func TestConvertToolsBuildsSchemaAndDescription(t *testing.T) {
	tools, err := convertTools([]model.FunctionSpec{
		{
			Name:        "get_weather",
			Description: "Looks up current weather",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("expected one converted tool, got %+v", tools)
	}
	if tools[0].OfTool.Name != "get_weather" {
		t.Fatalf("unexpected tool name: %+v", tools[0].OfTool)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(Config{APIKey: "test-key"})
	if p.cfg.DefaultModel != defaultModel {
		t.Fatalf("expected default model fallback, got %q", p.cfg.DefaultModel)
	}
	if p.cfg.MaxTokens != 4096 {
		t.Fatalf("expected default max tokens fallback, got %d", p.cfg.MaxTokens)
	}
}
