package model

import "testing"

func TestWellFormedHistoryAcceptsUserAssistantTurns(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "weather?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1"}}},
		{Role: RoleTool, ToolCallID: "c1", Content: "sunny"},
		{Role: RoleAssistant, Content: "it is sunny"},
	}
	if !WellFormedHistory(history) {
		t.Fatalf("expected a user/assistant/tool sequence to validate")
	}
}

func TestWellFormedHistoryRejectsOrphanToolResult(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleTool, ToolCallID: "dangling"},
	}
	if WellFormedHistory(history) {
		t.Fatalf("expected an orphan tool result to fail validation")
	}
}

func TestWellFormedHistoryRejectsInterleavedSystem(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "injected"},
	}
	if WellFormedHistory(history) {
		t.Fatalf("expected an interleaved system message to fail validation")
	}
}

func TestWellFormedHistoryRejectsToolAfterPlainAssistant(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleTool, ToolCallID: "c1"},
	}
	if WellFormedHistory(history) {
		t.Fatalf("expected a tool result after a call-free assistant turn to fail validation")
	}
}

func TestChainStringRendersTextAndMentions(t *testing.T) {
	chain := MessageChain{
		{Kind: ElementAt, TargetID: "2002"},
		{Kind: ElementText, Text: " hello"},
	}
	if got := chain.String(); got != "@2002 hello" {
		t.Fatalf("unexpected chain rendering: %q", got)
	}
}
