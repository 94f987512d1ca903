package runner

import (
	"testing"

	"github.com/chatmesh/gateway/internal/model"
)

func msg(role model.Role, tokens int) model.Message {
	return model.Message{Role: role, Content: "x", TokenCount: tokens}
}

func TestTruncateNoLimitReturnsFullHistory(t *testing.T) {
	history := []model.Message{msg(model.RoleUser, 10), msg(model.RoleAssistant, 10)}
	got := Truncate(history, 0)
	if len(got) != len(history) {
		t.Fatalf("expected full history with maxTokens<=0, got %d messages", len(got))
	}
}

func TestTruncateKeepsNewestWithinBudget(t *testing.T) {
	history := []model.Message{
		msg(model.RoleUser, 50),
		msg(model.RoleAssistant, 50),
		msg(model.RoleUser, 10),
		msg(model.RoleAssistant, 10),
	}
	got := Truncate(history, 25)

	if len(got) != 2 {
		t.Fatalf("expected the newest 2 messages to fit the budget, got %d", len(got))
	}
	if got[0].TokenCount != 10 || got[1].TokenCount != 10 {
		t.Fatalf("expected the two newest messages kept, got %+v", got)
	}
}

func TestTruncateAlwaysKeepsAtLeastOneMessage(t *testing.T) {
	history := []model.Message{msg(model.RoleUser, 500)}
	got := Truncate(history, 5)
	if len(got) != 1 {
		t.Fatalf("expected the single oversized message kept anyway, got %d", len(got))
	}
}

func TestTruncateNeverSplitsToolResultBlock(t *testing.T) {
	assistantWithCalls := model.Message{
		Role:       model.RoleAssistant,
		TokenCount: 5,
		ToolCalls:  []model.ToolCall{{ID: "call-1"}},
	}
	toolResult := model.Message{Role: model.RoleTool, ToolCallID: "call-1", TokenCount: 5}
	history := []model.Message{
		msg(model.RoleUser, 50),
		assistantWithCalls,
		toolResult,
		msg(model.RoleAssistant, 5),
	}

	// A budget that fits only the trailing tool-result message and the
	// final reply would otherwise start mid tool-call block; the aligner
	// must walk back to include the assistant message that issued the call.
	got := Truncate(history, 11)

	if len(got) != 3 {
		t.Fatalf("expected the aligner to pull in the call-issuing message, got %d messages: %+v", len(got), got)
	}
	if got[0].Role != model.RoleAssistant || len(got[0].ToolCalls) == 0 {
		t.Fatalf("expected the first kept message to be the tool-call-issuing assistant message, got %+v", got[0])
	}
}

func TestTruncateEmptyHistory(t *testing.T) {
	got := Truncate(nil, 100)
	if len(got) != 0 {
		t.Fatalf("expected empty history to stay empty, got %+v", got)
	}
}
