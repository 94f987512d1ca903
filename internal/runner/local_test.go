package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chatmesh/gateway/internal/model"
)

type fakeRequester struct {
	calls     int
	responses []model.Message
	lastReq   *model.CompletionRequest
}

func (f *fakeRequester) Initialize(ctx context.Context) error { return nil }

func (f *fakeRequester) Call(ctx context.Context, req *model.CompletionRequest) (model.Message, error) {
	f.lastReq = req
	if f.calls >= len(f.responses) {
		return model.Message{}, errors.New("no more scripted responses")
	}
	resp := f.responses[f.calls]
	f.calls++
	if req.Stream && req.OnDelta != nil && resp.Content != "" {
		req.OnDelta(resp.Content)
	}
	return resp, nil
}

type fakeTool struct {
	name   string
	result string
	err    error
}

func (t *fakeTool) Name() string { return t.name }
func (t *fakeTool) Description() string { return "a fake tool" }
func (t *fakeTool) Parameters() any { return map[string]any{"type": "object"} }
func (t *fakeTool) Execute(ctx context.Context, argumentsJSON string) (string, bool, error) {
	if t.err != nil {
		return "", false, t.err
	}
	return t.result, false, nil
}

func newConv() *model.Conversation {
	return &model.Conversation{
		ID:     "conv-1",
		Prompt: []model.Message{{Role: model.RoleSystem, Content: "you are helpful"}},
	}
}

func TestLocalAgentRunnerNoToolCallsReturnsFinalMessage(t *testing.T) {
	req := &fakeRequester{responses: []model.Message{
		{Role: model.RoleAssistant, Content: "hello there"},
	}}
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req, Model: "test-model"})

	out, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := <-out
	if got.Content != "hello there" {
		t.Fatalf("unexpected final message: %+v", got)
	}
	if _, ok := <-out; ok {
		t.Fatalf("expected channel to close after the final message")
	}
	if req.calls != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", req.calls)
	}
}

func TestLocalAgentRunnerExecutesToolCallAndContinues(t *testing.T) {
	req := &fakeRequester{responses: []model.Message{
		{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{{ID: "call-1", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: "lookup", Arguments: `{"q":"weather"}`}}},
		},
		{Role: model.RoleAssistant, Content: "it is sunny"},
	}}
	tools := NewToolRegistry()
	tools.Register(&fakeTool{name: "lookup", result: "72F and clear"})
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req, Tools: tools})

	out, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "weather?"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got := <-out
	if got.Content != "it is sunny" {
		t.Fatalf("unexpected final message: %+v", got)
	}
	if req.calls != 2 {
		t.Fatalf("expected two LLM calls (initial + post-tool), got %d", req.calls)
	}
	// The second request must carry the tool result in working history.
	foundToolMsg := false
	for _, m := range req.lastReq.Messages {
		if m.Role == model.RoleTool && m.ToolCallID == "call-1" && m.Content == "72F and clear" {
			foundToolMsg = true
		}
	}
	if !foundToolMsg {
		t.Fatalf("expected the tool result message to be threaded into the follow-up request: %+v", req.lastReq.Messages)
	}
}

func TestLocalAgentRunnerUnknownToolProducesErrorMessage(t *testing.T) {
	req := &fakeRequester{responses: []model.Message{
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{ID: "call-1", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: "does-not-exist"}}},
		},
		{Role: model.RoleAssistant, Content: "done"},
	}}
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req})

	out, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "go"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-out

	foundErrorMsg := false
	for _, m := range req.lastReq.Messages {
		if m.Role == model.RoleTool && m.IsError {
			foundErrorMsg = true
		}
	}
	if !foundErrorMsg {
		t.Fatalf("expected an error-flagged tool message for the unknown tool")
	}
}

func TestLocalAgentRunnerStopsAtMaxToolIterations(t *testing.T) {
	callFn := model.ToolCall{ID: "call-1", Function: struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}{Name: "loopy"}}
	// Scripted to always return a tool call, so the loop would run forever
	// without the iteration bound.
	responses := make([]model.Message, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{callFn}})
	}
	req := &fakeRequester{responses: responses}
	tools := NewToolRegistry()
	tools.Register(&fakeTool{name: "loopy", result: "again"})
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req, Tools: tools, MaxToolIterations: 3})

	out, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "go"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	final := <-out
	if !final.IsFinal {
		t.Fatalf("expected a final message once iterations are exhausted, got %+v", final)
	}
	if !strings.Contains(final.Content, "tool call limit") {
		t.Fatalf("expected the exhaustion warning in the final message, got %q", final.Content)
	}
	if _, ok := <-out; ok {
		t.Fatalf("expected the channel to close after the exhaustion message")
	}
	if req.calls != 3 {
		t.Fatalf("expected exactly MaxToolIterations calls, got %d", req.calls)
	}
}

func TestLocalAgentRunnerCommitsToolRoundTripToHistory(t *testing.T) {
	req := &fakeRequester{responses: []model.Message{
		{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{{ID: "call-1", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: "lookup"}}},
		},
		{Role: model.RoleAssistant, Content: "it is sunny"},
	}}
	tools := NewToolRegistry()
	tools.Register(&fakeTool{name: "lookup", result: "72F and clear"})
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req, Tools: tools})

	conv := newConv()
	out, err := r.Run(context.Background(), conv, model.Message{Role: model.RoleUser, Content: "weather?"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-out
	if _, ok := <-out; ok {
		t.Fatalf("expected channel to close")
	}

	if len(conv.History) != 4 {
		t.Fatalf("expected [user, assistant(tool_calls), tool(result), assistant(final)], got %d entries: %+v", len(conv.History), conv.History)
	}
	if conv.History[0].Role != model.RoleUser {
		t.Fatalf("history[0] should be the user message, got %+v", conv.History[0])
	}
	if !conv.History[1].IsToolPair() {
		t.Fatalf("history[1] should carry the tool calls, got %+v", conv.History[1])
	}
	if conv.History[2].Role != model.RoleTool || conv.History[2].ToolCallID != "call-1" {
		t.Fatalf("history[2] should be the tool result for call-1, got %+v", conv.History[2])
	}
	if conv.History[3].Role != model.RoleAssistant || conv.History[3].Content != "it is sunny" {
		t.Fatalf("history[3] should be the final assistant message, got %+v", conv.History[3])
	}
}

func TestLocalAgentRunnerRequiresRequester(t *testing.T) {
	r := NewLocalAgentRunner(LocalAgentConfig{})
	_, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "hi"})
	if err == nil {
		t.Fatalf("expected an error when no Requester is configured")
	}
}

func TestLocalAgentRunnerStreamingForwardsDeltas(t *testing.T) {
	req := &fakeRequester{responses: []model.Message{
		{Role: model.RoleAssistant, Content: "partial"},
	}}
	r := NewLocalAgentRunner(LocalAgentConfig{Requester: req, Stream: true})

	out, err := r.Run(context.Background(), newConv(), model.Message{Role: model.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	delta := <-out
	if delta.Content != "partial" || delta.IsFinal {
		t.Fatalf("expected the streamed delta first, got %+v", delta)
	}
	final := <-out
	if !final.IsFinal {
		t.Fatalf("expected a final marker after the delta, got %+v", final)
	}
	if final.Content != "" {
		t.Fatalf("final marker must not repeat content already streamed, got %q", final.Content)
	}
}
