package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

const defaultMaxToolIterations = 10

// LocalAgentConfig configures a LocalAgentRunner.
type LocalAgentConfig struct {
	Requester         model.LLMRequester
	Model             string
	Tools             *ToolRegistry
	MaxPromptTokens   int
	MaxToolIterations int // default 10
	Stream            bool
	Logger            *slog.Logger
}

// LocalAgentRunner drives the classic chat-completion tool-calling loop
// against a single LLMRequester: build request -> call provider -> execute
// any tool calls -> re-enter without the original user message -> repeat
// until no tool calls remain or MaxToolIterations is exhausted.
type LocalAgentRunner struct {
	cfg    LocalAgentConfig
	logger *slog.Logger
}

// NewLocalAgentRunner builds a LocalAgentRunner from cfg, applying defaults.
func NewLocalAgentRunner(cfg LocalAgentConfig) *LocalAgentRunner {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = defaultMaxToolIterations
	}
	if cfg.Tools == nil {
		cfg.Tools = NewToolRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAgentRunner{cfg: cfg, logger: logger.With("component", "runner.local")}
}

// Run implements Runner.
func (r *LocalAgentRunner) Run(ctx context.Context, conv *model.Conversation, userMsg model.Message) (<-chan model.Message, error) {
	if r.cfg.Requester == nil {
		return nil, perrors.NewConfig("local agent runner has no LLMRequester configured", nil)
	}

	out := make(chan model.Message, 8)
	go func() {
		defer close(out)
		if err := r.runLoop(ctx, conv, userMsg, out); err != nil {
			r.logger.Error("local agent loop failed", "error", err)
			emit(ctx, out, model.Message{
				Role:    model.RoleAssistant,
				Content: fmt.Sprintf("sorry, something went wrong: %v", err),
				IsFinal: true,
			})
		}
	}()
	return out, nil
}

// emit sends msg on out unless ctx is cancelled first, so a consumer that
// stopped draining mid-stream never strands the runner goroutine.
func emit(ctx context.Context, out chan<- model.Message, msg model.Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *LocalAgentRunner) runLoop(ctx context.Context, conv *model.Conversation, userMsg model.Message, out chan<- model.Message) error {
	// Step 1: build the initial request. Re-entries after a tool round
	// trip never re-add the original user message, since it is already
	// part of working history. conv.History itself grows by exactly the
	// user message, plus one assistant/tool pair per tool round trip, plus
	// the final assistant message -- append-only, per the conversation
	// invariant, and committed as the loop progresses rather than all at
	// once so a cancelled loop still leaves a usable partial history.
	conv.Append(userMsg)
	working := append([]model.Message(nil), Truncate(conv.History, r.cfg.MaxPromptTokens)...)

	var lastAssistant model.Message
	for iteration := 0; ; iteration++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if iteration >= r.cfg.MaxToolIterations {
			// The user still gets the model's last words rather than
			// silence; in streaming mode that text already went out as
			// deltas, so only the warning is new content.
			r.logger.Warn("max tool iterations reached", "iterations", iteration)
			final := model.Message{Role: model.RoleAssistant, IsFinal: true}
			if !r.cfg.Stream {
				final.Content = lastAssistant.Content
			}
			if final.Content != "" {
				final.Content += "\n"
			}
			final.Content += "(stopped after reaching the tool call limit)"
			emit(ctx, out, final)
			return nil
		}

		messages := append([]model.Message(nil), conv.Prompt...)
		messages = append(messages, working...)

		req := &model.CompletionRequest{
			Model:     r.cfg.Model,
			Messages:  messages,
			Functions: r.cfg.Tools.Specs(),
			Stream:    r.cfg.Stream,
		}
		if r.cfg.Stream {
			req.OnDelta = func(delta string) {
				emit(ctx, out, model.Message{Role: model.RoleAssistant, Content: delta})
			}
		}

		assistantMsg, err := r.cfg.Requester.Call(ctx, req)
		if err != nil {
			return perrors.NewRequester("LLM call failed", err)
		}

		if len(assistantMsg.ToolCalls) == 0 {
			conv.Append(assistantMsg)
			final := assistantMsg
			final.IsFinal = true
			if r.cfg.Stream {
				// The content already went out delta by delta; the final
				// item only marks the end of the sequence.
				final.Content = ""
			}
			emit(ctx, out, final)
			return nil
		}

		conv.Append(assistantMsg)
		lastAssistant = assistantMsg
		working = append(working, assistantMsg)
		toolMessages, err := r.executeToolCalls(ctx, assistantMsg.ToolCalls)
		if err != nil {
			return err
		}
		for _, tm := range toolMessages {
			conv.Append(tm)
		}
		working = append(working, toolMessages...)
	}
}

// executeToolCalls runs every tool call and returns one role=tool message
// per call, with ToolCallID matching the call. A tool execution error
// becomes the content of its own tool message rather than aborting the
// loop, so the model gets a chance to react to the failure.
func (r *LocalAgentRunner) executeToolCalls(ctx context.Context, calls []model.ToolCall) ([]model.Message, error) {
	results := make([]model.Message, 0, len(calls))
	for _, call := range calls {
		tool, ok := r.cfg.Tools.Get(call.Function.Name)
		if !ok {
			results = append(results, model.Message{
				Role:       model.RoleTool,
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("unknown tool %q", call.Function.Name),
				IsError:    true,
			})
			continue
		}

		content, isError, err := tool.Execute(ctx, call.Function.Arguments)
		if err != nil {
			content = err.Error()
			isError = true
		}
		results = append(results, model.Message{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			Content:    content,
			IsError:    isError,
		})
	}
	return results, nil
}
