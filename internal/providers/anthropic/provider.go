// Package anthropic implements model.LLMRequester against Anthropic's
// Messages API via anthropic-sdk-go, handling message/tool conversion and
// streaming-event accumulation behind the single Call surface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

const defaultModel = "claude-sonnet-4-20250514"

// maxEmptyStreamEvents guards against a provider that opens a stream and
// never sends a content event.
const maxEmptyStreamEvents = 300

// Config configures a Provider's HTTP client and default model.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	MaxTokens    int
}

// Provider implements model.LLMRequester against Anthropic's Messages API.
type Provider struct {
	cfg    Config
	client anthropic.Client
}

// New builds an uninitialized Provider; call Initialize before Call.
func New(cfg Config) *Provider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Initialize(ctx context.Context) error {
	opts := []option.RequestOption{option.WithAPIKey(p.cfg.APIKey)}
	if p.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}
	if p.cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(p.cfg.Timeout))
	}
	p.client = anthropic.NewClient(opts...)
	return nil
}

func (p *Provider) Call(ctx context.Context, req *model.CompletionRequest) (model.Message, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.cfg.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	system, convMsgs, err := convertMessages(req.Messages)
	if err != nil {
		return model.Message{}, perrors.NewRequester("failed to convert messages for anthropic", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		Messages:  convMsgs,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Functions) > 0 {
		tools, err := convertTools(req.Functions)
		if err != nil {
			return model.Message{}, perrors.NewRequester("failed to convert tools for anthropic", err)
		}
		params.Tools = tools
	}

	if !req.Stream {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return model.Message{}, perrors.NewRequester("anthropic request failed", err)
		}
		return fromAnthropicMessage(msg), nil
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	return p.drainStream(stream, req.OnDelta)
}

func (p *Provider) drainStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], onDelta model.StreamSink) (model.Message, error) {
	acc := anthropic.Message{}
	emptyEvents := 0

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return model.Message{}, perrors.NewRequester("failed to accumulate anthropic stream event", err)
		}

		switch event.Type {
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				if onDelta != nil {
					onDelta(delta.Text)
				}
				emptyEvents = 0
			} else {
				emptyEvents++
			}
		default:
			emptyEvents++
		}

		if emptyEvents > maxEmptyStreamEvents {
			return model.Message{}, perrors.NewRequester("anthropic stream produced no content after too many events", nil)
		}
	}
	if err := stream.Err(); err != nil {
		return model.Message{}, perrors.NewRequester("anthropic stream failed", err)
	}

	return fromAnthropicMessage(&acc), nil
}

// convertMessages splits every system-role message out into a
// single concatenated system prompt (Anthropic takes System separately)
// and converts the remainder, mapping both "user" and "tool" roles onto
// Anthropic user messages (tool results travel as tool_result content
// blocks).
func convertMessages(messages []model.Message) (string, []anthropic.MessageParam, error) {
	var system string
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Role == model.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		} else if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return "", nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Function.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}

		var message anthropic.MessageParam
		if msg.Role == model.RoleAssistant {
			message = anthropic.NewAssistantMessage(content...)
		} else {
			message = anthropic.NewUserMessage(content...)
		}
		result = append(result, message)
	}

	return system, result, nil
}

func convertTools(specs []model.FunctionSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, spec := range specs {
		raw, err := json.Marshal(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid parameters for %s: %w", spec.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", spec.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", spec.Name)
		}
		toolParam.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// fromAnthropicMessage converts an assembled Anthropic response into the
// gateway's Message shape, carrying text and any tool_use blocks into
// ToolCalls for the runner's tool-execution loop to pick up.
func fromAnthropicMessage(msg *anthropic.Message) model.Message {
	out := model.Message{
		Role:      model.RoleAssistant,
		CreatedAt: time.Now(),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			args, _ := json.Marshal(toolUse.Input)
			tc := model.ToolCall{ID: toolUse.ID, Type: "function"}
			tc.Function.Name = toolUse.Name
			tc.Function.Arguments = string(args)
			out.ToolCalls = append(out.ToolCalls, tc)
		}
	}
	return out
}
