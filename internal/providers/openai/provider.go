// Package openai implements model.LLMRequester against OpenAI's chat
// completions API via go-openai, handling message/tool conversion and
// per-index tool-call accumulation across stream chunks.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

const defaultModel = "gpt-4o"

// Config configures a Provider's HTTP client and default model.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Provider implements model.LLMRequester against OpenAI's chat completions
// API.
type Provider struct {
	cfg    Config
	client *openai.Client
}

// New builds an uninitialized Provider; call Initialize before Call.
func New(cfg Config) *Provider {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Initialize(ctx context.Context) error {
	if p.cfg.APIKey == "" {
		return perrors.NewRequester("openai API key not configured", nil)
	}
	clientCfg := openai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.BaseURL != "" {
		clientCfg.BaseURL = p.cfg.BaseURL
	}
	if p.cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: p.cfg.Timeout}
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return nil
}

func (p *Provider) Call(ctx context.Context, req *model.CompletionRequest) (model.Message, error) {
	if p.client == nil {
		return model.Message{}, perrors.NewRequester("openai provider not initialized", nil)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.cfg.DefaultModel
	}

	messages := convertMessages(req.Messages)

	chatReq := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Functions) > 0 {
		chatReq.Tools = convertTools(req.Functions)
	}

	if !req.Stream {
		resp, err := p.callWithRetry(ctx, chatReq)
		if err != nil {
			return model.Message{}, perrors.NewRequester("openai request failed", err)
		}
		if len(resp.Choices) == 0 {
			return model.Message{}, perrors.NewRequester("openai response had no choices", nil)
		}
		return fromChoiceMessage(resp.Choices[0].Message), nil
	}

	chatReq.Stream = true
	stream, err := p.createStreamWithRetry(ctx, chatReq)
	if err != nil {
		return model.Message{}, perrors.NewRequester("openai streaming request failed", err)
	}
	defer stream.Close()
	return p.drainStream(stream, req.OnDelta)
}

func (p *Provider) callWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return openai.ChatCompletionResponse{}, err
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}

func (p *Provider) createStreamWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// drainStream accumulates per-index tool calls across chunks, emitting
// text deltas through onDelta as they arrive and assembling the final
// Message once the stream closes.
func (p *Provider) drainStream(stream *openai.ChatCompletionStream, onDelta model.StreamSink) (model.Message, error) {
	out := model.Message{Role: model.RoleAssistant, CreatedAt: time.Now()}
	toolCalls := map[int]*model.ToolCall{}
	toolOrder := []int{}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return model.Message{}, perrors.NewRequester("openai stream failed", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			out.Content += delta.Content
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &model.ToolCall{Type: "function"}
				toolOrder = append(toolOrder, idx)
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Function.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Function.Arguments += tc.Function.Arguments
			}
		}
	}

	for _, idx := range toolOrder {
		if tc := toolCalls[idx]; tc.ID != "" && tc.Function.Name != "" {
			out.ToolCalls = append(out.ToolCalls, *tc)
		}
	}
	return out, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case model.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			result = append(result, oaiMsg)
		case model.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return result
}

func convertTools(specs []model.FunctionSpec) []openai.Tool {
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		}
	}
	return result
}

func fromChoiceMessage(msg openai.ChatCompletionMessage) model.Message {
	out := model.Message{
		Role:      model.RoleAssistant,
		Content:   msg.Content,
		CreatedAt: time.Now(),
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return out
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
