package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

// BridgeMode selects which upstream surface a BridgeRunner talks to,
// generalized from the two application types an external platform (Coze,
// Dify and similar) exposes: a conversational agent/bot, or a workflow run
// with arbitrary named parameters.
type BridgeMode string

const (
	BridgeModeAgent    BridgeMode = "agent"
	BridgeModeWorkflow BridgeMode = "workflow"
)

// HTTPDoer is the subset of *http.Client a BridgeRunner needs, so tests can
// substitute a fake transport without opening a socket.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BridgeConfig configures a BridgeRunner against one external agent or
// workflow endpoint.
type BridgeConfig struct {
	Client      HTTPDoer
	BaseURL     string // e.g. https://api.coze.com
	AuthToken   string // bearer token
	Mode        BridgeMode
	BotID       string // BridgeModeAgent
	WorkflowID  string // BridgeModeWorkflow
	AppID       string // BridgeModeWorkflow, mutually exclusive with BotID
	InputKey    string // BridgeModeWorkflow parameter name, default "input"
	Stream      bool
}

// BridgeRunner proxies a conversation turn to an external agent or workflow
// service instead of driving tool-calling locally. Grounded on the
// agent-vs-workflow dispatch and streaming-event shape of the Coze bridge in
// the original implementation, adapted to the provider-agnostic HTTP+SSE
// shape the rest of this module's provider layer already speaks.
type BridgeRunner struct {
	cfg BridgeConfig
}

// NewBridgeRunner builds a BridgeRunner from cfg, applying defaults.
func NewBridgeRunner(cfg BridgeConfig) (*BridgeRunner, error) {
	if cfg.BaseURL == "" {
		return nil, perrors.NewConfig("bridge runner requires a base URL", nil)
	}
	if cfg.Mode == BridgeModeWorkflow {
		if cfg.WorkflowID == "" {
			return nil, perrors.NewConfig("workflow bridge requires a workflow id", nil)
		}
		if cfg.BotID != "" && cfg.AppID != "" {
			return nil, perrors.NewConfig("workflow bridge cannot set both bot id and app id", nil)
		}
		if cfg.InputKey == "" {
			cfg.InputKey = "input"
		}
	}
	if cfg.Mode == BridgeModeAgent && cfg.BotID == "" {
		return nil, perrors.NewConfig("agent bridge requires a bot id", nil)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &BridgeRunner{cfg: cfg}, nil
}

// Run implements Runner.
func (b *BridgeRunner) Run(ctx context.Context, conv *model.Conversation, userMsg model.Message) (<-chan model.Message, error) {
	out := make(chan model.Message, 8)
	go func() {
		defer close(out)
		var err error
		switch b.cfg.Mode {
		case BridgeModeWorkflow:
			err = b.runWorkflow(ctx, conv, userMsg, out)
		default:
			err = b.runAgent(ctx, conv, userMsg, out)
		}
		if err != nil {
			emit(ctx, out, model.Message{
				Role:    model.RoleAssistant,
				Content: fmt.Sprintf("upstream bridge call failed: %v", err),
				IsError: true,
				IsFinal: true,
			})
		}
	}()
	return out, nil
}

func (b *BridgeRunner) runAgent(ctx context.Context, conv *model.Conversation, userMsg model.Message, out chan<- model.Message) error {
	payload := map[string]any{
		"bot_id":          b.cfg.BotID,
		"conversation_id": conv.RemoteID,
		"stream":          b.cfg.Stream,
		"additional_messages": []map[string]any{
			{"role": "user", "content": userMsg.Content, "content_type": "text"},
		},
	}
	return b.doRequest(ctx, "/v3/chat", payload, out, func(evt bridgeEvent, out chan<- model.Message) error {
		switch evt.Event {
		case "conversation.message.delta":
			if evt.Message.Content != "" {
				emit(ctx, out, model.Message{Role: model.RoleAssistant, Content: evt.Message.Content})
			}
		case "conversation.chat.completed":
			if evt.Chat.ConversationID != "" {
				conv.RemoteID = evt.Chat.ConversationID
			}
			emit(ctx, out, model.Message{Role: model.RoleAssistant, IsFinal: true})
		}
		return nil
	})
}

func (b *BridgeRunner) runWorkflow(ctx context.Context, conv *model.Conversation, userMsg model.Message, out chan<- model.Message) error {
	params := map[string]any{b.cfg.InputKey: userMsg.Content}
	payload := map[string]any{"workflow_id": b.cfg.WorkflowID, "parameters": params}
	if b.cfg.AppID != "" {
		payload["app_id"] = b.cfg.AppID
	}
	return b.doRequest(ctx, "/v1/workflow/run", payload, out, func(evt bridgeEvent, out chan<- model.Message) error {
		switch evt.Event {
		case "Message":
			emit(ctx, out, model.Message{Role: model.RoleAssistant, Content: evt.Content, IsFinal: !b.cfg.Stream})
		case "Error":
			return fmt.Errorf("workflow error: %s", evt.Content)
		}
		return nil
	})
}

// bridgeEvent is the union of event shapes both the agent and workflow
// streaming endpoints emit.
type bridgeEvent struct {
	Event   string `json:"event"`
	Content string `json:"content"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Chat struct {
		ConversationID string `json:"conversation_id"`
	} `json:"chat"`
}

func (b *BridgeRunner) doRequest(ctx context.Context, path string, payload map[string]any, out chan<- model.Message, handle func(bridgeEvent, chan<- model.Message) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return perrors.NewAdapter("failed to encode bridge request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return perrors.NewAdapter("failed to build bridge request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.AuthToken)
	}

	resp, err := b.cfg.Client.Do(req)
	if err != nil {
		return perrors.NewAdapter("bridge request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return perrors.NewAdapter(fmt.Sprintf("bridge returned status %d", resp.StatusCode), nil)
	}

	if !b.cfg.Stream {
		var single bridgeEvent
		if err := json.NewDecoder(resp.Body).Decode(&single); err != nil {
			return perrors.NewAdapter("failed to decode bridge response", err)
		}
		return handle(single, out)
	}
	return scanSSE(resp, out, handle)
}

// scanSSE reads a text/event-stream body, decoding each "data: {...}" line
// as a bridgeEvent.
func scanSSE(resp *http.Response, out chan<- model.Message, handle func(bridgeEvent, chan<- model.Message) error) error {
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var evt bridgeEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		if err := handle(evt, out); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return perrors.NewAdapter("failed reading bridge event stream", err)
	}
	return nil
}
