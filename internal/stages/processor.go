package stages

import (
	"context"
	"fmt"

	"github.com/chatmesh/gateway/internal/commands"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
	"github.com/chatmesh/gateway/internal/pipeline"
	"github.com/chatmesh/gateway/internal/plugins"
	"github.com/chatmesh/gateway/internal/runner"
)

// RunnerSelection names which runner a conversation's pipeline config
// selects, mirroring config.RunnerSelection without this package importing
// config directly (the processor only needs the two fields it acts on).
type RunnerSelection struct {
	Kind       string // "local" | "bridge"
	BridgeName string
}

// RunnerSelector resolves a conversation's pipeline config into the
// concrete Runner the processor should drive this turn through.
type RunnerSelector func(sel RunnerSelection) (runner.Runner, error)

// Processor is the branch point stage: it detects a command prefix and
// dispatches through the command registry, or else builds the chat request
// and drives it through the selected Runner.
type Processor struct {
	Parser        *commands.Parser
	Registry      *commands.Registry
	SelectRunner  RunnerSelector
	IsGroupAdmin  func(launcher model.Launcher, senderID string) bool
	IsBotAdmin    func(senderID string) bool
	PromptConfig  func(pipelineConfig any) RunnerSelection
	Host          *plugins.Host
}

func (p *Processor) Name() string { return NameProcessor }
func (p *Processor) Initialize(pipelineConfig any) error { return nil }

func (p *Processor) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	text := q.MessageChain.String()
	if stripped, ok := p.Parser.Detect(text); ok {
		return p.dispatchCommand(ctx, q, stripped)
	}
	return p.dispatchChat(ctx, q)
}

func (p *Processor) dispatchCommand(ctx context.Context, q *model.Query, stripped string) (pipeline.StageResult, error) {
	tokens := commands.Tokenize(stripped)
	if len(tokens) == 0 {
		return pipeline.Continue(), nil
	}

	inv := &commands.Invocation{
		Name:         tokens[0],
		Args:         tokens[1:],
		RawText:      stripped,
		LauncherKind: string(q.Launcher.Kind),
		LauncherID:   q.Launcher.ID,
		SenderID:     q.SenderID,
		Context: map[string]any{
			commands.CtxSession:        q.Session,
			commands.CtxConversation:   q.Conversation,
			commands.CtxPipelineConfig: q.PipelineConfig,
		},
	}
	if p.IsGroupAdmin != nil {
		inv.IsGroupAdmin = p.IsGroupAdmin(q.Launcher, q.SenderID)
	}
	if p.IsBotAdmin != nil {
		inv.IsBotAdmin = p.IsBotAdmin(q.SenderID)
	}

	results, err := p.Registry.Dispatch(ctx, inv)
	if err != nil {
		return pipeline.StageResult{}, perrors.NewCommand("command dispatch failed", err)
	}
	for ret := range results {
		q.AppendReply(commandReturnToMessage(ret))
	}
	return pipeline.Continue(), nil
}

func commandReturnToMessage(ret commands.CommandReturn) model.Message {
	if ret.Error != "" {
		return model.Message{Role: model.RoleAssistant, Content: ret.Error, IsError: true}
	}
	if len(ret.Image) > 0 {
		return model.Message{
			Role: model.RoleAssistant,
			Elements: []model.ContentElement{
				{Kind: model.ContentImageBase, Value: string(ret.Image)},
			},
		}
	}
	return model.Message{Role: model.RoleAssistant, Content: ret.Text}
}

func (p *Processor) dispatchChat(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	if q.Conversation == nil || q.UserMessage == nil {
		return pipeline.Continue(), nil
	}

	if p.Host != nil {
		evt := model.NewEvent(model.EventPromptPreProcess, map[string]any{
			"query_id": q.ID,
			"prompt":   q.Conversation.Prompt,
		})
		p.Host.Emit(ctx, evt)
		if evt.IsDefaultPrevented() {
			for _, v := range evt.Returns("prompt") {
				if msgs, ok := v.([]model.Message); ok {
					q.Conversation.Prompt = msgs
				}
			}
		}
	}

	sel := RunnerSelection{Kind: "local"}
	if p.PromptConfig != nil {
		sel = p.PromptConfig(q.PipelineConfig)
	}
	r, err := p.SelectRunner(sel)
	if err != nil {
		return pipeline.StageResult{}, perrors.NewConfig(fmt.Sprintf("no runner configured for selection %+v", sel), err)
	}

	stream, err := r.Run(ctx, q.Conversation, *q.UserMessage)
	if err != nil {
		return pipeline.StageResult{}, perrors.NewRequester("runner failed to start", err)
	}

	// The runner itself commits the user message, any tool round trip and
	// the final assistant message to conv.History as it progresses
	// (LocalAgentRunner) or tracks the remote conversation by RemoteID
	// (BridgeRunner); the pipeline only needs the stream of replies to
	// feed through the remaining stages.
	return pipeline.YieldStream(stream), nil
}
