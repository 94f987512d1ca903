package stages

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/pipeline"
	"github.com/chatmesh/gateway/internal/plugins"
)

// ReplyOptions configures formatting behavior read from the platform
// config bundle's global reply options.
type ReplyOptions struct {
	AtSender    bool
	QuoteOrigin bool
}

// ResponseWrapper turns Query.RespMessages into Query.RespMessageChain:
// concatenating assistant text, prefixing an At(sender) element when
// configured, and carrying through any image elements. It also fires
// normal_message_responded with the final chain.
type ResponseWrapper struct {
	Options func(pipelineConfig any) ReplyOptions
	Host    *plugins.Host
}

func NewResponseWrapper(options func(pipelineConfig any) ReplyOptions, host *plugins.Host) *ResponseWrapper {
	return &ResponseWrapper{Options: options, Host: host}
}

func (w *ResponseWrapper) Name() string { return NameResponseWrap }
func (w *ResponseWrapper) Initialize(pipelineConfig any) error { return nil }

func (w *ResponseWrapper) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	if len(q.RespMessages) == 0 {
		return pipeline.Interrupt(), nil
	}

	opts := ReplyOptions{}
	if w.Options != nil {
		opts = w.Options(q.PipelineConfig)
	}

	// Wrap only the entries appended since the last pass through this
	// stage: a single command-dispatch pass accumulates every
	// CommandReturn before reaching here and wraps them all at once, while
	// a streamed chat reply re-enters once per YieldStream item and wraps
	// only the newest delta each time.
	newSince := q.RespMessages[q.RespWrapped:]
	q.RespWrapped = len(q.RespMessages)
	if len(newSince) == 0 {
		return pipeline.Interrupt(), nil
	}

	var body model.MessageChain
	for _, msg := range newSince {
		body = append(body, messageToChain(msg)...)
	}
	if len(body) == 0 {
		// Nothing renderable this pass (e.g. a stream's final marker whose
		// content already went out delta by delta).
		q.RespMessageChain = nil
		return pipeline.Interrupt(), nil
	}

	chain := model.MessageChain{}
	if opts.AtSender && q.Launcher.Kind == model.LauncherGroup && q.SenderID != "" {
		chain = append(chain, model.ChainElement{Kind: model.ElementAt, TargetID: q.SenderID})
	}
	chain = append(chain, body...)
	q.RespMessageChain = chain

	if w.Host != nil {
		w.Host.Emit(ctx, model.NewEvent(model.EventNormalMessageResponded, map[string]any{
			"query_id": q.ID,
			"launcher": q.Launcher,
			"chain":    chain,
		}))
	}
	return pipeline.Continue(), nil
}

func messageToChain(msg model.Message) model.MessageChain {
	var chain model.MessageChain
	if msg.Content != "" {
		chain = append(chain, model.ChainElement{Kind: model.ElementText, Text: msg.Content})
	}
	for _, el := range msg.Elements {
		switch el.Kind {
		case model.ContentImageBase:
			chain = append(chain, model.ChainElement{Kind: model.ElementImage, ImageBase64: el.Value})
		case model.ContentImageURL:
			chain = append(chain, model.ChainElement{Kind: model.ElementImage, ImageURL: el.Value})
		}
	}
	return chain
}
