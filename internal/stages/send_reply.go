package stages

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
	"github.com/chatmesh/gateway/internal/pipeline"
)

// SendReply delegates Query.RespMessageChain back to the adapter that
// produced the query. It is the terminal stage in the declared order; a
// YieldStream re-entry runs it once per streamed item.
type SendReply struct {
	QuoteOrigin func(pipelineConfig any) bool
}

func NewSendReply(quoteOrigin func(pipelineConfig any) bool) *SendReply {
	return &SendReply{QuoteOrigin: quoteOrigin}
}

func (s *SendReply) Name() string { return NameSendReply }
func (s *SendReply) Initialize(pipelineConfig any) error { return nil }

func (s *SendReply) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	if len(q.RespMessageChain) == 0 {
		return pipeline.Continue(), nil
	}
	if q.Adapter == nil {
		return pipeline.StageResult{}, perrors.NewAdapter("query has no adapter to reply through", nil)
	}

	quote := false
	if s.QuoteOrigin != nil {
		quote = s.QuoteOrigin(q.PipelineConfig)
	}

	if err := q.Adapter.ReplyMessage(ctx, q.MessageEvent, q.RespMessageChain, quote); err != nil {
		return pipeline.StageResult{}, perrors.NewAdapter("failed to send reply", err)
	}
	return pipeline.Continue(), nil
}
