// Package stages implements the concrete stage graph: preprocess, access
// policy, session acquire, the command/chat processor, response wrapping
// and reply send. Each stage is a thin adapter over the collaborator
// packages (commands, sessions, runner, channels), expressed as a named
// pipeline.Stage instead of an inline call.
package stages

import (
	"context"
	"strings"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/pipeline"
)

// Stage names, used both as Jump targets and as the declared order a
// Builder wires into pipeline.New.
const (
	NamePreprocess     = "preprocess"
	NameAccessPolicy   = "access_policy"
	NameSessionAcquire = "session_acquire"
	NameProcessor      = "processor"
	NameResponseWrap   = "response_wrap"
	NameSendReply      = "send_reply"
)

// Preprocessor normalizes the inbound message chain: it strips leading
// at-mentions of the bot itself (so "@bot hello" and "hello" route
// identically), resolves a quoted reference, and folds the chain's text
// elements into Query.UserMessage for downstream stages.
type Preprocessor struct {
	// SelfIDs names the bot identity ids an at-mention strips, keyed by
	// adapter channel type so a Discord bot's own snowflake and a Telegram
	// bot's own username don't collide.
	SelfIDs map[model.ChannelType]string
}

func NewPreprocessor(selfIDs map[model.ChannelType]string) *Preprocessor {
	return &Preprocessor{SelfIDs: selfIDs}
}

func (p *Preprocessor) Name() string { return NamePreprocess }
func (p *Preprocessor) Initialize(pipelineConfig any) error { return nil }

func (p *Preprocessor) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	selfID := ""
	if q.Adapter != nil {
		selfID = p.SelfIDs[q.Adapter.ChannelType()]
	}

	chain := stripLeadingSelfMention(q.MessageChain, selfID)
	q.MessageChain = chain

	var quoteRef string
	var text strings.Builder
	for _, el := range chain {
		switch el.Kind {
		case model.ElementText:
			text.WriteString(el.Text)
		case model.ElementQuote:
			quoteRef = el.QuoteRef
		}
	}

	q.UserMessage = &model.Message{
		Role:    model.RoleUser,
		Content: text.String(),
	}
	if quoteRef != "" {
		q.UserMessage.Content = "[in reply to " + quoteRef + "] " + q.UserMessage.Content
	}
	return pipeline.Continue(), nil
}

// stripLeadingSelfMention drops a leading ElementAt targeting selfID, the
// way a group-chat "@bot do the thing" becomes "do the thing" once the
// bot's own mention is no longer meaningful content.
func stripLeadingSelfMention(chain model.MessageChain, selfID string) model.MessageChain {
	if selfID == "" || len(chain) == 0 {
		return chain
	}
	if chain[0].Kind == model.ElementAt && chain[0].TargetID == selfID {
		return chain[1:]
	}
	return chain
}
