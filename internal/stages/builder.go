package stages

import (
	"log/slog"

	"github.com/chatmesh/gateway/internal/commands"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/pipeline"
	"github.com/chatmesh/gateway/internal/plugins"
	"github.com/chatmesh/gateway/internal/sessions"
)

// Deps collects every collaborator the concrete stage graph needs. Callers
// (internal/app) construct one of these from the loaded config bundles and
// pass it to Build.
type Deps struct {
	SelfIDs      map[model.ChannelType]string
	Bans         BanChecker
	Mutes        MuteChecker
	Sessions     *sessions.Manager
	Host         *plugins.Host
	Parser       *commands.Parser
	Registry     *commands.Registry
	SelectRunner RunnerSelector
	IsGroupAdmin func(launcher model.Launcher, senderID string) bool
	IsBotAdmin   func(senderID string) bool
	RunnerOf     func(pipelineConfig any) RunnerSelection
	ReplyOptions func(pipelineConfig any) ReplyOptions
	QuoteOrigin  func(pipelineConfig any) bool
}

// Build assembles the declared, ordered stage graph:
// preprocess -> access policy -> session acquire -> processor -> response
// wrap -> send reply.
func Build(d Deps, logger *slog.Logger) *pipeline.Controller {
	pre := NewPreprocessor(d.SelfIDs)
	policy := NewAccessPolicy(d.Bans, d.Mutes)
	acquire := NewSessionAcquire(d.Sessions, d.Host)
	proc := &Processor{
		Parser:       d.Parser,
		Registry:     d.Registry,
		SelectRunner: d.SelectRunner,
		IsGroupAdmin: d.IsGroupAdmin,
		IsBotAdmin:   d.IsBotAdmin,
		PromptConfig: d.RunnerOf,
		Host:         d.Host,
	}
	wrap := NewResponseWrapper(d.ReplyOptions, d.Host)
	send := NewSendReply(d.QuoteOrigin)

	return pipeline.New([]pipeline.Stage{pre, policy, acquire, proc, wrap, send}, d.Host, logger)
}
