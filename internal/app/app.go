// Package app wires every collaborator package into one running gateway:
// a single Application aggregate constructed once at boot and held by
// reference everywhere else, with no package-level mutable state.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatmesh/gateway/internal/auth"
	"github.com/chatmesh/gateway/internal/bots"
	"github.com/chatmesh/gateway/internal/channels"
	"github.com/chatmesh/gateway/internal/channels/discord"
	"github.com/chatmesh/gateway/internal/channels/slack"
	"github.com/chatmesh/gateway/internal/channels/telegram"
	"github.com/chatmesh/gateway/internal/commands"
	"github.com/chatmesh/gateway/internal/config"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/observability"
	"github.com/chatmesh/gateway/internal/perrors"
	"github.com/chatmesh/gateway/internal/pipeline"
	"github.com/chatmesh/gateway/internal/plugins"
	"github.com/chatmesh/gateway/internal/providers/anthropic"
	"github.com/chatmesh/gateway/internal/providers/openai"
	"github.com/chatmesh/gateway/internal/querypool"
	"github.com/chatmesh/gateway/internal/runner"
	"github.com/chatmesh/gateway/internal/sessions"
	"github.com/chatmesh/gateway/internal/stages"
	"github.com/chatmesh/gateway/internal/storage/postgres"
	"github.com/chatmesh/gateway/internal/storage/sqlite"
	"github.com/chatmesh/gateway/internal/tasks"
)

// Options configures Application construction; every field is resolved by
// cmd/gatewayd from flags, environment and the system config bundle before
// calling New.
type Options struct {
	ConfigPaths config.BundlePaths
	Logger      *slog.Logger

	// StoragePath is a sqlite file path (or ":memory:"). Set DSN instead to
	// use Postgres.
	StoragePath string
	DSN         string

	// Auth configures the control-plane JWT/API-key service.
	Auth auth.Config

	TraceConfig observability.TraceConfig
}

// Application is the constructed-once aggregate every other component of
// the gateway is reached through: HTTP handlers close over it, the
// dispatch loop closes over it, and shutdown walks it in reverse
// construction order. There is deliberately no package-level instance.
type Application struct {
	Logger *slog.Logger

	Config *config.Loader
	Auth   *auth.Service

	closeStorage func() error
	Sessions     Store
	Bots         bots.Store

	SessionMgr *sessions.Manager
	Plugins    *plugins.Host
	Tasks      *tasks.Manager
	Models     *model.ModelManager
	Channels   *channels.Registry
	Commands   *commands.Registry

	runners    map[string]runner.Runner
	Controller *pipeline.Controller
	Pool       *querypool.Dispatcher

	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	tracerShutdown func(context.Context) error
}

// Store is the session-persistence capability Application.Sessions holds;
// it's exactly sessions.Store, named locally only to keep this file's
// import list readable.
type Store = sessions.Store

// New constructs an Application: it loads and validates config, opens
// storage, builds every collaborator, and assembles the stage graph, but
// does not yet start adapters or the sweeper task (see Start).
func New(ctx context.Context, opts Options) (*Application, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loader, err := config.NewLoader(opts.ConfigPaths)
	if err != nil {
		return nil, perrors.NewConfig("failed to load configuration bundles", err)
	}
	bundles := loader.Current()

	sessionStore, botStore, closeStorage, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	authSvc := auth.NewService(opts.Auth)

	host := plugins.NewHost(logger)
	taskMgr := tasks.NewManager(logger)
	models := model.NewModelManager()

	for name, entry := range bundles.Provider.Models {
		requester, err := buildRequester(entry)
		if err != nil {
			return nil, perrors.NewConfig(fmt.Sprintf("provider model %q failed to configure", name), err)
		}
		if err := requester.Initialize(ctx); err != nil {
			return nil, perrors.NewRequester(fmt.Sprintf("provider model %q failed to initialize", name), err)
		}
		models.Register(model.LLMModelInfo{
			Name:              name,
			ProviderModelName: entry.ProviderModelName,
			Requester:         requester,
			ToolCallSupported: entry.ToolCallSupported,
		})
	}
	if bundles.Provider.DefaultModel != "" {
		models.SetDefault(bundles.Provider.DefaultModel)
	}

	concurrency := sessions.ConcurrencyConfig{Default: bundles.System.SessionConcurrency}
	sessMgr := sessions.NewManager(sessions.Config{
		Store:       sessionStore,
		Host:        host,
		Concurrency: concurrency,
		ExpireAfter: bundles.System.SessionExpireAfter,
		Logger:      logger,
	})
	if err := sessMgr.Load(ctx); err != nil {
		return nil, perrors.NewSession("failed to warm session store", err)
	}

	cmdRegistry := commands.NewRegistry(logger)
	commands.RegisterBuiltins(cmdRegistry, sessMgr, host, models.List, nil)

	registry := channels.NewRegistry()

	metrics := observability.NewMetrics()
	tracer, tracerShutdown := observability.NewTracer(opts.TraceConfig)

	a := &Application{
		Logger:         logger,
		Config:         loader,
		Auth:           authSvc,
		closeStorage:   closeStorage,
		Sessions:       sessionStore,
		Bots:           botStore,
		SessionMgr:     sessMgr,
		Plugins:        host,
		Tasks:          taskMgr,
		Models:         models,
		Channels:       registry,
		Commands:       cmdRegistry,
		runners:        map[string]runner.Runner{},
		Pool:           querypool.New(queryWorkers(bundles.System), logger),
		Metrics:        metrics,
		Tracer:         tracer,
		tracerShutdown: tracerShutdown,
	}

	if err := a.buildRunners(bundles); err != nil {
		return nil, err
	}
	if err := a.buildChannels(ctx, bundles); err != nil {
		return nil, err
	}

	a.Controller = stages.Build(stages.Deps{
		SelfIDs:      a.selfIDs(bundles),
		Bans:         &banPolicy{cfg: loader},
		Mutes:        &mutePolicy{cfg: loader},
		Sessions:     sessMgr,
		Host:         host,
		Parser:       commands.NewParser(bundles.Command.Prefixes...),
		Registry:     cmdRegistry,
		SelectRunner: a.selectRunner,
		IsGroupAdmin: a.isGroupAdmin,
		IsBotAdmin:   a.isBotAdmin,
		RunnerOf:     a.runnerSelectionOf,
		ReplyOptions: func(pc any) stages.ReplyOptions { return a.replyOptions(pc) },
		QuoteOrigin:  func(pc any) bool { return a.replyOptions(pc).QuoteOrigin },
	}, logger)

	return a, nil
}

// queryWorkers sizes the query pool from the system bundle, defaulting to a
// small worker count; per-session ordering is enforced downstream by the
// session semaphore, not here.
func queryWorkers(sys config.SystemConfig) int {
	if sys.QueryWorkers > 0 {
		return sys.QueryWorkers
	}
	return 4
}

func openStorage(opts Options) (sessions.Store, bots.Store, func() error, error) {
	if opts.DSN != "" {
		store, err := postgres.Open(opts.DSN, postgres.DefaultConfig())
		if err != nil {
			return nil, nil, nil, perrors.NewConfig("failed to open postgres storage", err)
		}
		return store.Sessions, store.Bots, store.Close, nil
	}
	path := opts.StoragePath
	if path == "" {
		path = "gateway.sqlite"
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, nil, perrors.NewConfig("failed to open sqlite storage", err)
	}
	return store.Sessions, store.Bots, store.Close, nil
}

func buildRequester(entry config.ModelEntryConfig) (model.LLMRequester, error) {
	switch entry.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       entry.APIKey,
			BaseURL:      entry.BaseURL,
			Timeout:      entry.Timeout,
			DefaultModel: entry.ProviderModelName,
		}), nil
	case "openai":
		return openai.New(openai.Config{
			APIKey:       entry.APIKey,
			BaseURL:      entry.BaseURL,
			Timeout:      entry.Timeout,
			DefaultModel: entry.ProviderModelName,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Provider)
	}
}

func (a *Application) selfIDs(bundles *config.Bundles) map[model.ChannelType]string {
	ids := map[model.ChannelType]string{}
	for _, botCfg := range bundles.Platform.Bots {
		ct := model.ChannelType(botCfg.AdapterName)
		if selfID, ok := botCfg.Config["self_id"].(string); ok {
			ids[ct] = selfID
		}
	}
	return ids
}

// runnerSelectionOf reads the pipeline bundle's configured runner choice.
// pipelineConfig is always the config.PipelineConfig snapshot frozen onto
// Query.PipelineConfig at dispatch time.
func (a *Application) runnerSelectionOf(pipelineConfig any) stages.RunnerSelection {
	pc, ok := pipelineConfig.(config.PipelineConfig)
	if !ok {
		return stages.RunnerSelection{Kind: "local"}
	}
	return stages.RunnerSelection{Kind: pc.Runner.Kind, BridgeName: pc.Runner.BridgeName}
}

func (a *Application) replyOptions(pipelineConfig any) stages.ReplyOptions {
	bundles := a.Config.Current()
	return stages.ReplyOptions{
		AtSender:    bundles.Platform.AtSender,
		QuoteOrigin: bundles.Platform.QuoteOrigin,
	}
}

// buildRunners constructs the local-agent runner, which drives the
// pipeline's provider-agnostic tool-calling loop against the default
// registered model, plus one bridge runner per configured external
// agent/workflow endpoint, registered under "bridge:<name>" keys for
// selectRunner below.
func (a *Application) buildRunners(bundles *config.Bundles) error {
	defaultModel, _ := a.Models.Default()
	a.runners["local"] = runner.NewLocalAgentRunner(runner.LocalAgentConfig{
		Requester:       defaultModel.Requester,
		Model:           defaultModel.ProviderModelName,
		Tools:           runner.NewToolRegistry(),
		MaxPromptTokens: bundles.Pipeline.MaxPromptTokens,
		Logger:          a.Logger,
	})

	for name, entry := range bundles.Provider.Bridges {
		bridge, err := runner.NewBridgeRunner(runner.BridgeConfig{
			BaseURL:    entry.BaseURL,
			AuthToken:  entry.AuthToken,
			Mode:       runner.BridgeMode(entry.Mode),
			BotID:      entry.BotID,
			WorkflowID: entry.WorkflowID,
			AppID:      entry.AppID,
			InputKey:   entry.InputKey,
			Stream:     entry.Stream,
		})
		if err != nil {
			return perrors.NewConfig(fmt.Sprintf("bridge %q failed to configure", name), err)
		}
		a.runners["bridge:"+name] = bridge
	}
	return nil
}

func (a *Application) selectRunner(sel stages.RunnerSelection) (runner.Runner, error) {
	key := sel.Kind
	if key == "" {
		key = "local"
	}
	if key == "bridge" && sel.BridgeName != "" {
		key = "bridge:" + sel.BridgeName
	}
	r, ok := a.runners[key]
	if !ok {
		return nil, fmt.Errorf("no runner registered for %q", key)
	}
	return r, nil
}

// buildChannels constructs one adapter per enabled bot entry, all sharing
// Application.handleInbound as their InboundHandler.
func (a *Application) buildChannels(ctx context.Context, bundles *config.Bundles) error {
	for _, botCfg := range bundles.Platform.Bots {
		if !botCfg.Enable {
			continue
		}
		adapter, err := a.buildAdapter(botCfg)
		if err != nil {
			return perrors.NewConfig(fmt.Sprintf("bot %q failed to configure adapter %q", botCfg.UUID, botCfg.AdapterName), err)
		}
		a.Channels.Register(adapter)
	}
	return nil
}

func (a *Application) buildAdapter(botCfg config.BotEntryConfig) (channels.Adapter, error) {
	switch botCfg.AdapterName {
	case "discord":
		token, _ := botCfg.Config["token"].(string)
		selfID, _ := botCfg.Config["self_id"].(string)
		return discord.New(discord.Config{Token: token, SelfID: selfID, Logger: a.Logger}, a.handleInbound)
	case "telegram":
		token, _ := botCfg.Config["token"].(string)
		selfID, _ := botCfg.Config["self_id"].(string)
		return telegram.New(telegram.Config{Token: token, SelfID: selfID, Logger: a.Logger}, a.handleInbound)
	case "slack":
		botToken, _ := botCfg.Config["bot_token"].(string)
		appToken, _ := botCfg.Config["app_token"].(string)
		return slack.New(slack.Config{BotToken: botToken, AppToken: appToken, Logger: a.Logger}, a.handleInbound)
	default:
		return nil, fmt.Errorf("unknown adapter %q", botCfg.AdapterName)
	}
}

// Start initializes the stage graph against the current pipeline config,
// starts every channel adapter, starts the config hot-reload watcher, and
// spawns the session-expiry sweeper: a single application-scoped task
// rather than one timer per session.
func (a *Application) Start(ctx context.Context) error {
	bundles := a.Config.Current()

	if err := a.Controller.Initialize(bundles.Pipeline); err != nil {
		return err
	}

	if err := a.Config.Watch(ctx, config.WatchConfig{Logger: a.Logger}); err != nil {
		a.Logger.Warn("config hot-reload watcher failed to start", "error", err)
	}

	if err := a.Channels.StartAll(ctx); err != nil {
		return perrors.NewAdapter("one or more channel adapters failed to start", err)
	}

	if a.Metrics != nil {
		a.Metrics.QueryPoolCapacity.Set(float64(a.Pool.Capacity()))
	}

	sweepInterval := bundles.System.SessionExpireAfter / 4
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	a.Tasks.Spawn(ctx, "session-expiry-sweeper", []tasks.Scope{tasks.ScopeApplication}, func(tc *tasks.TaskContext) {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tc.Done():
				return
			case <-ticker.C:
				tc.SetAction("sweeping expired sessions")
				n := a.SessionMgr.Sweep(tc)
				if a.Metrics != nil {
					if n > 0 {
						a.Metrics.SessionsExpiredTotal.Add(float64(n))
					}
					a.Metrics.ActiveSessions.Set(float64(len(a.SessionMgr.List())))
				}
			}
		}
	})

	a.Logger.Info("gateway started",
		"adapters", len(a.Channels.All()),
		"models", a.Models.List(),
	)
	return nil
}

// Shutdown stops accepting new queries, drains in-flight ones (bounded by
// timeout), stops every channel adapter, persists every live session, and
// flushes the tracer.
func (a *Application) Shutdown(ctx context.Context, timeout time.Duration) error {
	a.Pool.Close()
	if err := a.Pool.Wait(ctx); err != nil {
		a.Logger.Warn("query pool drain timed out", "error", err)
	}

	a.Tasks.Shutdown(ctx, tasks.ScopeApplication, timeout)

	for _, err := range a.Channels.StopAll(ctx) {
		a.Logger.Error("adapter failed to stop cleanly", "error", err)
	}

	a.SessionMgr.Close(ctx)

	if a.tracerShutdown != nil {
		_ = a.tracerShutdown(ctx)
	}
	if a.closeStorage != nil {
		return a.closeStorage()
	}
	return nil
}
