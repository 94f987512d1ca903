package app

import (
	"context"
	"errors"
	"time"

	"github.com/chatmesh/gateway/internal/config"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/observability"
	"github.com/chatmesh/gateway/internal/perrors"
)

// handleInbound is the channels.InboundHandler shared by every adapter.
// It freezes the current pipeline config onto the query and submits it to
// the query pool, which bounds total in-flight concurrency across every
// platform at once.
func (a *Application) handleInbound(ctx context.Context, q *model.Query) {
	bundles := a.Config.Current()
	q.PipelineConfig = bundles.Pipeline

	if a.Metrics != nil {
		a.Metrics.MessagesTotal.WithLabelValues(string(q.Launcher.Kind), "inbound").Inc()
		a.Metrics.QueryPoolDepth.Set(float64(a.Pool.InFlight()))
	}

	if err := a.Pool.Submit(ctx, func(poolCtx context.Context) { a.runQuery(poolCtx, q) }); err != nil {
		a.Logger.Error("failed to submit query to pool", "query_id", q.ID, "error", err)
	}
}

// runQuery runs one query through the pipeline controller under a
// per-query wall-clock timeout, guaranteeing the session permit
// SessionAcquire took out is always released exactly once regardless of
// which exit path the controller takes.
func (a *Application) runQuery(ctx context.Context, q *model.Query) {
	bundles := a.Config.Current()
	timeout := bundles.System.QueryTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	queryCtx, span := a.Tracer.StartQuery(queryCtx, q.ID, string(q.Launcher.Kind), q.Launcher.ID)

	defer func() {
		if q.SemaphoreRelease != nil {
			q.SemaphoreRelease()
		}
	}()

	err := a.Controller.Run(queryCtx, q)
	observability.EndWithError(span, err)

	if err != nil {
		a.Logger.Error("pipeline run failed", "query_id", q.ID, "launcher", q.Launcher, "error", err)
		if a.Metrics != nil {
			a.Metrics.StageErrors.WithLabelValues("pipeline", string(perrors.KindOf(err))).Inc()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			a.sendTimeoutReply(q)
		}
	}
}

// sendTimeoutReply delivers the configured timeout reply for a query that
// hit the wall-clock ceiling before any reply went out. The query's own
// context is already dead, so the send runs under a fresh short one.
func (a *Application) sendTimeoutReply(q *model.Query) {
	pc, ok := q.PipelineConfig.(config.PipelineConfig)
	if !ok || pc.TimeoutReply == "" || q.RespWrapped > 0 || q.Adapter == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	chain := model.MessageChain{{Kind: model.ElementText, Text: pc.TimeoutReply}}
	if err := q.Adapter.ReplyMessage(sendCtx, q.MessageEvent, chain, false); err != nil {
		a.Logger.Error("failed to send timeout reply", "query_id", q.ID, "error", err)
	}
}

// banPolicy implements stages.BanChecker from the command bundle's
// per-launcher-kind allow-list: an empty or absent list means
// unrestricted, a configured list denies every sender not on it. Reading
// straight off the config loader means a hot reload of the command bundle
// takes effect on the very next query.
type banPolicy struct {
	cfg *config.Loader
}

func (b *banPolicy) IsBanned(launcher model.Launcher, senderID string) bool {
	allow := b.cfg.Current().Command.AllowFrom
	list, ok := allow[string(launcher.Kind)]
	if !ok || len(list) == 0 {
		return false
	}
	for _, id := range list {
		if id == senderID {
			return false
		}
	}
	return true
}

// mutePolicy implements stages.MuteChecker from the platform bundle's
// static mute rules.
type mutePolicy struct {
	cfg *config.Loader
}

func (m *mutePolicy) IsMuted(ctx context.Context, groupID string) (bool, error) {
	bundles := m.cfg.Current()
	for _, rule := range bundles.Platform.MuteRules {
		if rule.GroupID == groupID {
			return true, nil
		}
	}
	return false, nil
}

// isBotAdmin resolves bot-admin authority from the command bundle's
// bot_admins list, read live off the loader so a hot reload applies to the
// next query.
func (a *Application) isBotAdmin(senderID string) bool {
	return botAdminAllowed(a.Config.Current().Command, senderID)
}

// isGroupAdmin resolves group-admin authority from the command bundle's
// group_admins map for the launching group.
func (a *Application) isGroupAdmin(launcher model.Launcher, senderID string) bool {
	return groupAdminAllowed(a.Config.Current().Command, launcher, senderID)
}

func botAdminAllowed(cfg config.CommandConfig, senderID string) bool {
	for _, id := range cfg.BotAdmins {
		if id == senderID {
			return true
		}
	}
	return false
}

// groupAdminAllowed checks the configured group-admin list for the
// launching group; person launchers have no group-admin tier.
func groupAdminAllowed(cfg config.CommandConfig, launcher model.Launcher, senderID string) bool {
	if launcher.Kind != model.LauncherGroup {
		return false
	}
	for _, id := range cfg.GroupAdmins[launcher.ID] {
		if id == senderID {
			return true
		}
	}
	return false
}
