package stages

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/pipeline"
)

// BanChecker decides whether a launcher or sender is banned from getting a
// reply at all, as opposed to merely lacking a command's privilege level,
// which the command registry itself enforces.
type BanChecker interface {
	IsBanned(launcher model.Launcher, senderID string) bool
}

// MuteChecker asks whether a group is currently muted, surfacing the
// optional is-muted adapter capability.
type MuteChecker interface {
	IsMuted(ctx context.Context, groupID string) (bool, error)
}

// AccessPolicy interrupts the pipeline for banned senders and muted groups
// before any session state or LLM call is touched.
type AccessPolicy struct {
	Bans  BanChecker
	Mutes MuteChecker
}

func NewAccessPolicy(bans BanChecker, mutes MuteChecker) *AccessPolicy {
	return &AccessPolicy{Bans: bans, Mutes: mutes}
}

func (p *AccessPolicy) Name() string { return NameAccessPolicy }
func (p *AccessPolicy) Initialize(pipelineConfig any) error { return nil }

func (p *AccessPolicy) Process(ctx context.Context, q *model.Query) (pipeline.StageResult, error) {
	if p.Bans != nil && p.Bans.IsBanned(q.Launcher, q.SenderID) {
		return pipeline.Interrupt(), nil
	}
	if p.Mutes != nil && q.Launcher.Kind == model.LauncherGroup {
		muted, err := p.Mutes.IsMuted(ctx, q.Launcher.ID)
		if err != nil {
			// A mute-check failure degrades to "not muted" rather than
			// blocking the reply; the adapter's own logs carry the error.
			return pipeline.Continue(), nil
		}
		if muted {
			return pipeline.Interrupt(), nil
		}
	}
	return pipeline.Continue(), nil
}
