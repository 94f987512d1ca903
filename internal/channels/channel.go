// Package channels defines the platform adapter capability the core
// consumes and a registry for the concrete adapters
// (internal/channels/{discord,telegram,slack}) that implement it.
package channels

import (
	"context"

	"github.com/chatmesh/gateway/internal/model"
)

// Adapter is the minimal contract every channel connector satisfies.
type Adapter interface {
	Type() model.ChannelType
}

// LifecycleAdapter represents adapters that can start and stop cleanly,
// matching the platform adapter capability's run_async()/kill() pair.
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// InboundHandler is invoked once per inbound platform event, already
// wrapped as a Query ready for the query pool.
type InboundHandler func(ctx context.Context, q *model.Query)

// OutboundAdapter sends a reply chain back to the platform that produced
// evt, implementing model.AdapterHandle's ReplyMessage contract plus the
// channel-identifying Type().
type OutboundAdapter interface {
	Adapter
	model.AdapterHandle
}

// MuteAdapter exposes the optional is-muted capability some platforms
// support.
type MuteAdapter interface {
	IsMuted(ctx context.Context, groupID string) (bool, error)
}

// Registry tracks every configured adapter by channel type.
type Registry struct {
	adapters  map[model.ChannelType]Adapter
	lifecycle map[model.ChannelType]LifecycleAdapter
	outbound  map[model.ChannelType]OutboundAdapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[model.ChannelType]Adapter),
		lifecycle: make(map[model.ChannelType]LifecycleAdapter),
		outbound:  make(map[model.ChannelType]OutboundAdapter),
	}
}

// Register adds adapter, indexing it under every capability it implements.
func (r *Registry) Register(adapter Adapter) {
	ct := adapter.Type()
	r.adapters[ct] = adapter
	if lc, ok := adapter.(LifecycleAdapter); ok {
		r.lifecycle[ct] = lc
	}
	if ob, ok := adapter.(OutboundAdapter); ok {
		r.outbound[ct] = ob
	}
}

// Get returns the adapter registered for ct, if any.
func (r *Registry) Get(ct model.ChannelType) (Adapter, bool) {
	a, ok := r.adapters[ct]
	return a, ok
}

// Outbound returns the outbound capability for ct, if any.
func (r *Registry) Outbound(ct model.ChannelType) (OutboundAdapter, bool) {
	a, ok := r.outbound[ct]
	return a, ok
}

// StartAll starts every registered lifecycle adapter, stopping already-
// started ones and returning the first error encountered.
func (r *Registry) StartAll(ctx context.Context) error {
	started := make([]LifecycleAdapter, 0, len(r.lifecycle))
	for _, lc := range r.lifecycle {
		if err := lc.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return err
		}
		started = append(started, lc)
	}
	return nil
}

// StopAll stops every registered lifecycle adapter, collecting but not
// short-circuiting on individual errors.
func (r *Registry) StopAll(ctx context.Context) []error {
	var errs []error
	for _, lc := range r.lifecycle {
		if err := lc.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}
