// Package plugins provides the event bus that lets external extensions
// observe and mutate every pipeline stage boundary.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chatmesh/gateway/internal/model"
)

// Listener handles one Event. Returning an error does not stop dispatch
// to subsequent listeners for the same event; the host logs it and moves
// on.
type Listener func(ctx context.Context, evt *model.Event) error

type registration struct {
	pluginID string
	kind     model.EventKind
	handler  Listener
	priority int
}

// Host dispatches events to registered listeners in priority (then
// registration) order, accumulates PreventDefault/Returns, and guarantees a
// panicking or erroring listener never blocks subsequent listeners.
type Host struct {
	mu     sync.RWMutex
	byKind map[model.EventKind][]*registration
	logger *slog.Logger
}

// NewHost creates an empty plugin host. logger may be nil, in which case
// slog.Default() is used.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		byKind: make(map[model.EventKind][]*registration),
		logger: logger.With("component", "plugin-host"),
	}
}

// Register adds a listener for a given event kind. Higher priority runs
// first; registration order breaks ties. Registration happens only at
// boot; the host is otherwise read-mostly.
func (h *Host) Register(pluginID string, kind model.EventKind, priority int, handler Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	reg := &registration{pluginID: pluginID, kind: kind, handler: handler, priority: priority}
	h.byKind[kind] = append(h.byKind[kind], reg)
	sort.SliceStable(h.byKind[kind], func(i, j int) bool {
		return h.byKind[kind][i].priority > h.byKind[kind][j].priority
	})
}

// Unregister removes every listener registered by pluginID, used when a
// plugin is disabled at runtime.
func (h *Host) Unregister(pluginID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for kind, regs := range h.byKind {
		filtered := regs[:0:0]
		for _, r := range regs {
			if r.pluginID != pluginID {
				filtered = append(filtered, r)
			}
		}
		h.byKind[kind] = filtered
	}
}

// RegisteredPlugins returns the distinct plugin ids with at least one live
// registration, sorted, for admin commands like plugin-list.
func (h *Host) RegisteredPlugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, regs := range h.byKind {
		for _, r := range regs {
			seen[r.pluginID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasListeners reports whether any handler is registered for kind.
func (h *Host) HasListeners(kind model.EventKind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byKind[kind]) > 0
}

// Emit dispatches evt to every registered listener for evt.Kind, in
// priority order (registration order breaks ties). Each listener's panic or error is caught, logged
// with its plugin id, and does not prevent subsequent listeners from
// running.
func (h *Host) Emit(ctx context.Context, evt *model.Event) {
	h.mu.RLock()
	regs := append([]*registration(nil), h.byKind[evt.Kind]...)
	h.mu.RUnlock()

	for _, reg := range regs {
		h.runOne(ctx, reg, evt)
	}
}

func (h *Host) runOne(ctx context.Context, reg *registration, evt *model.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("listener panicked",
				"kind", evt.Kind, "plugin", reg.pluginID, "panic", fmt.Sprint(r))
		}
	}()
	if err := reg.handler(ctx, evt); err != nil {
		h.logger.Error("listener failed",
			"kind", evt.Kind, "plugin", reg.pluginID, "error", err)
	}
}
