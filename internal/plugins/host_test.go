package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/chatmesh/gateway/internal/model"
)

func TestEmitDispatchesInPriorityOrder(t *testing.T) {
	host := NewHost(nil)
	var order []string

	host.Register("low", model.EventStageBefore, 0, func(ctx context.Context, evt *model.Event) error {
		order = append(order, "low")
		return nil
	})
	host.Register("high", model.EventStageBefore, 10, func(ctx context.Context, evt *model.Event) error {
		order = append(order, "high")
		return nil
	})

	host.Emit(context.Background(), model.NewEvent(model.EventStageBefore, nil))

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("unexpected dispatch order: %v", order)
	}
}

func TestEmitIsolatesListenerFailures(t *testing.T) {
	host := NewHost(nil)
	var secondRan bool

	host.Register("boom", model.EventStageBefore, 10, func(ctx context.Context, evt *model.Event) error {
		return errors.New("boom")
	})
	host.Register("panics", model.EventStageBefore, 5, func(ctx context.Context, evt *model.Event) error {
		panic("nope")
	})
	host.Register("second", model.EventStageBefore, 0, func(ctx context.Context, evt *model.Event) error {
		secondRan = true
		return nil
	})

	host.Emit(context.Background(), model.NewEvent(model.EventStageBefore, nil))

	if !secondRan {
		t.Fatalf("expected listener after a failing/panicking one to still run")
	}
}

func TestPreventDefaultAndReturns(t *testing.T) {
	host := NewHost(nil)
	host.Register("canned", model.EventPersonMessageReceived, 0, func(ctx context.Context, evt *model.Event) error {
		evt.AddReturn("reply", "canned")
		evt.PreventDefault()
		return nil
	})

	evt := model.NewEvent(model.EventPersonMessageReceived, nil)
	host.Emit(context.Background(), evt)

	if !evt.IsDefaultPrevented() {
		t.Fatalf("expected default to be prevented")
	}
	replies := evt.Returns("reply")
	if len(replies) != 1 || replies[0] != "canned" {
		t.Fatalf("unexpected returns: %v", replies)
	}
}

func TestRegisteredPluginsListsDistinctIDs(t *testing.T) {
	host := NewHost(nil)
	host.Register("alpha", model.EventStageBefore, 0, func(ctx context.Context, evt *model.Event) error { return nil })
	host.Register("alpha", model.EventStageAfter, 0, func(ctx context.Context, evt *model.Event) error { return nil })
	host.Register("beta", model.EventStageBefore, 0, func(ctx context.Context, evt *model.Event) error { return nil })

	ids := host.RegisteredPlugins()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Fatalf("unexpected registered plugin ids: %v", ids)
	}
}

func TestUnregisterRemovesPluginListeners(t *testing.T) {
	host := NewHost(nil)
	var ran bool
	host.Register("p1", model.EventStageBefore, 0, func(ctx context.Context, evt *model.Event) error {
		ran = true
		return nil
	})
	host.Unregister("p1")
	host.Emit(context.Background(), model.NewEvent(model.EventStageBefore, nil))
	if ran {
		t.Fatalf("expected unregistered listener to not run")
	}
}
