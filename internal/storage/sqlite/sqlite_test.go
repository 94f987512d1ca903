package sqlite

import (
	"context"
	"testing"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/sessions"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionStoreSaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := sessions.Record{
		LauncherKind:   model.LauncherPerson,
		LauncherID:     "u1",
		CreateTS:       100,
		LastInteractTS: 200,
		Prompt:         []model.Message{{Role: model.RoleUser, Content: "hi"}},
		DefaultPrompt:  []model.Message{{Role: model.RoleSystem, Content: "sys"}},
		TokenCounts:    []int{5},
		Status:         model.SessionOnGoing,
	}
	if err := store.Sessions.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Sessions.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].LauncherID != "u1" || len(loaded[0].Prompt) != 1 {
		t.Fatalf("unexpected loaded records: %+v", loaded)
	}
}

func TestSessionStoreLoadOnlyReturnsOnGoing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Sessions.Save(ctx, sessions.Record{LauncherKind: model.LauncherGroup, LauncherID: "g1", Status: model.SessionExpired})
	loaded, err := store.Sessions.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected expired session excluded, got %+v", loaded)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Sessions.Save(ctx, sessions.Record{LauncherKind: model.LauncherPerson, LauncherID: "u1", Status: model.SessionOnGoing})
	if err := store.Sessions.Delete(ctx, model.LauncherPerson, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err := store.Sessions.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no sessions after delete, got %+v", loaded)
	}
}

func TestBotStoreCreateGetUpdateDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	bot := model.Bot{UUID: "b1", AdapterName: "discord", AdapterConfig: map[string]any{"token": "x"}, Enable: true}
	if err := store.Bots.Create(ctx, bot); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Bots.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AdapterName != "discord" || !got.Enable {
		t.Fatalf("unexpected bot: %+v", got)
	}

	bot.Enable = false
	if err := store.Bots.Update(ctx, bot); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = store.Bots.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Enable {
		t.Fatal("expected enable=false after update")
	}

	if err := store.Bots.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Bots.Get(ctx, "b1"); err == nil {
		t.Fatal("expected error getting deleted bot")
	}
}

func TestBotStoreList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.Bots.Create(ctx, model.Bot{UUID: "b1", AdapterName: "discord", AdapterConfig: map[string]any{}})
	_ = store.Bots.Create(ctx, model.Bot{UUID: "b2", AdapterName: "slack", AdapterConfig: map[string]any{}})

	all, err := store.Bots.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(all))
	}
}
