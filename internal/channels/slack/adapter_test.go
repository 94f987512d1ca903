package slack

import (
	"context"
	"testing"

	"github.com/chatmesh/gateway/internal/model"
)

func TestNewRejectsMissingTokens(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing tokens")
	}
	if _, err := New(Config{BotToken: "xoxb-x"}, nil); err == nil {
		t.Fatal("expected error for missing app token")
	}
}

func TestHandleMessageIgnoresChannelMessagesWithoutMentionOrThread(t *testing.T) {
	called := false
	a, err := New(Config{BotToken: "xoxb-x", AppToken: "xapp-x"}, func(ctx context.Context, q *model.Query) { called = true })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.botUserID = "U1"
	a.handleMessage(context.Background(), "U2", "C1", "just chatting", "123.456", "")
	if called {
		t.Fatal("expected plain channel message without mention/thread to be ignored")
	}
}

func TestHandleMessageAcceptsMention(t *testing.T) {
	var got *model.Query
	a, err := New(Config{BotToken: "xoxb-x", AppToken: "xapp-x"}, func(ctx context.Context, q *model.Query) { got = q })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.botUserID = "U1"
	a.handleMessage(context.Background(), "U2", "C1", "<@U1> help me", "123.456", "")
	if got == nil {
		t.Fatal("expected inbound handler to fire for a mention")
	}
	if got.Launcher.Kind != model.LauncherGroup || got.Launcher.ID != "C1" {
		t.Fatalf("unexpected launcher: %+v", got.Launcher)
	}
}

func TestHandleMessageAcceptsDM(t *testing.T) {
	var got *model.Query
	a, err := New(Config{BotToken: "xoxb-x", AppToken: "xapp-x"}, func(ctx context.Context, q *model.Query) { got = q })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.handleMessage(context.Background(), "U2", "D1", "hi", "123.456", "")
	if got == nil {
		t.Fatal("expected inbound handler to fire for a DM")
	}
	if got.Launcher.Kind != model.LauncherPerson {
		t.Fatalf("expected person launcher for DM, got %+v", got.Launcher)
	}
}

func TestRenderChain(t *testing.T) {
	out := renderChain(model.MessageChain{
		{Kind: model.ElementAt, TargetID: "U9"},
		{Kind: model.ElementText, Text: "hello"},
	})
	if out != "<@U9> hello" {
		t.Fatalf("unexpected rendered chain: %q", out)
	}
}
