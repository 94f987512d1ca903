package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/chatmesh/gateway/internal/model"
)

type fakeSession struct {
	opened  bool
	closed  bool
	sent    []string
	handler interface{}
}

func (f *fakeSession) Open() error { f.opened = true; return nil }
func (f *fakeSession) Close() error { f.closed = true; return nil }
func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, content)
	return &discordgo.Message{ID: "m1"}, nil
}
func (f *fakeSession) ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, content)
	return &discordgo.Message{ID: "m2"}, nil
}
func (f *fakeSession) AddHandler(handler interface{}) func() { f.handler = handler; return func() {} }

func TestNewRejectsMissingToken(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestReplyMessageRendersChainAsText(t *testing.T) {
	fs := &fakeSession{}
	a, err := New(Config{Token: "t"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.session = fs
	a.connected = true

	err = a.ReplyMessage(context.Background(), &model.MessageEvent{ChannelID: "c1", RawID: "m0"}, model.MessageChain{
		{Kind: model.ElementText, Text: "hello"},
	}, false)
	if err != nil {
		t.Fatalf("ReplyMessage: %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0] != "hello" {
		t.Fatalf("unexpected sent messages: %+v", fs.sent)
	}
}

func TestReplyMessageRequiresConnection(t *testing.T) {
	a, err := New(Config{Token: "t"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.ReplyMessage(context.Background(), &model.MessageEvent{ChannelID: "c1"}, model.MessageChain{{Kind: model.ElementText, Text: "x"}}, false); err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestHandleMessageCreateIgnoresBots(t *testing.T) {
	called := false
	a, err := New(Config{Token: "t"}, func(ctx context.Context, q *model.Query) { called = true })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    &discordgo.User{ID: "bot1", Bot: true},
		ChannelID: "c1",
		Content:   "hi",
	}})
	if called {
		t.Fatal("expected bot messages to be ignored")
	}
}

func TestHandleMessageCreateBuildsQuery(t *testing.T) {
	var got *model.Query
	a, err := New(Config{Token: "t", SelfID: "bot1"}, func(ctx context.Context, q *model.Query) { got = q })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.handleMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    &discordgo.User{ID: "u1"},
		ChannelID: "c1",
		GuildID:   "g1",
		ID:        "msg1",
		Content:   "hello bot",
	}})
	if got == nil {
		t.Fatal("expected inbound handler to be called")
	}
	if got.Launcher.Kind != model.LauncherGroup || got.Launcher.ID != "c1" {
		t.Fatalf("unexpected launcher: %+v", got.Launcher)
	}
	if got.SenderID != "u1" {
		t.Fatalf("unexpected sender: %q", got.SenderID)
	}
}
