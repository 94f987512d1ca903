package telegram

import (
	"context"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chatmesh/gateway/internal/model"
)

type fakeClient struct {
	sent []tgbot.SendMessageParams
}

func (f *fakeClient) RegisterHandler(handlerType tgbot.HandlerType, pattern string, matchType tgbot.MatchType, handler tgbot.HandlerFunc) string {
	return "h1"
}
func (f *fakeClient) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, *params)
	return &models.Message{ID: 1}, nil
}
func (f *fakeClient) Start(ctx context.Context) {}

func TestNewRejectsMissingToken(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestHandleMessageBuildsQueryForPrivateChat(t *testing.T) {
	var got *model.Query
	a, err := New(Config{Token: "t"}, func(ctx context.Context, q *model.Query) { got = q })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.handleMessage(context.Background(), &models.Message{
		ID:   5,
		Chat: models.Chat{ID: 100, Type: "private"},
		From: &models.User{ID: 42},
		Text: "hello",
	})
	if got == nil {
		t.Fatal("expected inbound handler to be called")
	}
	if got.Launcher.Kind != model.LauncherPerson || got.Launcher.ID != "100" {
		t.Fatalf("unexpected launcher: %+v", got.Launcher)
	}
	if got.SenderID != "42" {
		t.Fatalf("unexpected sender: %q", got.SenderID)
	}
}

func TestReplyMessageSendsViaClient(t *testing.T) {
	fc := &fakeClient{}
	a, err := New(Config{Token: "t"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.client = fc
	a.running = true

	err = a.ReplyMessage(context.Background(), &model.MessageEvent{ChannelID: "100", RawID: "5"}, model.MessageChain{
		{Kind: model.ElementText, Text: "hi there"},
	}, true)
	if err != nil {
		t.Fatalf("ReplyMessage: %v", err)
	}
	if len(fc.sent) != 1 || fc.sent[0].ChatID != int64(100) {
		t.Fatalf("unexpected sends: %+v", fc.sent)
	}
	if fc.sent[0].ReplyParameters == nil || fc.sent[0].ReplyParameters.MessageID != 5 {
		t.Fatalf("expected quote reply parameters, got %+v", fc.sent[0].ReplyParameters)
	}
}

func TestReplyMessageRequiresConnection(t *testing.T) {
	a, err := New(Config{Token: "t"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.ReplyMessage(context.Background(), &model.MessageEvent{ChannelID: "100"}, model.MessageChain{{Kind: model.ElementText, Text: "x"}}, false); err == nil {
		t.Fatal("expected error when not running")
	}
}
