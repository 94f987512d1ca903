// Package telegram implements the channels.OutboundAdapter/LifecycleAdapter
// capability for Telegram: go-telegram/bot long-polling with a
// RegisterHandler per update kind, a mockable bot client interface, and
// chat-id-keyed outbound sends.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chatmesh/gateway/internal/channels"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

// botClient is the subset of *bot.Bot the adapter calls, narrowed so tests
// can substitute a fake.
type botClient interface {
	RegisterHandler(handlerType tgbot.HandlerType, pattern string, matchType tgbot.MatchType, handler tgbot.HandlerFunc) string
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	Start(ctx context.Context)
}

// Config configures one Telegram bot connection.
type Config struct {
	Token  string
	SelfID string
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Token == "" {
		return perrors.NewAdapter("telegram: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter, channels.LifecycleAdapter and
// model.AdapterHandle for Telegram.
type Adapter struct {
	cfg     Config
	mu      sync.RWMutex
	client  botClient
	running bool
	inbound channels.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New builds an Adapter; inbound is invoked once per received Telegram
// message, already wrapped as a model.Query.
func New(cfg Config, inbound channels.InboundHandler) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, inbound: inbound, logger: cfg.Logger.With("adapter", "telegram")}, nil
}

func (a *Adapter) Type() model.ChannelType { return model.ChannelTelegram }
func (a *Adapter) ChannelType() model.ChannelType { return model.ChannelTelegram }

// SetClient overrides the bot client, for tests.
func (a *Adapter) SetClient(c botClient) { a.client = c }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return perrors.NewAdapter("telegram adapter already started", nil)
	}

	if a.client == nil {
		b, err := tgbot.New(a.cfg.Token)
		if err != nil {
			return perrors.NewAdapter("failed to create telegram bot", err)
		}
		a.client = b
	}

	a.client.RegisterHandler(tgbot.HandlerTypeMessageText, "", tgbot.MatchTypePrefix, a.handleUpdate)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.client.Start(runCtx)

	a.running = true
	a.logger.Info("telegram adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
	a.logger.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || a.inbound == nil {
		return
	}
	a.handleMessage(ctx, update.Message)
}

func (a *Adapter) handleMessage(ctx context.Context, msg *models.Message) {
	launcher := model.Launcher{Kind: model.LauncherPerson, ID: strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.Chat.Type != "private" {
		launcher.Kind = model.LauncherGroup
	}

	chain := model.MessageChain{}
	if msg.Text != "" {
		chain = append(chain, model.ChainElement{Kind: model.ElementText, Text: msg.Text})
	}

	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}

	evt := &model.MessageEvent{
		Channel:   model.ChannelTelegram,
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		RawID:     strconv.Itoa(msg.ID),
		Timestamp: time.Now(),
	}

	q := model.NewQuery(launcher, senderID, evt, chain, a)
	a.inbound(ctx, q)
}

// ReplyMessage implements model.AdapterHandle.
func (a *Adapter) ReplyMessage(ctx context.Context, evt *model.MessageEvent, chain model.MessageChain, quoteOrigin bool) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return perrors.NewAdapter("telegram adapter not connected", nil)
	}
	if evt == nil || evt.ChannelID == "" {
		return perrors.NewAdapter("telegram reply missing destination chat id", nil)
	}
	chatID, err := strconv.ParseInt(evt.ChannelID, 10, 64)
	if err != nil {
		return perrors.NewAdapter("telegram reply has invalid chat id", err)
	}

	text := renderChain(chain)
	if text == "" {
		return nil
	}

	params := &tgbot.SendMessageParams{ChatID: chatID, Text: text}
	if quoteOrigin && evt.RawID != "" {
		if msgID, err := strconv.Atoi(evt.RawID); err == nil {
			params.ReplyParameters = &models.ReplyParameters{MessageID: msgID}
		}
	}

	if _, err := a.client.SendMessage(ctx, params); err != nil {
		return perrors.NewAdapter("failed to send telegram message", err)
	}
	return nil
}

func renderChain(chain model.MessageChain) string {
	var out string
	for _, el := range chain {
		switch el.Kind {
		case model.ElementText:
			out += el.Text
		case model.ElementAt:
			out += fmt.Sprintf("@%s ", el.TargetID)
		case model.ElementImage:
			if el.ImageURL != "" {
				out += "\n" + el.ImageURL
			}
		}
	}
	return out
}
