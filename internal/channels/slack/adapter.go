// Package slack implements the channels.OutboundAdapter/LifecycleAdapter
// capability for Slack: slack-go/slack with Socket Mode for inbound events
// (AppMention/Message callbacks) and the chat.postMessage API for outbound
// sends.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/chatmesh/gateway/internal/channels"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

// Config configures one Slack app connection (Socket Mode requires both
// tokens).
type Config struct {
	BotToken string // xoxb-...
	AppToken string // xapp-...
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if c.BotToken == "" || c.AppToken == "" {
		return perrors.NewAdapter("slack: bot token and app token are required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter, channels.LifecycleAdapter and
// model.AdapterHandle for Slack.
type Adapter struct {
	cfg       Config
	client    *slack.Client
	socket    *socketmode.Client
	mu        sync.RWMutex
	running   bool
	botUserID string
	cancel    context.CancelFunc
	inbound   channels.InboundHandler
	logger    *slog.Logger
}

// New builds an Adapter; inbound is invoked once per received Slack
// message or app-mention event, already wrapped as a model.Query.
func New(cfg Config, inbound channels.InboundHandler) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socketClient := socketmode.New(client)
	return &Adapter{
		cfg:     cfg,
		client:  client,
		socket:  socketClient,
		inbound: inbound,
		logger:  cfg.Logger.With("adapter", "slack"),
	}, nil
}

func (a *Adapter) Type() model.ChannelType { return model.ChannelSlack }
func (a *Adapter) ChannelType() model.ChannelType { return model.ChannelSlack }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return perrors.NewAdapter("slack adapter already started", nil)
	}

	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return perrors.NewAdapter("failed to authenticate with slack", err)
	}
	a.botUserID = auth.UserID

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.handleEvents(runCtx)
	go func() {
		if err := a.socket.RunContext(runCtx); err != nil {
			a.logger.Error("slack socket mode stopped", "error", err)
		}
	}()

	a.running = true
	a.logger.Info("slack adapter started", "bot_user_id", a.botUserID)
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
	a.logger.Info("slack adapter stopped")
	return nil
}

func (a *Adapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				a.socket.Ack(*evt.Request)
			}
			a.handleEventsAPI(ctx, apiEvent)
		}
	}
}

func (a *Adapter) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleMessage(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
			return
		}
		a.handleMessage(ctx, ev.User, ev.Channel, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, user, channel, text, ts, threadTS string) {
	if a.inbound == nil {
		return
	}

	isDM := strings.HasPrefix(channel, "D")
	isMention := strings.Contains(text, fmt.Sprintf("<@%s>", a.botUserID))
	if !isDM && !isMention && threadTS == "" {
		return
	}

	launcher := model.Launcher{Kind: model.LauncherGroup, ID: channel}
	if isDM {
		launcher.Kind = model.LauncherPerson
	}

	chain := model.MessageChain{}
	if text != "" {
		chain = append(chain, model.ChainElement{Kind: model.ElementText, Text: text})
	}

	evt := &model.MessageEvent{
		Channel:   model.ChannelSlack,
		ChannelID: channel,
		RawID:     ts,
	}

	q := model.NewQuery(launcher, user, evt, chain, a)
	a.inbound(ctx, q)
}

// ReplyMessage implements model.AdapterHandle.
func (a *Adapter) ReplyMessage(ctx context.Context, evt *model.MessageEvent, chain model.MessageChain, quoteOrigin bool) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return perrors.NewAdapter("slack adapter not connected", nil)
	}
	if evt == nil || evt.ChannelID == "" {
		return perrors.NewAdapter("slack reply missing destination channel id", nil)
	}

	text := renderChain(chain)
	if text == "" {
		return nil
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if quoteOrigin && evt.RawID != "" {
		opts = append(opts, slack.MsgOptionTS(evt.RawID))
	}

	if _, _, err := a.client.PostMessageContext(ctx, evt.ChannelID, opts...); err != nil {
		return perrors.NewAdapter("failed to send slack message", err)
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
			out += fmt.Sprintf("<@%s> ", el.TargetID)
		case model.ElementImage:
			if el.ImageURL != "" {
				out += "\n" + el.ImageURL
			}
		}
	}
	return out
}
