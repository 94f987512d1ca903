// Package discord implements the channels.OutboundAdapter/LifecycleAdapter
// capability for Discord: a thin discordgo.Session wrapper with a mockable
// session interface, validated config, and one inbound handler per Discord
// event type.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chatmesh/gateway/internal/channels"
	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/perrors"
)

// session is the subset of *discordgo.Session the adapter calls, narrowed
// so tests can substitute a fake.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// Config configures one Discord bot connection.
type Config struct {
	Token   string
	SelfID  string // this bot's own user id, stripped as a leading self-mention upstream
	Logger  *slog.Logger
}

func (c *Config) validate() error {
	if c.Token == "" {
		return perrors.NewAdapter("discord: token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter, channels.LifecycleAdapter and
// model.AdapterHandle for Discord.
type Adapter struct {
	cfg     Config
	mu      sync.RWMutex
	session session
	connected bool
	inbound channels.InboundHandler
	logger  *slog.Logger
}

// New builds an Adapter; inbound is invoked once per received Discord
// message, already wrapped as a model.Query.
func New(cfg Config, inbound channels.InboundHandler) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, inbound: inbound, logger: cfg.Logger.With("adapter", "discord")}, nil
}

func (a *Adapter) Type() model.ChannelType { return model.ChannelDiscord }
func (a *Adapter) ChannelType() model.ChannelType { return model.ChannelDiscord }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return perrors.NewAdapter("discord adapter already started", nil)
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.cfg.Token)
		if err != nil {
			return perrors.NewAdapter("failed to create discord session", err)
		}
		a.session = dg
	}

	a.session.AddHandler(a.handleMessageCreate)

	if err := a.session.Open(); err != nil {
		return perrors.NewAdapter("failed to open discord session", err)
	}
	a.connected = true
	a.logger.Info("discord adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	if err := a.session.Close(); err != nil {
		return perrors.NewAdapter("failed to close discord session", err)
	}
	a.connected = false
	a.logger.Info("discord adapter stopped")
	return nil
}

// handleMessageCreate converts an inbound Discord message into a
// model.Query and hands it to the pipeline, ignoring messages from any bot
// account (this bot's own included).
func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if a.inbound == nil {
		return
	}

	launcher := model.Launcher{Kind: model.LauncherPerson, ID: m.ChannelID}
	if m.GuildID != "" {
		launcher = model.Launcher{Kind: model.LauncherGroup, ID: m.ChannelID}
	}

	chain := model.MessageChain{}
	for _, mention := range m.Mentions {
		if mention.ID == a.cfg.SelfID {
			chain = append(chain, model.ChainElement{Kind: model.ElementAt, TargetID: mention.ID})
		}
	}
	if m.Content != "" {
		chain = append(chain, model.ChainElement{Kind: model.ElementText, Text: m.Content})
	}

	evt := &model.MessageEvent{
		Channel:   model.ChannelDiscord,
		ChannelID: m.ChannelID,
		RawID:     m.ID,
		Timestamp: time.Now(),
	}

	q := model.NewQuery(launcher, m.Author.ID, evt, chain, a)
	a.inbound(context.Background(), q)
}

// ReplyMessage implements model.AdapterHandle, rendering chain as plain
// text (Discord embeds/reactions are left to a future ExecuteAction-style
// capability not named by this gateway's spec).
func (a *Adapter) ReplyMessage(ctx context.Context, evt *model.MessageEvent, chain model.MessageChain, quoteOrigin bool) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return perrors.NewAdapter("discord adapter not connected", nil)
	}
	if evt == nil || evt.ChannelID == "" {
		return perrors.NewAdapter("discord reply missing destination channel id", nil)
	}

	text := renderChain(chain)
	if text == "" {
		return nil
	}

	var err error
	if quoteOrigin && evt.RawID != "" {
		_, err = a.session.ChannelMessageSendReply(evt.ChannelID, text, &discordgo.MessageReference{
			MessageID: evt.RawID,
			ChannelID: evt.ChannelID,
		})
	} else {
		_, err = a.session.ChannelMessageSend(evt.ChannelID, text)
	}
	if err != nil {
		return perrors.NewAdapter("failed to send discord message", err)
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
