// Package discord is the destination side of the bridge: it delivers
// forwarded posts and reminders, and serves the slash commands that manage
// channels, reminders and the Telegram login.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/forwarder"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/metering"
	"github.com/tinyland-inc/telecord/pkg/qr"
	"github.com/tinyland-inc/telecord/pkg/reminders"
	"github.com/tinyland-inc/telecord/pkg/telegram"
)

const commandTimeout = 2 * time.Minute

// api is the part of *discordgo.Session the bot calls.
type api interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	Application(appID string) (*discordgo.Application, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageDelete(interaction *discordgo.Interaction, messageID string, options ...discordgo.RequestOption) error
	HeartbeatLatency() time.Duration
}

var _ api = (*discordgo.Session)(nil)

type LoginService interface {
	Login(ctx context.Context, userID string, p auth.Presenter) (auth.Result, error)
	Status(ctx context.Context) (auth.Status, error)
	Logout(ctx context.Context) error
}

type TelegramChannels interface {
	ResolveChannel(ctx context.Context, ref string) (telegram.Channel, error)
	JoinChannel(ctx context.Context, ch telegram.Channel) error
	LeaveChannel(ctx context.Context, ch telegram.Channel) error
}

type ChannelStore interface {
	AddSourceChannel(ctx context.Context, ch channels.SourceChannel) error
	RemoveSourceChannel(ctx context.Context, id int64) error
	FindSourceChannelByUsername(ctx context.Context, username string) (channels.SourceChannel, error)
	SetForward(ctx context.Context, id int64, forward bool) error
	ListSourceChannels(ctx context.Context) ([]channels.SourceChannel, error)
	AddDestinationChannel(ctx context.Context, id int64) error
	RemoveDestinationChannel(ctx context.Context, id int64) error
	ListDestinationChannels(ctx context.Context) ([]channels.DestinationChannel, error)
}

type ReminderStore interface {
	CreateGroup(ctx context.Context, userID int64, name string, texts []string) (reminders.Group, error)
	AddText(ctx context.Context, userID int64, name, text string) error
	RemoveText(ctx context.Context, userID int64, name, text string) (bool, error)
	DeleteGroup(ctx context.Context, userID int64, name string) error
	ListGroups(ctx context.Context, userID int64) ([]reminders.Group, error)
}

// Router is what the bot drives in the forwarder.
type Router interface {
	ReloadChannels(ctx context.Context) error
	OnBotReady(ctx context.Context) error
}

type Config struct {
	Token    string
	GuildID  string
	OwnerIDs []string
}

type Deps struct {
	Login     LoginService
	Telegram  TelegramChannels
	Channels  ChannelStore
	Reminders ReminderStore
	Router    Router
	Meter     *metering.Store
}

type Bot struct {
	cfg     Config
	deps    Deps
	session *discordgo.Session
	api     api
	access  *AllowList
	qr      qr.Renderer

	mu     sync.Mutex
	ctx    context.Context
	selfID string
	appID  string
}

func New(cfg Config, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	b := newBot(cfg, deps, session)
	b.session = session
	return b, nil
}

func newBot(cfg Config, deps Deps, a api) *Bot {
	return &Bot{
		cfg:    cfg,
		deps:   deps,
		api:    a,
		access: NewAllowList(cfg.OwnerIDs),
		qr:     qr.Renderer{Invert: true},
		ctx:    context.Background(),
	}
}

// SetRouter attaches the forwarder once it exists; the router itself needs
// the bot as its destination.
func (b *Bot) SetRouter(r Router) {
	b.mu.Lock()
	b.deps.Router = r
	b.mu.Unlock()
}

func (b *Bot) router() Router {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deps.Router
}

// Open connects to the gateway. Handlers run with contexts derived from ctx.
func (b *Bot) Open(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

func (b *Bot) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// Send posts text to a guild channel, split to Discord's length limit.
func (b *Bot) Send(ctx context.Context, channelID int64, text string) error {
	return b.sendChunks(ctx, strconv.FormatInt(channelID, 10), text)
}

// SendDirect opens (or reuses) the DM channel with userID and posts text.
func (b *Bot) SendDirect(ctx context.Context, userID int64, text string) error {
	ch, err := b.api.UserChannelCreate(strconv.FormatInt(userID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open direct channel: %w", err)
	}
	return b.sendChunks(ctx, ch.ID, text)
}

func (b *Bot) sendChunks(ctx context.Context, channelID, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if _, err := b.api.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return classify(err)
		}
	}
	return nil
}

// classify marks errors that retrying cannot fix as forwarder.ErrAccessRevoked.
func classify(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeMissingAccess,
			discordgo.ErrCodeMissingPermissions,
			discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %w", forwarder.ErrAccessRevoked, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %w", forwarder.ErrAccessRevoked, err)
		}
	}
	return err
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	if r.User != nil {
		b.selfID = r.User.ID
	}
	if r.Application != nil {
		b.appID = r.Application.ID
	}
	b.mu.Unlock()

	logger.InfoCF("discord", "Bot ready", map[string]any{
		"user":   b.selfID,
		"guilds": len(r.Guilds),
	})

	go b.afterReady(b.baseContext())
}

func (b *Bot) afterReady(ctx context.Context) {
	if err := b.registerCommands(ctx); err != nil {
		logger.ErrorCF("discord", "Failed to register commands", map[string]any{"error": err.Error()})
	}

	b.mu.Lock()
	appID := b.appID
	b.mu.Unlock()
	if app, err := b.api.Application(appID); err != nil {
		logger.WarnCF("discord", "Failed to load application owners", map[string]any{"error": err.Error()})
	} else {
		b.access.SetApplication(app)
	}

	if r := b.router(); r != nil {
		if err := r.OnBotReady(ctx); err != nil {
			logger.ErrorCF("discord", "Forwarder ready hook failed", map[string]any{"error": err.Error()})
		}
	}
}

func (b *Bot) registerCommands(ctx context.Context) error {
	b.mu.Lock()
	appID := b.appID
	b.mu.Unlock()
	if appID == "" {
		return errors.New("application id unknown")
	}

	cmds, err := b.api.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	logger.InfoCF("discord", "Commands registered", map[string]any{
		"count": len(cmds),
		"guild": b.cfg.GuildID,
	})
	return nil
}
